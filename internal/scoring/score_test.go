package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombine_EmptyInput(t *testing.T) {
	assert.Equal(t, 0.0, Combine(nil, nil))
	assert.Equal(t, 0.0, Combine([]float64{}, []float64{}))
}

func TestCombine_PlainMean(t *testing.T) {
	score := Combine([]float64{90, 50, 10}, []float64{1, 1, 1})
	assert.InDelta(t, 50.0, score, 0.001)
}

func TestCombine_SkipsNonFinite(t *testing.T) {
	score := Combine([]float64{80, math.NaN(), 40}, []float64{1, 1, 1})
	assert.InDelta(t, 60.0, score, 0.001)

	score = Combine([]float64{80, math.Inf(1)}, []float64{1, 1})
	assert.InDelta(t, 80.0, score, 0.001)
}

func TestCombine_AllNonFinite(t *testing.T) {
	score := Combine([]float64{math.NaN(), math.Inf(-1)}, []float64{1, 1})
	assert.Equal(t, 0.0, score)
}

func TestCombine_Weighted(t *testing.T) {
	// (100*3 + 0*1) / 4 = 75
	score := Combine([]float64{100, 0}, []float64{3, 1})
	assert.InDelta(t, 75.0, score, 0.001)
}

func TestCombine_MissingWeightsDefaultToOne(t *testing.T) {
	score := Combine([]float64{60, 20}, nil)
	assert.InDelta(t, 40.0, score, 0.001)
}

func TestCombine_Clamped(t *testing.T) {
	assert.Equal(t, 100.0, Combine([]float64{150, 150}, []float64{1, 1}))
	assert.Equal(t, 0.0, Combine([]float64{-10, -20}, []float64{1, 1}))
}
