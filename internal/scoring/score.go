package scoring

import "math"

// Combine folds individual risk signals into one fake score: the weighted
// mean of the provided (signal, weight) pairs, clamped to [0.0, 100.0].
// Non-finite signals are skipped; an empty input scores 0.0. With all
// weights at 1.0 this is the plain arithmetic mean.
func Combine(signals []float64, weights []float64) float64 {
	var total, weightSum float64

	for i, v := range signals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}

		total += v * w
		weightSum += w
	}

	if weightSum == 0 {
		return 0.0
	}

	avg := total / weightSum
	if avg < 0.0 {
		return 0.0
	}
	if avg > 100.0 {
		return 100.0
	}
	return avg
}
