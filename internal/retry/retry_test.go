package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietConfig(attempts int) *Config {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	return &Config{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Strategy:        StrategyFixed,
		Timeout:         time.Second,
		Logger:          logger,
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(errors.New("transient")))
	assert.True(t, IsRetryable(NewRetryableError(errors.New("again"))))
	assert.False(t, IsRetryable(NewNonRetryableError(errors.New("stop"))))
}

func TestIsRetryable_Wrapped(t *testing.T) {
	inner := NewNonRetryableError(errors.New("broken apk"))

	// %w wrapping keeps the marker visible to errors.As.
	assert.False(t, IsRetryable(fmt.Errorf("scan failed: %w", inner)))

	// Re-wrapping into a fresh error loses it.
	assert.True(t, IsRetryable(errors.New("outer: "+inner.Error())))
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quietConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quietConfig(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quietConfig(3), func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max attempts")
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quietConfig(5), func(ctx context.Context) error {
		calls++
		return NewNonRetryableError(errors.New("fatal"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "non-retryable")
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, quietConfig(3), func(ctx context.Context) error {
		return errors.New("should not matter")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry canceled")
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), quietConfig(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("again")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestCalculateNextInterval(t *testing.T) {
	initial := time.Second
	max := 10 * time.Second

	assert.Equal(t, time.Second, calculateNextInterval(StrategyFixed, time.Second, initial, max, 3))
	assert.Equal(t, 3*time.Second, calculateNextInterval(StrategyLinear, time.Second, initial, max, 3))
	assert.Equal(t, 4*time.Second, calculateNextInterval(StrategyExponential, time.Second, initial, max, 3))
	// Capped at max.
	assert.Equal(t, max, calculateNextInterval(StrategyExponential, time.Second, initial, max, 8))
}
