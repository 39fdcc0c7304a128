package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	var slept []time.Duration
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Sleep: noSleep(&slept)}

	calls := 0
	result, err := Do(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDo_ZeroMaxAttemptsStillRunsOnce(t *testing.T) {
	var slept []time.Duration
	cfg := Config{MaxAttempts: 0, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Sleep: noSleep(&slept)}

	failure := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		return "", failure
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDo_ExhaustsBudgetAndReturnsLastError(t *testing.T) {
	var slept []time.Duration
	cfg := Config{MaxAttempts: 4, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Sleep: noSleep(&slept)}

	calls := 0
	_, err := Do(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Len(t, slept, 3)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Contains(t, err.Error(), "boom")
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	var slept []time.Duration
	cfg := Config{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Sleep: noSleep(&slept)}

	fatal := errors.New("bad config")
	calls := 0
	_, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(fatal)
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDo_RecoversAfterRetryableFailures(t *testing.T) {
	var slept []time.Duration
	cfg := Config{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Sleep: noSleep(&slept)}

	calls := 0
	result, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
	assert.Len(t, slept, 2)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	calls := 0
	_, err := Do(ctx, cfg, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff_GrowthIsBoundedByCap(t *testing.T) {
	cfg := Config{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}

	expected := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, Backoff(cfg, i+1), "attempt %d", i+1)
	}
}

func TestBackoff_JitterStaysWithinBound(t *testing.T) {
	cfg := Config{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Jitter: 500 * time.Millisecond}

	for i := 0; i < 50; i++ {
		d := Backoff(cfg, 4)
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.Less(t, d, 10*time.Second+500*time.Millisecond)
	}
}
