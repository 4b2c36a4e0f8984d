package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStopsAfterAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Retry(context.Background(), 3, time.Millisecond, 4*time.Millisecond, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetrySucceedsMidway(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, 4*time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	calls := 0
	terminal := errors.New("terminal")
	err := Retry(context.Background(), 5, time.Millisecond, 4*time.Millisecond, func() error {
		calls++
		return Permanent(terminal)
	})
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls, "a permanent error must not be retried")
}

func TestRetryExponentialDelays(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Retry(context.Background(), 3, 30*time.Millisecond, 120*time.Millisecond, func() error {
		calls++
		return errors.New("always")
	})
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// delays of 30ms and 60ms between the three attempts
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}

func TestRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, 50*time.Millisecond, 200*time.Millisecond, func() error {
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
}
