package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjord-labs/walletcore/internal/common"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), "flaky", Transient, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	fatal := errors.New("execution reverted")
	err := Do(context.Background(), fastConfig(5), "fatal", Transient, func() error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), "always-busy", Transient, func() error {
		calls++
		return errors.New("429 too many requests")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts")
}

func TestDoNilConfigRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, "no-retry", Transient, func() error {
		calls++
		return errors.New("connection timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastConfig(10), "cancelled", Transient, func() error {
		calls++
		cancel()
		return errors.New("connection timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransientClassifier(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{syscall.ECONNREFUSED, true},
		{fmt.Errorf("wrapped: %w", syscall.ECONNRESET), true},
		{errors.New("deadline exceeded"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("no available connection in pool"), true},
		{errors.New("execution reverted"), false},
		{errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.retryable, Transient(tt.err), "error: %v", tt.err)
	}
}
