package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/fjord-labs/walletcore/internal/common"
)

// Config controls the bounded exponential backoff behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff.Duration == 0 {
		c.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if c.MaxBackoff.Duration == 0 {
		c.MaxBackoff = common.NewDuration(30 * time.Second)
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
}

// Classifier reports whether an error should trigger another attempt.
type Classifier func(error) bool

// Transient is the default classifier. It retries network-level failures,
// timeouts, rate limiting and temporary server errors.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	if strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	if strings.Contains(errStr, "connection pool") ||
		strings.Contains(errStr, "no available connection") {
		return true
	}

	return false
}

// backoff computes the backoff duration for a given attempt with jitter.
func backoff(attempt int, cfg *Config) time.Duration {
	if attempt <= 1 {
		return 0
	}

	d := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))

	if d > float64(cfg.MaxBackoff.Duration) {
		d = float64(cfg.MaxBackoff.Duration)
	}

	// jitter (±25%)
	jitterRange := d * 0.25
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	d += jitter

	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}

// Do executes fn with bounded exponential backoff, retrying errors accepted
// by the classifier. A nil classifier retries transient errors only. It
// respects context cancellation and deadlines.
func Do(ctx context.Context, cfg *Config, operation string, retryable Classifier, fn func() error) error {
	if cfg == nil {
		// no retry config, execute once
		return fn()
	}
	if retryable == nil {
		retryable = Transient
	}

	var lastErr error
	startTime := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !retryable(err) {
			return fmt.Errorf("non-retryable error on attempt %d/%d of %s: %w",
				attempt, cfg.MaxAttempts, operation, err)
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		wait := backoff(attempt, cfg)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d): %w",
					attempt, cfg.MaxAttempts, ctx.Err())
			}
		}
	}

	return fmt.Errorf("all %d attempts of %s failed after %v (last error: %w)",
		cfg.MaxAttempts, operation, time.Since(startTime), lastErr)
}
