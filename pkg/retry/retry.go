package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0

	// OnRetry is called before each wait with the failed attempt number
	// (starting at 1) and its error.
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns the startup probe defaults: 2 retries starting at
// 250ms, capped at 2s, doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   2,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, or runs out of attempts. The last error is returned.
// Waiting respects context cancellation.
func Do(ctx context.Context, cfg *Config, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries || !IsRetryable(err) {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		select {
		case <-time.After(applyJitter(delay, cfg.JitterFactor)):
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// IsRetryable reports whether err is a transient connection failure.
// Authentication failures, rejected statements and configuration problems
// are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if apperrors.As(err, &pgErr) {
		// 57P*: server shutting down or starting up; 53300: too many connections
		return strings.HasPrefix(pgErr.Code, "57P") || pgErr.Code == "53300"
	}
	if apperrors.Is(err, apperrors.ErrConfiguration) ||
		apperrors.Is(err, apperrors.ErrNotInitialized) ||
		apperrors.Is(err, apperrors.ErrReadOnlyViolation) {
		return false
	}
	if apperrors.Is(err, apperrors.ErrConnection) || apperrors.IsConnectionFailure(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"network is unreachable",
		"the database system is starting up",
		"too many connections",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
