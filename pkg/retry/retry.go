// Package retry provides bounded retry with pluggable backoff strategies
// for the transient failures a rate-limited crawl runs into.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "kitscraper/pkg/errors"
	"kitscraper/pkg/logger"
)

// Operation is a function that may need retrying
type Operation func() error

// OperationWithResult is a function returning a result that may need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts bounds the total attempt count; 0 means unbounded
	MaxAttempts int
	// Backoff computes the wait between attempts
	Backoff BackoffStrategy
	// RetryIf decides whether a failure is worth another attempt
	RetryIf func(error) bool
	// OnRetry is invoked before each wait, after a failed attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context cancels the waits between attempts
	Context context.Context
	// Logger receives per-attempt diagnostics; nil disables them
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries classified transient errors and unknown ones
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Unclassified errors default to retryable
	return true
}

// Do runs op until it succeeds, a non-retryable error occurs, the attempt
// budget is spent, or the context is cancelled during a backoff wait.
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.WithField("attempt", attempt).Debug("recovered after retry")
			}
			return nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.WithError(lastErr).WithField("attempts", attempt).Error("retry budget spent")
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("attempt failed, backing off", map[string]interface{}{
				"attempt":  attempt,
				"of":       cfg.MaxAttempts,
				"delay_ms": delay.Milliseconds(),
				"error":    err.Error(),
			})
		}
		if waitErr := Wait(ctx, delay); waitErr != nil {
			return fmt.Errorf("retry cancelled: %w", waitErr)
		}
	}
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T
	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)
	return result, err
}
