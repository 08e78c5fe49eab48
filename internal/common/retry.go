package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryOptions configures WithRetry. A Multiplier of 1.0 yields a fixed
// backoff interval between attempts.
type RetryOptions struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// WithRetry executes an operation with configurable retry behavior. When
// AttemptTimeout is set, each attempt runs under its own deadline. Errors
// wrapped in a non-retryable RetryableError abort immediately.
func WithRetry(ctx context.Context, operation func(context.Context) error, opts RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 1.0
	}

	delay := opts.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.AttemptTimeout)
		}

		err := operation(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err

		// Check if error is retryable
		var retryableErr *RetryableError
		if errors.As(err, &retryableErr) && !retryableErr.Retryable {
			return err
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, opts.MaxAttempts, lastErr)
		}

		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}

	return ErrMaxRetries
}
