package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts(attempts int) RetryOptions {
	return RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   1.0,
	}
}

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, fastOpts(3))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastOpts(3))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("always fails")
	}, fastOpts(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 3, calls)
}

func TestWithRetryNonRetryableAbortsImmediately(t *testing.T) {
	calls := 0
	fatal := &RetryableError{Err: errors.New("bad credentials"), Retryable: false}
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return fatal
	}, fastOpts(5))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetryAttemptTimeout(t *testing.T) {
	var sawDeadline bool
	err := WithRetry(context.Background(), func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	}, RetryOptions{MaxAttempts: 1, AttemptTimeout: time.Second})
	require.NoError(t, err)
	assert.True(t, sawDeadline, "attempt context should carry a deadline")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: false}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
