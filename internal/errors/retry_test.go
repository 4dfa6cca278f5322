package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	// Given: a function that succeeds immediately
	calls := 0
	fn := func() error {
		calls++
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: one call, no error
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversFromTransientError(t *testing.T) {
	// Given: a function that fails twice with a retryable error
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return IndexUnavailable("engine busy", nil)
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: third call succeeds
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	// Given: a function that always fails transiently
	calls := 0
	fn := func() error {
		calls++
		return IndexUnavailable("engine busy", nil)
	}

	// When: retrying with 3 retries
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: initial attempt + 3 retries, error preserved in chain
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, HasCode(err, ErrCodeIndexUnavailable))
}

func TestRetry_PermanentErrorStopsImmediately(t *testing.T) {
	// Given: a function that fails with a non-retryable code
	calls := 0
	fn := func() error {
		calls++
		return FilterRejected("synonym list is empty", nil)
	}

	// When: retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: exactly one call, rejection surfaced as-is
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, HasCode(err, ErrCodeFilterRejected))
}

func TestRetry_PlainErrorsAreTreatedAsTransient(t *testing.T) {
	// Given: a function returning plain errors
	calls := 0
	fn := func() error {
		calls++
		return errors.New("hiccup")
	}

	cfg := fastRetryConfig()
	cfg.MaxRetries = 1

	// When: retrying
	err := Retry(context.Background(), cfg, fn)

	// Then: unknown errors get the benefit of the doubt
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancellationWins(t *testing.T) {
	// Given: a cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	fn := func() error {
		calls++
		return IndexUnavailable("engine busy", nil)
	}

	// When: retrying
	err := Retry(ctx, fastRetryConfig(), fn)

	// Then: context error, function never ran
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryWithResult_ReturnsValueOnSuccess(t *testing.T) {
	// Given: a function that fails once then returns a value
	calls := 0
	fn := func() (string, error) {
		calls++
		if calls == 1 {
			return "", IndexUnavailable("engine busy", nil)
		}
		return "synonyms-en-US", nil
	}

	// When: retrying
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	// Then: value from the successful attempt
	require.NoError(t, err)
	assert.Equal(t, "synonyms-en-US", got)
	assert.Equal(t, 2, calls)
}

func TestRetryWithResult_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	fn := func() (int, error) {
		calls++
		return 0, FilterRejected("bad filter type", nil)
	}

	_, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, HasCode(err, ErrCodeFilterRejected))
}

func TestJittered_StaysWithinBounds(t *testing.T) {
	// Given: a base delay with jitter enabled
	base := 100 * time.Millisecond

	// Then: jittered delay lands in [base/2, base]
	for i := 0; i < 50; i++ {
		d := jittered(base, true)
		assert.GreaterOrEqual(t, d, base/2)
		assert.LessOrEqual(t, d, base)
	}

	// And: jitter disabled returns the delay unchanged
	assert.Equal(t, base, jittered(base, false))
}
