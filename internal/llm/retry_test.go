package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiError(status int) error {
	return &openai.APIError{HTTPStatusCode: status, Message: http.StatusText(status)}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureRateLimited, Classify(apiError(http.StatusTooManyRequests)))
	assert.Equal(t, FailureOverloaded, Classify(apiError(http.StatusServiceUnavailable)))
	assert.Equal(t, FailureUnauthorized, Classify(apiError(http.StatusUnauthorized)))
	assert.Equal(t, FailureUnauthorized, Classify(apiError(http.StatusForbidden)))
	assert.Equal(t, FailureBadRequest, Classify(apiError(http.StatusBadRequest)))
	assert.Equal(t, FailureServer, Classify(apiError(http.StatusInternalServerError)))
	assert.Equal(t, FailureTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, FailureServer, Classify(errors.New("weird")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, FailureRateLimited.Retryable())
	assert.True(t, FailureOverloaded.Retryable())
	assert.True(t, FailureTimeout.Retryable())
	assert.True(t, FailureServer.Retryable())
	assert.False(t, FailureUnauthorized.Retryable())
	assert.False(t, FailureBadRequest.Retryable())
}

func TestDelayBasesPerClass(t *testing.T) {
	p := DefaultRetryPolicy()

	d, ok := p.Delay(FailureRateLimited, 0)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	d, ok = p.Delay(FailureOverloaded, 0)
	require.True(t, ok)
	assert.Equal(t, time.Second, d)

	d, ok = p.Delay(FailureServer, 0)
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)
}

func TestDelayDoubles(t *testing.T) {
	p := DefaultRetryPolicy()

	d, ok := p.Delay(FailureRateLimited, 1)
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, d)
}

func TestDelayStopsAtAttemptCap(t *testing.T) {
	p := DefaultRetryPolicy()

	_, ok := p.Delay(FailureServer, p.MaxAttempts-1)
	assert.False(t, ok)
}

func TestDelayStopsOnPermanentFailure(t *testing.T) {
	p := DefaultRetryPolicy()

	_, ok := p.Delay(FailureUnauthorized, 0)
	assert.False(t, ok)
	_, ok = p.Delay(FailureBadRequest, 0)
	assert.False(t, ok)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, RateLimitBase: time.Millisecond, OverloadBase: time.Millisecond, TransientBase: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apiError(http.StatusInternalServerError)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, RateLimitBase: time.Millisecond, OverloadBase: time.Millisecond, TransientBase: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return apiError(http.StatusServiceUnavailable)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsImmediatelyOnBadRequest(t *testing.T) {
	p := DefaultRetryPolicy()

	calls := 0
	err := Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return apiError(http.StatusBadRequest)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, RateLimitBase: time.Hour, OverloadBase: time.Hour, TransientBase: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, p, func(ctx context.Context) error {
		return apiError(http.StatusInternalServerError)
	})
	assert.ErrorIs(t, err, context.Canceled)
}
