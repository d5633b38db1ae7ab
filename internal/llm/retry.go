package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
)

// FailureClass classifies a provider failure for the retry policy.
type FailureClass string

const (
	FailureRateLimited  FailureClass = "rate_limited"
	FailureOverloaded   FailureClass = "overloaded"
	FailureUnauthorized FailureClass = "unauthorized"
	FailureBadRequest   FailureClass = "bad_request"
	FailureTimeout      FailureClass = "timeout"
	FailureNetwork      FailureClass = "network"
	FailureServer       FailureClass = "server"
)

// Classify maps a provider error onto a failure class.
func Classify(err error) FailureClass {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return FailureRateLimited
		case apiErr.HTTPStatusCode == http.StatusServiceUnavailable:
			return FailureOverloaded
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return FailureUnauthorized
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			return FailureBadRequest
		default:
			return FailureServer
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}
	return FailureServer
}

// Retryable reports whether the failure class is transient.
func (c FailureClass) Retryable() bool {
	switch c {
	case FailureUnauthorized, FailureBadRequest:
		return false
	default:
		return true
	}
}

// RetryPolicy decides delay and continuation per attempt, parameterized by
// failure class. Rate-limited failures back off longer than overload, which
// backs off longer than other transient failures.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitBase time.Duration
	OverloadBase  time.Duration
	TransientBase time.Duration
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		RateLimitBase: 2 * time.Second,
		OverloadBase:  time.Second,
		TransientBase: 500 * time.Millisecond,
	}
}

func (p RetryPolicy) base(class FailureClass) time.Duration {
	switch class {
	case FailureRateLimited:
		return p.RateLimitBase
	case FailureOverloaded:
		return p.OverloadBase
	default:
		return p.TransientBase
	}
}

func (p RetryPolicy) newBackoff(class FailureClass) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.base(class)
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

// Delay returns the wait before retrying after the given zero-based failed
// attempt, or false when the policy says stop.
func (p RetryPolicy) Delay(class FailureClass, attempt int) (time.Duration, bool) {
	if !class.Retryable() {
		return 0, false
	}
	if attempt >= p.MaxAttempts-1 {
		return 0, false
	}
	bo := p.newBackoff(class)
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = bo.NextBackOff()
	}
	return d, true
}

// Retry runs op under the policy. Authorization and malformed-request
// failures surface immediately; transient failures retry with backoff until
// the attempt cap.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		delay, retry := policy.Delay(Classify(err), attempt)
		if !retry {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
