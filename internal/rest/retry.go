package rest

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/weiki/usercenter-cli/internal/errs"
)

// RetryPolicy is the explicit retry contract of the client: how many extra
// attempts, the base backoff delay (doubled per attempt), and which failures
// qualify.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	Retryable  func(error) bool
}

// DefaultRetryPolicy retries server-side failures (status >= 500) twice with
// 2s then 4s backoff. Client errors and transport failures surface at once.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		Retryable:  ServerFailure,
	}
}

// ServerFailure reports whether err is a structured server error with a 5xx
// status.
func ServerFailure(err error) bool {
	se, ok := errs.AsServerError(err)
	return ok && se.Retryable()
}

// Do runs fn under the policy.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	if p.MaxRetries == 0 || p.Retryable == nil {
		return fn(ctx)
	}
	b := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(p.BaseDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && p.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
