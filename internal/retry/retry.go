// Package retry applies a bounded exponential backoff to calls against
// upstream Google APIs. Only transient failures (rate limiting, server errors,
// timeouts) are retried; everything else fails on the first attempt.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/api/googleapi"
)

// Policy configures the retry behaviour.
type Policy struct {
	// MaxTries is the total number of attempts, including the first (default: 3)
	MaxTries uint

	// InitialInterval is the delay before the first retry (default: 500ms)
	InitialInterval time.Duration

	// MaxInterval caps the delay between retries (default: 5s)
	MaxInterval time.Duration

	// AttemptTimeout bounds each individual attempt. Zero means no per-attempt timeout.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the policy used for upstream calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// WithTimeout returns a copy of p with the given per-attempt timeout.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.AttemptTimeout = d
	return p
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxTries == 0 {
		p.MaxTries = def.MaxTries
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	return p
}

// Do calls op until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The context passed to op carries the per-attempt timeout.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		v, err := op(attemptCtx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
	)
}

// Retryable reports whether err is a transient upstream failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
