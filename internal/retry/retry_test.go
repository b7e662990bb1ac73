package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func fastPolicy() Policy {
	return Policy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &googleapi.Error{Code: http.StatusServiceUnavailable}
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &googleapi.Error{Code: http.StatusNotFound}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *googleapi.Error
	assert.True(t, errors.As(err, &apiErr))
}

func TestDo_GivesUpAfterMaxTries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &googleapi.Error{Code: http.StatusTooManyRequests}
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_AppliesAttemptTimeout(t *testing.T) {
	p := fastPolicy().WithTimeout(10 * time.Millisecond)
	p.MaxTries = 1

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: &googleapi.Error{Code: 429}, want: true},
		{name: "server error", err: &googleapi.Error{Code: 502}, want: true},
		{name: "forbidden", err: &googleapi.Error{Code: 403}, want: false},
		{name: "wrapped server error", err: fmt.Errorf("upload: %w", &googleapi.Error{Code: 500}), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
