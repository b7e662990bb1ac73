package pipeline

import (
	"context"
	"time"

	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/retry"
)

// DefaultMaxMessages bounds how many messages one run scans
const DefaultMaxMessages = 10

// Scanner finds messages with attachments
type Scanner struct {
	mail        MailSource
	maxMessages int64
	policy      retry.Policy
	metrics     *instrumentation.Metrics
}

// NewScanner creates a Scanner. maxMessages <= 0 uses DefaultMaxMessages.
func NewScanner(mail MailSource, maxMessages int64, policy retry.Policy, metrics *instrumentation.Metrics) *Scanner {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Scanner{mail: mail, maxMessages: maxMessages, policy: policy, metrics: metrics}
}

// Scan returns the IDs of messages with attachments inside r. An inverted
// range matches nothing and is answered without calling the provider.
// Errors are never partial.
func (s *Scanner) Scan(ctx context.Context, r gmail.DateRange) ([]string, error) {
	if r.Inverted() {
		return nil, nil
	}

	q := gmail.BuildQuery(r)
	ids, err := observe(ctx, s.metrics, instrumentation.ServiceGmail, instrumentation.OperationList, func(ctx context.Context) ([]string, error) {
		return retry.Do(ctx, s.policy, func(ctx context.Context) ([]string, error) {
			return s.mail.ListMessageIDs(ctx, q, s.maxMessages)
		})
	})
	if err != nil {
		return nil, upstream(StageScan, err)
	}
	return ids, nil
}

// ParseDateRange parses the startDate and endDate request parameters.
// Empty values leave the bound open.
func ParseDateRange(start, end string) (gmail.DateRange, error) {
	var r gmail.DateRange
	var err error
	if r.Start, err = gmail.ParseDate(start); err != nil {
		return gmail.DateRange{}, &ValidationError{Field: "startDate", Reason: err.Error()}
	}
	if r.End, err = gmail.ParseDate(end); err != nil {
		return gmail.DateRange{}, &ValidationError{Field: "endDate", Reason: err.Error()}
	}
	return r, nil
}

// observe times a Google API call and records it under service/operation
func observe[T any](ctx context.Context, m *instrumentation.Metrics, service, operation string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, service, operation)
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	m.RecordGoogleAPIOperation(ctx, service, operation, status, time.Since(start))
	return v, err
}
