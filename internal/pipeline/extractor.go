package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/ocr"
	"github.com/teemow/attachsort/internal/retry"
)

// Extractor expands messages into decoded attachments
type Extractor struct {
	mail    MailSource
	policy  retry.Policy
	metrics *instrumentation.Metrics
}

// NewExtractor creates an Extractor
func NewExtractor(mail MailSource, policy retry.Policy, metrics *instrumentation.Metrics) *Extractor {
	return &Extractor{mail: mail, policy: policy, metrics: metrics}
}

// Parts lists the attachment parts of a message without downloading them
func (e *Extractor) Parts(ctx context.Context, messageID string) ([]*gmail.AttachmentInfo, error) {
	parts, err := observe(ctx, e.metrics, instrumentation.ServiceGmail, instrumentation.OperationGet, func(ctx context.Context) ([]*gmail.AttachmentInfo, error) {
		return retry.Do(ctx, e.policy, func(ctx context.Context) ([]*gmail.AttachmentInfo, error) {
			return e.mail.ListAttachments(ctx, messageID)
		})
	})
	if err != nil {
		return nil, upstream(StageFetch, err)
	}
	return parts, nil
}

// Fetch downloads and decodes one attachment part
func (e *Extractor) Fetch(ctx context.Context, part *gmail.AttachmentInfo) (Attachment, error) {
	if part.Size > gmail.MaxAttachmentSize {
		return Attachment{}, upstream(StageFetch, fmt.Errorf("attachment size %d exceeds maximum size %d", part.Size, gmail.MaxAttachmentSize))
	}

	data, err := observe(ctx, e.metrics, instrumentation.ServiceGmail, instrumentation.OperationGet, func(ctx context.Context) ([]byte, error) {
		return retry.Do(ctx, e.policy, func(ctx context.Context) ([]byte, error) {
			return e.mail.GetAttachment(ctx, part.MessageID, part.AttachmentID)
		})
	})
	if err != nil {
		return Attachment{}, upstream(StageFetch, err)
	}

	return NewAttachment(
		part.MessageID,
		part.PartID,
		gmail.SanitizeFilename(part.Filename),
		ocr.DetectMimeType(data, part.MimeType),
		data,
	), nil
}

func messageFailure(messageID string, err error) Result {
	return Result{
		MessageID: messageID,
		Status:    StatusFailed,
		State:     StateFetchFailed,
		Error:     err.Error(),
	}
}

// withTimeout derives a stage context. Zero means no extra bound.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
