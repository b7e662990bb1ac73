package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"

	"github.com/teemow/attachsort/internal/dedup"
	"github.com/teemow/attachsort/internal/drive"
	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/retry"
)

// Factory builds Runners bound to one authenticated user. The shared
// collaborators (OCR, classifier, dedup index) are process-wide; the mail and
// storage clients are created per call from the caller's HTTP client so no
// credentials outlive the request that carried them.
type Factory struct {
	OCR        TextExtractor
	Classifier Classifier
	Dedup      dedup.Index
	Config     Config

	// GoogleOptions are passed to the Gmail and Drive service constructors
	GoogleOptions []option.ClientOption
}

// ForClient returns a Runner for the mailbox httpClient is authorized for
func (f *Factory) ForClient(ctx context.Context, httpClient *http.Client) (*Runner, error) {
	mail, err := gmail.NewClient(ctx, httpClient, f.GoogleOptions...)
	if err != nil {
		return nil, err
	}
	storage, err := drive.NewClient(ctx, httpClient, f.GoogleOptions...)
	if err != nil {
		return nil, err
	}

	timeouts := f.Config.Timeouts
	if timeouts == (StageTimeouts{}) {
		timeouts = DefaultStageTimeouts()
	}
	policy := f.Config.Retry.WithTimeout(timeouts.Mail)
	mailbox, err := observe(ctx, f.Config.Metrics, instrumentation.ServiceGmail, instrumentation.OperationGet, func(ctx context.Context) (string, error) {
		return retry.Do(ctx, policy, mail.EmailAddress)
	})
	if err != nil {
		if isUnauthorized(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, upstream(StageScan, err)
	}

	return NewRunner(Deps{
		Mailbox:    mailbox,
		Mail:       mail,
		Storage:    storage,
		OCR:        f.OCR,
		Classifier: f.Classifier,
		Dedup:      f.Dedup,
	}, f.Config)
}

// Storage returns a storage client for httpClient
func (f *Factory) Storage(ctx context.Context, httpClient *http.Client) (Storage, error) {
	return drive.NewClient(ctx, httpClient, f.GoogleOptions...)
}
