package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/attachsort/internal/category"
	"github.com/teemow/attachsort/internal/dedup"
	"github.com/teemow/attachsort/internal/drive"
	"github.com/teemow/attachsort/internal/folders"
	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/logging"
	"github.com/teemow/attachsort/internal/retry"
)

// DefaultConcurrency is the number of attachments processed at once
const DefaultConcurrency = 4

// StageTimeouts bound each external call. Zero disables the bound.
type StageTimeouts struct {
	Mail     time.Duration
	Upload   time.Duration
	OCR      time.Duration
	Classify time.Duration
	Resolve  time.Duration
	Move     time.Duration
}

// DefaultStageTimeouts returns the timeouts used when none are configured
func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Mail:     30 * time.Second,
		Upload:   2 * time.Minute,
		OCR:      time.Minute,
		Classify: 30 * time.Second,
		Resolve:  30 * time.Second,
		Move:     30 * time.Second,
	}
}

// Config configures a Runner
type Config struct {
	// Concurrency bounds parallel work (default DefaultConcurrency)
	Concurrency int

	// MaxMessages bounds the scan (default DefaultMaxMessages)
	MaxMessages int64

	// RootFolderID places category folders under this Drive folder
	RootFolderID string

	Timeouts StageTimeouts

	// RunTimeout is the run deadline. Zero means no deadline.
	RunTimeout time.Duration

	Retry retry.Policy

	// Trigger identifies the caller in the audit log ("http", "cli")
	Trigger string

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// Deps are the collaborators of a run. Mail, Storage and Dedup are required.
// A nil OCR extracts no text and a nil Classifier files everything as
// Uncategorized.
type Deps struct {
	// Mailbox scopes deduplication, normally the account's email address
	Mailbox string

	Mail       MailSource
	Storage    Storage
	OCR        TextExtractor
	Classifier Classifier
	Dedup      dedup.Index
}

// Runner executes pipeline runs for one mailbox
type Runner struct {
	deps      Deps
	cfg       Config
	scanner   *Scanner
	extractor *Extractor
	logger    *slog.Logger
}

// NewRunner validates deps and applies defaults
func NewRunner(deps Deps, cfg Config) (*Runner, error) {
	switch {
	case deps.Mailbox == "":
		return nil, fmt.Errorf("mailbox is required")
	case deps.Mail == nil:
		return nil, fmt.Errorf("mail source is required")
	case deps.Storage == nil:
		return nil, fmt.Errorf("storage is required")
	case deps.Dedup == nil:
		return nil, fmt.Errorf("dedup index is required")
	}
	if deps.OCR == nil {
		deps.OCR = noText{}
	}
	if deps.Classifier == nil {
		deps.Classifier = uncategorized{}
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeouts == (StageTimeouts{}) {
		cfg.Timeouts = DefaultStageTimeouts()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		deps:      deps,
		cfg:       cfg,
		scanner:   NewScanner(deps.Mail, cfg.MaxMessages, cfg.Retry.WithTimeout(cfg.Timeouts.Mail), cfg.Metrics),
		extractor: NewExtractor(deps.Mail, cfg.Retry.WithTimeout(cfg.Timeouts.Mail), cfg.Metrics),
		logger:    logging.WithOperation(cfg.Logger, "pipeline.run").With(logging.UserHash(deps.Mailbox)),
	}, nil
}

// Run scans the mailbox for r and processes every attachment found. The
// returned error is non-nil only when the scan itself fails; per-attachment
// failures are reported in the Report.
func (r *Runner) Run(ctx context.Context, dr gmail.DateRange) (report *Report, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "pipeline.run",
		instrumentation.NewSpanAttributeBuilder().WithAccount(logging.AnonymizeEmail(r.deps.Mailbox)).Build()...)
	defer span.End()

	record := instrumentation.NewRunRecord(ctx, r.deps.Mailbox, r.cfg.Trigger)
	defer func() {
		if report != nil {
			record.Messages = report.Messages
			record.Uploaded = report.Counts.Uploaded
			record.Duplicate = report.Counts.Duplicate
			record.Failed = report.Counts.Failed
			record.Incomplete = report.Incomplete
		}
		r.cfg.Audit.LogRun(ctx, record.Complete(err))
		instrumentation.SetSpanError(span, err)
	}()

	runCtx := ctx
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	ids, err := r.scanner.Scan(runCtx, dr)
	if err != nil {
		r.logger.Error("mailbox scan failed", logging.Err(err))
		return nil, err
	}
	r.logger.Info("mailbox scanned", slog.Int("messages", len(ids)))

	results := &collector{}
	parts := r.collectParts(runCtx, ids, results)

	resolver := folders.NewResolver(r.deps.Storage, folders.Config{
		RootFolderID: r.cfg.RootFolderID,
		Timeout:      r.cfg.Timeouts.Resolve,
		Retry:        r.cfg.Retry,
		Metrics:      r.cfg.Metrics,
		Logger:       r.cfg.Logger,
	})
	r.processParts(runCtx, parts, resolver, results)

	report = results.build(r.deps.Mailbox, len(ids))
	report.Folders = resolver.Records()

	r.logger.Info("run finished",
		slog.Int("uploaded", report.Counts.Uploaded),
		slog.Int("duplicate", report.Counts.Duplicate),
		slog.Int("failed", report.Counts.Failed),
		slog.Bool("incomplete", report.Incomplete))
	return report, nil
}

// partRef is an attachment part scheduled for processing. seq orders
// results by message, then by part.
type partRef struct {
	seq  int
	info *gmail.AttachmentInfo
}

// seqStride leaves room for every part of a message between two message sequence numbers
const seqStride = 1 << 16

// collectParts lists the attachment parts of every message. A message that
// cannot be fetched is recorded as a failure and skipped.
func (r *Runner) collectParts(runCtx context.Context, ids []string, results *collector) []partRef {
	perMessage := make([][]partRef, len(ids))

	r.forEach(runCtx, len(ids), results, func(ctx context.Context, i int) {
		infos, err := r.extractor.Parts(ctx, ids[i])
		if err != nil {
			r.logger.Warn("failed to fetch message", logging.MessageID(ids[i]), logging.Err(err))
			results.add(i*seqStride, messageFailure(ids[i], err))
			r.cfg.Metrics.RecordAttachment(ctx, string(StatusFailed), r.deps.Mailbox)
			return
		}
		for j, info := range infos {
			if info.MessageID == "" {
				info.MessageID = ids[i]
			}
			perMessage[i] = append(perMessage[i], partRef{seq: i*seqStride + j + 1, info: info})
		}
	})

	var parts []partRef
	for _, p := range perMessage {
		parts = append(parts, p...)
	}
	return parts
}

func (r *Runner) processParts(runCtx context.Context, parts []partRef, resolver *folders.Resolver, results *collector) {
	r.forEach(runCtx, len(parts), results, func(ctx context.Context, i int) {
		res := r.process(ctx, parts[i].info, resolver)
		results.add(parts[i].seq, res)
		r.cfg.Metrics.RecordAttachment(ctx, string(res.Status), r.deps.Mailbox)
	})
}

// forEach runs fn for indexes [0,n) with bounded concurrency. Once runCtx is
// done no further index is started and the run is marked incomplete. Work
// already started continues on a context that ignores the run deadline.
func (r *Runner) forEach(runCtx context.Context, n int, results *collector, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for i := 0; i < n; i++ {
		if runCtx.Err() != nil {
			results.markIncomplete()
			break
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				results.markIncomplete()
				return nil
			}
			fn(context.WithoutCancel(runCtx), i)
			return nil
		})
	}
	_ = g.Wait()
}

// process drives one attachment through the state machine
func (r *Runner) process(ctx context.Context, part *gmail.AttachmentInfo, resolver *folders.Resolver) Result {
	res := Result{
		MessageID: part.MessageID,
		PartID:    part.PartID,
		Filename:  gmail.SanitizeFilename(part.Filename),
	}
	logger := r.logger.With(logging.MessageID(part.MessageID), logging.Filename(res.Filename))

	// Fetched -> Hashed
	var att Attachment
	err := r.stage(ctx, StageFetch, func(ctx context.Context) (err error) {
		att, err = r.extractor.Fetch(ctx, part)
		return err
	})
	if err != nil {
		return failed(logger, res, StateFetchFailed, err)
	}
	res.ContentHash = att.ContentHash
	res.State = StateHashed

	// Hashed -> Duplicate | Unique
	var claimed bool
	err = r.stage(ctx, StageDedup, func(ctx context.Context) (err error) {
		claimed, err = r.deps.Dedup.Claim(ctx, r.deps.Mailbox, att.ContentHash)
		if err != nil {
			return upstream(StageDedup, err)
		}
		return nil
	})
	if err != nil {
		return failed(logger, res, StateDedupFailed, err)
	}
	if !claimed {
		// an earlier run may have uploaded the content without filing it
		fileID, err := r.deps.Dedup.TakePending(ctx, r.deps.Mailbox, att.ContentHash)
		if err != nil {
			logger.Warn("failed to look up pending upload", logging.Err(err))
		}
		if fileID == "" {
			res.Status = StatusDuplicate
			res.State = StateDuplicate
			logger.Info("skipping duplicate attachment", logging.Status(string(StatusDuplicate)))
			return res
		}
		logger.Info("resuming filing of an earlier upload", slog.String("file_id", fileID))
		res.FileID = fileID
		res.Resumed = true
		res.State = StateUploaded
		return r.file(ctx, res, att, resolver, logger)
	}

	// Unique -> Uploaded
	var file *drive.FileInfo
	err = r.stage(ctx, StageUpload, func(ctx context.Context) (err error) {
		file, err = observe(ctx, r.cfg.Metrics, instrumentation.ServiceDrive, instrumentation.OperationCreate, func(ctx context.Context) (*drive.FileInfo, error) {
			return retry.Do(ctx, r.cfg.Retry.WithTimeout(r.cfg.Timeouts.Upload), func(ctx context.Context) (*drive.FileInfo, error) {
				return r.deps.Storage.UploadFile(ctx, att.Filename, bytes.NewReader(att.Data), &drive.UploadOptions{
					MimeType: att.MimeType,
				})
			})
		})
		if err != nil {
			return upstream(StageUpload, err)
		}
		return nil
	})
	if err != nil {
		if ferr := r.deps.Dedup.Forget(ctx, r.deps.Mailbox, att.ContentHash); ferr != nil {
			logger.Warn("failed to release dedup claim", logging.Err(ferr))
		}
		return failed(logger, res, StateUploadFailed, err)
	}
	res.FileID = file.ID
	res.State = StateUploaded
	r.keepPending(ctx, logger, att.ContentHash, file.ID)

	return r.file(ctx, res, att, resolver, logger)
}

// file takes an uploaded attachment from Uploaded to Done. The upload stays
// pending in the dedup index until the move succeeds, so a run that fails to
// resolve or move leaves it for the next run to finish.
func (r *Runner) file(ctx context.Context, res Result, att Attachment, resolver *folders.Resolver, logger *slog.Logger) Result {
	// Uploaded -> TextExtracted
	var text string
	_ = r.stage(ctx, StageOCR, func(ctx context.Context) error {
		ctx, cancel := withTimeout(ctx, r.cfg.Timeouts.OCR)
		defer cancel()
		text = r.deps.OCR.Extract(ctx, att.Data, att.MimeType)
		return nil
	})
	res.State = StateTextExtracted

	// TextExtracted -> Classified
	var cat category.Category
	_ = r.stage(ctx, StageClassify, func(ctx context.Context) error {
		ctx, cancel := withTimeout(ctx, r.cfg.Timeouts.Classify)
		defer cancel()
		cat = category.FromLabel(string(r.deps.Classifier.Classify(ctx, text)))
		return nil
	})
	res.Category = cat
	res.State = StateClassified

	// Classified -> FolderResolved
	var folderID string
	err := r.stage(ctx, StageResolve, func(ctx context.Context) (err error) {
		ctx, cancel := withTimeout(ctx, r.cfg.Timeouts.Resolve)
		defer cancel()
		folderID, err = resolver.Resolve(ctx, cat)
		if err != nil {
			return upstream(StageResolve, err)
		}
		return nil
	})
	if err != nil {
		r.keepPending(ctx, logger, att.ContentHash, res.FileID)
		return failed(logger, res, StateResolveFailed, err)
	}
	res.FolderID = folderID
	res.State = StateFolderResolved

	// FolderResolved -> Moved
	err = r.stage(ctx, StageMove, func(ctx context.Context) error {
		_, err := observe(ctx, r.cfg.Metrics, instrumentation.ServiceDrive, instrumentation.OperationUpdate, func(ctx context.Context) (*drive.FileInfo, error) {
			return retry.Do(ctx, r.cfg.Retry.WithTimeout(r.cfg.Timeouts.Move), func(ctx context.Context) (*drive.FileInfo, error) {
				return r.deps.Storage.AddParent(ctx, res.FileID, folderID)
			})
		})
		if err != nil {
			return upstream(StageMove, err)
		}
		return nil
	})
	if err != nil {
		r.keepPending(ctx, logger, att.ContentHash, res.FileID)
		return failed(logger, res, StateMoveFailed, err)
	}
	res.State = StateMoved

	if err := r.deps.Dedup.Record(ctx, r.deps.Mailbox, att.ContentHash); err != nil {
		logger.Warn("failed to clear pending upload", logging.Err(err))
	}

	// Moved -> Done
	res.Status = StatusUploaded
	res.State = StateDone
	logger.Info("attachment filed", logging.Category(cat.String()), logging.Status(string(StatusUploaded)),
		slog.Bool("resumed", res.Resumed))
	return res
}

// keepPending remembers fileID as uploaded but not filed
func (r *Runner) keepPending(ctx context.Context, logger *slog.Logger, hash, fileID string) {
	if err := r.deps.Dedup.SetPending(ctx, r.deps.Mailbox, hash, fileID); err != nil {
		logger.Warn("failed to mark upload pending", slog.String("file_id", fileID), logging.Err(err))
	}
}

func failed(logger *slog.Logger, res Result, state State, err error) Result {
	res.Status = StatusFailed
	res.State = state
	res.Error = err.Error()
	logger.Warn("attachment failed", slog.String("state", string(state)), logging.Err(err))
	return res
}

// stage runs fn inside a span and records its duration
func (r *Runner) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartStageSpan(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	span.SetAttributes(attribute.String(instrumentation.SpanAttrStatus, status))
	r.cfg.Metrics.RecordStage(ctx, name, status, time.Since(start))
	return err
}
