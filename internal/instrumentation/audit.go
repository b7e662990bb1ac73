package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/attachsort/internal/logging"
)

// RunRecord captures the outcome of one pipeline run for the audit log.
//
// Mailbox holds PII. LogAttrs only ever emits its anonymized form.
type RunRecord struct {
	Mailbox string
	Trigger string // "http" or "cli"

	Messages   int
	Uploaded   int
	Duplicate  int
	Failed     int
	Incomplete bool

	StartTime time.Time
	Duration  time.Duration
	Error     string

	TraceID string
}

// NewRunRecord creates a RunRecord with timing started.
func NewRunRecord(ctx context.Context, mailbox, trigger string) *RunRecord {
	return &RunRecord{
		Mailbox:   mailbox,
		Trigger:   trigger,
		StartTime: time.Now(),
		TraceID:   GetTraceID(ctx),
	}
}

// Complete stamps the duration and optional error.
func (r *RunRecord) Complete(err error) *RunRecord {
	r.Duration = time.Since(r.StartTime)
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Success reports whether the run finished without a run-level error.
func (r *RunRecord) Success() bool {
	return r.Error == ""
}

// LogAttrs returns slog attributes using anonymized mailbox identifiers.
func (r *RunRecord) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.UserHash(r.Mailbox),
		slog.String("user_domain", ExtractUserDomain(r.Mailbox)),
		slog.String("trigger", r.Trigger),
		slog.Int("messages", r.Messages),
		slog.Int("uploaded", r.Uploaded),
		slog.Int("duplicate", r.Duplicate),
		slog.Int("failed", r.Failed),
		slog.Duration(logging.KeyDuration, r.Duration),
	}
	if r.Incomplete {
		attrs = append(attrs, slog.Bool("incomplete", true))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, r.Error))
	}
	return attrs
}

// AuditLogger writes one structured entry per pipeline run.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogRun logs a completed run. Full mailbox addresses are added only when
// IncludePII is configured.
func (al *AuditLogger) LogRun(ctx context.Context, r *RunRecord) {
	if al == nil || !al.enabled || r == nil {
		return
	}

	attrs := r.LogAttrs()
	if al.includePII {
		attrs = append(attrs, slog.String("mailbox", r.Mailbox))
	}

	level := slog.LevelInfo
	msg := "pipeline_run"
	if !r.Success() {
		level = slog.LevelWarn
		msg = "pipeline_run_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
