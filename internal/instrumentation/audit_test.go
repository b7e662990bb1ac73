package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestAuditLogger_LogRun(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	audit := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true})

	record := NewRunRecord(context.Background(), "jane@example.com", "http")
	record.Messages = 2
	record.Uploaded = 3
	record.Duplicate = 1
	audit.LogRun(context.Background(), record.Complete(nil))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "pipeline_run", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "example.com", entry["user_domain"])
	assert.Equal(t, float64(3), entry["uploaded"])
	assert.NotContains(t, buf.String(), "jane@example.com")
}

func TestAuditLogger_FailedRunWithPII(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	audit := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true, IncludePII: true})

	record := NewRunRecord(context.Background(), "jane@example.com", "cli")
	audit.LogRun(context.Background(), record.Complete(errors.New("scan failed")))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "pipeline_run_failed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "jane@example.com", entry["mailbox"])
	assert.Equal(t, "scan failed", entry["error"])
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	audit.LogRun(context.Background(), NewRunRecord(context.Background(), "a@b.c", "cli").Complete(nil))
	assert.Empty(t, buf.String())

	var nilAudit *AuditLogger
	assert.NotPanics(t, func() { nilAudit.LogRun(context.Background(), &RunRecord{}) })
}
