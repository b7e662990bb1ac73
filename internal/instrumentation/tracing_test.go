package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithStage("upload").
		WithService(ServiceDrive).
		WithOperation(OperationCreate).
		WithAccount("user:abcd").
		WithMessage("").
		WithCategory("Financial").
		Build()

	got := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		got[string(attr.Key)] = attr.Value.AsInterface()
	}

	assert.Equal(t, map[string]any{
		SpanAttrStage:     "upload",
		SpanAttrService:   ServiceDrive,
		SpanAttrOperation: OperationCreate,
		SpanAttrAccount:   "user:abcd",
		SpanAttrCategory:  "Financial",
	}, got, "empty message id is omitted")
}

func TestSpans(t *testing.T) {
	ctx := context.Background()

	ctx, span := StartSpan(ctx, "pipeline.run")
	defer span.End()

	_, stage := StartStageSpan(ctx, "classify")
	SetSpanSuccess(stage)
	stage.End()

	_, api := StartGoogleAPISpan(ctx, ServiceGmail, OperationList)
	SetSpanError(api, errors.New("boom"))
	SetSpanError(api, nil)
	api.End()

	// Without a configured tracer provider spans are non-recording.
	assert.Equal(t, "", GetTraceID(context.Background()))
}
