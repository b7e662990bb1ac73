// Package instrumentation provides OpenTelemetry instrumentation for attachsort.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - active_sessions: Gauge of active browser sessions
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Gmail, Drive and Vision calls by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API call durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of completed OAuth callbacks by result
//
// Pipeline Metrics:
//   - attachments_processed_total: Counter of attachment outcomes by status
//   - pipeline_stage_duration_seconds: Histogram of per-stage durations by stage and status
//   - folders_created_total: Counter of category folders created
//   - classifications_total: Counter of classification results by category and result
//
// # Tracing
//
// Spans are created per pipeline run (pipeline.run), per stage
// (pipeline.<stage>) and per Google API call (google.<service>.<operation>).
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: attachsort)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordAttachment(ctx, "uploaded")
//	recorder.RecordStage(ctx, "upload", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
