package instrumentation

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: attachsort)
	ServiceName string

	ServiceVersion string

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string

	K8sNamespace string
	K8sPodName   string

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool

	// MetricsExporter is one of prometheus, otlp or stdout (default: prometheus)
	MetricsExporter string

	// TracingExporter is one of otlp, stdout or none (default: none)
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint without protocol prefix
	OTLPEndpoint string

	// OTLPInsecure uses plain HTTP for OTLP export. Local development only.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// MetricInterval is the push interval of the otlp and stdout exporters
	MetricInterval time.Duration

	// PrometheusEndpoint is the path for the Prometheus metrics endpoint (default: "/metrics")
	PrometheusEndpoint string

	// StageBuckets overrides the histogram boundaries, in seconds, of
	// pipeline_stage_duration_seconds. OCR of multi-page PDFs and large
	// uploads routinely exceed the default 30s top bucket.
	StageBuckets []float64

	// DetailedLabels adds the mailbox domain to attachment metrics.
	// Keep disabled in production to bound cardinality.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig configures the per-run audit log.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs full mailbox addresses instead of anonymized identifiers.
	IncludePII bool
}

// DefaultConfig returns a Config read from the standard OTEL_* variables and
// the attachsort specific ones.
func DefaultConfig() Config {
	env := envReader(os.Getenv)
	return Config{
		ServiceName:        env.str("OTEL_SERVICE_NAME", "attachsort"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  env.str("OTEL_SERVICE_INSTANCE_ID", ""),
		K8sNamespace:       env.str("K8S_NAMESPACE", env.str("POD_NAMESPACE", "")),
		K8sPodName:         env.str("K8S_POD_NAME", env.str("HOSTNAME", "")),
		Enabled:            env.boolean("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:    env.str("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:    env.str("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:       env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:       env.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:  env.float("OTEL_TRACES_SAMPLER_ARG", 0.1),
		MetricInterval:     env.millis("OTEL_METRIC_EXPORT_INTERVAL", DefaultMetricInterval),
		PrometheusEndpoint: env.str("PROMETHEUS_ENDPOINT", "/metrics"),
		StageBuckets:       env.floats("PIPELINE_STAGE_BUCKETS"),
		DetailedLabels:     env.boolean("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    env.boolean("AUDIT_LOGGING_ENABLED", true),
			IncludePII: env.boolean("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}

	if len(c.StageBuckets) > 0 && !slices.IsSorted(c.StageBuckets) {
		return fmt.Errorf("stage buckets must be in increasing order, got %v", c.StageBuckets)
	}
	return nil
}

// envReader reads typed settings, falling back to the default on empty or
// malformed values.
type envReader func(string) string

func (e envReader) str(key, def string) string {
	if v := e(key); v != "" {
		return v
	}
	return def
}

func (e envReader) boolean(key string, def bool) bool {
	if b, err := strconv.ParseBool(e(key)); err == nil {
		return b
	}
	return def
}

func (e envReader) float(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(e(key), 64); err == nil {
		return f
	}
	return def
}

// millis reads an integer number of milliseconds, the unit OTel uses for
// interval variables.
func (e envReader) millis(key string, def time.Duration) time.Duration {
	if n, err := strconv.Atoi(e(key)); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

// floats reads a comma-separated list. Any malformed entry discards the list.
func (e envReader) floats(key string) []float64 {
	v := e(key)
	if v == "" {
		return nil
	}
	var out []float64
	for _, s := range strings.Split(v, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	// Classification results
	ClassifyResultLabel    = "label"
	ClassifyResultFallback = "fallback"
	ClassifyResultSkipped  = "skipped"

	ServiceGmail  = "gmail"
	ServiceDrive  = "drive"
	ServiceVision = "vision"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)
