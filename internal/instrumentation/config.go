package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: applytrack)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool

	// MetricsExporter specifies the metrics exporter type
	// Options: "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter specifies the tracing exporter type
	// Options: "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint, e.g. "localhost:4318"
	OTLPEndpoint string

	// OTLPInsecure uses plain HTTP for OTLP export. Local development only.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// DetailedLabels adds high-cardinality labels (recipient domain) to
	// application metrics. Keep disabled in production.
	DetailedLabels bool

	// AuditLogging configures the workflow audit log.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludePII logs raw owner ids and recipient addresses instead of hashes.
	// SECURITY: Ensure audit logs are stored securely with appropriate access controls.
	IncludePII bool
}

// DefaultConfig returns a Config with defaults taken from the standard
// OpenTelemetry environment variables. The application config layer
// overrides the exporter settings afterwards.
func DefaultConfig() Config {
	return Config{
		ServiceName:       envString("OTEL_SERVICE_NAME", "applytrack"),
		ServiceVersion:    "unknown",
		ServiceInstanceID: envString("OTEL_SERVICE_INSTANCE_ID", ""),
		Enabled:           envParsed("INSTRUMENTATION_ENABLED", true, strconv.ParseBool),
		MetricsExporter:   envString("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   envString("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      envParsed("OTEL_EXPORTER_OTLP_INSECURE", false, strconv.ParseBool),
		TraceSamplingRate: envParsed("OTEL_TRACES_SAMPLER_ARG", 0.1, parseFloat),
		DetailedLabels:    envParsed("METRICS_DETAILED_LABELS", false, strconv.ParseBool),
		AuditLogging: AuditLoggingConfig{
			Enabled:    envParsed("AUDIT_LOGGING_ENABLED", true, strconv.ParseBool),
			IncludePII: envParsed("AUDIT_LOGGING_INCLUDE_PII", false, strconv.ParseBool),
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate))
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter))
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter))
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		errs = append(errs, errors.New("OTLP endpoint is required when exporting with OTLP"))
	}

	return errors.Join(errs...)
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envParsed returns fallback when key is unset or does not parse.
func envParsed[T any](key string, fallback T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := parse(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// OAuth result values
	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"
	OAuthResultSkipped = "skipped" // another caller refreshed first

	// Sync outcomes, one per candidate message
	SyncOutcomeMatched   = "matched"
	SyncOutcomeUnmatched = "unmatched"
	SyncOutcomeSkipped   = "skipped"
	SyncOutcomeFailed    = "failed"

	// Notification results
	NotifyResultDelivered = "delivered"
	NotifyResultFailed    = "failed"
	NotifyResultDropped   = "dropped"

	// Google service names
	ServiceGmail = "gmail"
	ServiceOAuth = "oauth"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)

// Operation types for Google API metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationSend     = "send"
	OperationRefresh  = "refresh"
	OperationExchange = "exchange"
)
