// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for the prune commands.
package observability

import "log/slog"

// AppMode identifies the command the binary was launched with.
type AppMode string

const (
	// ModeRun rewrites source files.
	ModeRun AppMode = "run"
	// ModeValidate checks rule files.
	ModeValidate AppMode = "validate"
	// ModeGraph prints the rule graph.
	ModeGraph AppMode = "graph"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "prune"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the version of the running binary.
	ServiceVersion string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporters.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// Prometheus attaches a Prometheus reader to the meter provider and
	// exposes its scrape handler in Providers.MetricsHandler.
	Prometheus bool

	// SampleRatio is the trace sampling ratio; zero samples every root span.
	SampleRatio float64

	// TraceVerbose keeps the per-file rewrite spans. When false only the
	// batch and round spans are exported.
	TraceVerbose bool

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeRun,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
