package telemetry

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the telemetry configuration for one weft process.
type Config struct {
	// ServiceName identifies the process in traces and metrics.
	ServiceName string `json:"service_name" yaml:"service_name" validate:"required"`

	// ServiceVersion is the build version.
	ServiceVersion string `json:"service_version" yaml:"service_version" validate:"required"`

	// Environment names the deployment environment.
	Environment string `json:"environment" yaml:"environment"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level.
	Level string `json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal"`

	// Format selects console or json output.
	Format string `json:"format" yaml:"format" validate:"oneof=console json"`

	// Output is stdout, stderr, or a file path.
	Output string `json:"output" yaml:"output" validate:"required"`

	// EnableCaller adds file:line caller information.
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`

	// EnableSampling samples high-frequency logs.
	EnableSampling bool `json:"enable_sampling" yaml:"enable_sampling"`

	// SamplingInitial is the per-second burst logged before sampling.
	SamplingInitial int `json:"sampling_initial" yaml:"sampling_initial" validate:"min=0"`

	// SamplingThereafter logs every Nth message after the burst.
	SamplingThereafter int `json:"sampling_thereafter" yaml:"sampling_thereafter" validate:"min=0"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporter selects the span exporter.
	Exporter string `json:"exporter" yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// SamplingRate is the trace sampling ratio.
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" validate:"min=0,max=1"`

	// ExportTimeout bounds each export batch.
	ExportTimeout time.Duration `json:"export_timeout" yaml:"export_timeout"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `json:"insecure" yaml:"insecure"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultConfig returns the CLI defaults: console logs on stderr, tracing
// and metrics off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "weft",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
		},
		Tracing: TracingConfig{
			Exporter:      "stdout",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Namespace: "weft",
		},
	}
}

// ServerConfig returns the runner service defaults: JSON logs, tracing and
// metrics enabled.
func ServerConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stdout"
	cfg.Tracing.Enabled = true
	cfg.Metrics.Enabled = true
	return cfg
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}
