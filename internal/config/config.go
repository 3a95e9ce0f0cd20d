package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// TracingConfig controls OpenTelemetry export for the run.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether an export endpoint is configured, either directly
// or through the standard OTLP environment variable.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// Config is the immutable run configuration: created once at startup,
// read-only thereafter, shared by all workers.
type Config struct {
	Target         string        `mapstructure:"target"`
	Concurrency    int           `mapstructure:"concurrency"`
	Seed           int64         `mapstructure:"seed"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	Rate           int           `mapstructure:"rate"`
	Ops            []string      `mapstructure:"ops"`
	JSONReport     string        `mapstructure:"json_report"`
	Dashboard      bool          `mapstructure:"dashboard"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	ConfigFile     string        `mapstructure:"-"`
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target is required")
	}
	u, err := url.Parse(c.Target)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target must be an http(s) URL, got %q", c.Target)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be positive, got %s", c.ReportInterval)
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate cannot be negative, got %d", c.Rate)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate)
	}
	return nil
}
