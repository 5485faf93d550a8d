package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// MaxRequests is the largest batch the client may issue in one run.
const MaxRequests = 100

// OutputFormat selects how the client renders its final report.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	// Propagate overrides whether W3C trace headers are sent. Nil follows Enabled.
	Propagate *bool `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, either
// directly or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace context is injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// ServerConfig holds the settings of calltime-server.
type ServerConfig struct {
	Addr                 string        `mapstructure:"addr"`
	MaxConnections       int           `mapstructure:"max_connections"`
	MinDelay             time.Duration `mapstructure:"min_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	MaxConcurrentStreams int           `mapstructure:"max_concurrent_streams"`
	MetricsAddr          string        `mapstructure:"metrics_addr"`
	ReportInterval       time.Duration `mapstructure:"report_interval"`
	LogLevel             string        `mapstructure:"log_level"`
	Tracing              TracingConfig `mapstructure:"tracing"`
	ConfigFile           string        `mapstructure:"-"`
}

// ClientConfig holds the settings of calltime-client.
type ClientConfig struct {
	Addr           string        `mapstructure:"addr"`
	Requests       int           `mapstructure:"nreqs"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Rate           int           `mapstructure:"rate"`
	Output         OutputFormat  `mapstructure:"output"`
	LogLevel       string        `mapstructure:"log_level"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	ConfigFile     string        `mapstructure:"-"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns each validation problem as its own message.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate reports every invalid server setting at once.
func (c ServerConfig) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Addr) == "" {
		issues = append(issues, "addr is required (use --help for usage information)")
	} else if err := validateAddr(c.Addr); err != nil {
		issues = append(issues, fmt.Sprintf("addr: %v", err))
	}
	if c.MaxConnections < 1 {
		issues = append(issues, "max_connections must be at least 1")
	}
	if c.MinDelay < 0 {
		issues = append(issues, "min_delay must be non-negative")
	}
	if c.MaxDelay < c.MinDelay {
		issues = append(issues, "max_delay must be greater than or equal to min_delay")
	}
	if c.MaxConcurrentStreams < 0 {
		issues = append(issues, "max_concurrent_streams must be non-negative")
	}
	if c.MetricsAddr != "" {
		if err := validateAddr(c.MetricsAddr); err != nil {
			issues = append(issues, fmt.Sprintf("metrics_addr: %v", err))
		}
	}
	if c.ReportInterval < 0 {
		issues = append(issues, "report_interval must be non-negative")
	}
	issues = append(issues, validateLogLevel(c.LogLevel)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Validate reports every invalid client setting at once.
func (c ClientConfig) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Addr) == "" {
		issues = append(issues, "addr is required")
	} else if err := validateAddr(c.Addr); err != nil {
		issues = append(issues, fmt.Sprintf("addr: %v", err))
	}
	if c.Requests < 1 || c.Requests > MaxRequests {
		issues = append(issues, fmt.Sprintf("nreqs must be between 1 and %d, got %d", MaxRequests, c.Requests))
	}
	if c.ConnectTimeout <= 0 {
		issues = append(issues, "connect_timeout must be greater than zero")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be non-negative")
	}
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be one of text, json, yaml, got %q", c.Output))
	}
	issues = append(issues, validateLogLevel(c.LogLevel)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if port == "" {
		return fmt.Errorf("missing port in %q", addr)
	}
	return nil
}

func validateLogLevel(level string) []string {
	if level == "" {
		return nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return []string{fmt.Sprintf("log_level %q is not a valid level", level)}
	}
	return nil
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample_rate must be between 0.0 and 1.0")
	}
	return issues
}
