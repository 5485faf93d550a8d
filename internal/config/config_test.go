package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/calltime/internal/config"
)

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := config.NewLoader().LoadClient([]string{})
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}

	if cfg.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q, want 127.0.0.1:8080", cfg.Addr)
	}
	if cfg.Requests != 0 {
		t.Errorf("Requests = %d, want 0", cfg.Requests)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %s, want 2s", cfg.ConnectTimeout)
	}
	if cfg.Output != config.OutputText {
		t.Errorf("Output = %q, want text", cfg.Output)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := config.NewLoader().LoadServer([]string{"--addr", "127.0.0.1:9000"})
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}

	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.MaxConnections != 5 {
		t.Errorf("MaxConnections = %d, want 5", cfg.MaxConnections)
	}
	if cfg.MinDelay != 100*time.Millisecond || cfg.MaxDelay != 500*time.Millisecond {
		t.Errorf("delay range = [%s, %s], want [100ms, 500ms]", cfg.MinDelay, cfg.MaxDelay)
	}
	if cfg.MaxConcurrentStreams != 250 {
		t.Errorf("MaxConcurrentStreams = %d, want 250", cfg.MaxConcurrentStreams)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadHelpRequested(t *testing.T) {
	if _, err := config.NewLoader().LoadClient([]string{"--help"}); !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("LoadClient(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadRejectsPositionalArgs(t *testing.T) {
	if _, err := config.NewLoader().LoadClient([]string{"-n", "3", "extra"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

func TestLoadClientConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	if err := os.WriteFile(path, []byte(`
addr: 10.0.0.1:7000
nreqs: 40
connect_timeout: 5s
rate: 20
output: json
tracing:
  endpoint: localhost:4318
  protocol: http
  sample_rate: 0.5
  propagate: false
`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().LoadClient([]string{"--config", path, "--nreqs", "7"})
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}

	if cfg.Addr != "10.0.0.1:7000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Requests != 7 {
		t.Errorf("Requests = %d, want flag override 7", cfg.Requests)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %s, want 5s", cfg.ConnectTimeout)
	}
	if cfg.Rate != 20 {
		t.Errorf("Rate = %d, want 20", cfg.Rate)
	}
	if cfg.Output != config.OutputJSON {
		t.Errorf("Output = %q, want json", cfg.Output)
	}
	if cfg.Tracing.Endpoint != "localhost:4318" || cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("SampleRate = %g, want 0.5", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false from config file")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadServerConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.json")
	if err := os.WriteFile(path, []byte(`{
		"addr": "0.0.0.0:8080",
		"max_connections": 12,
		"min_delay": "10ms",
		"max_delay": "20ms",
		"metrics_addr": "127.0.0.1:9100",
		"log_level": "debug"
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().LoadServer([]string{"--config", path, "--max-connections", "3"})
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.MaxConnections != 3 {
		t.Errorf("MaxConnections = %d, want flag override 3", cfg.MaxConnections)
	}
	if cfg.MinDelay != 10*time.Millisecond || cfg.MaxDelay != 20*time.Millisecond {
		t.Errorf("delay range = [%s, %s]", cfg.MinDelay, cfg.MaxDelay)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestClientValidateRequestCount(t *testing.T) {
	tests := []struct {
		name    string
		nreqs   int
		wantErr bool
	}{
		{name: "zero", nreqs: 0, wantErr: true},
		{name: "one", nreqs: 1},
		{name: "max", nreqs: config.MaxRequests},
		{name: "above max", nreqs: config.MaxRequests + 1, wantErr: true},
		{name: "negative", nreqs: -3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.ClientConfig{
				Addr:           "127.0.0.1:8080",
				Requests:       tt.nreqs,
				ConnectTimeout: time.Second,
				Output:         config.OutputText,
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "nreqs") {
				t.Fatalf("Validate() error = %v, want nreqs issue", err)
			}
		})
	}
}

func TestClientValidateCollectsIssues(t *testing.T) {
	cfg := config.ClientConfig{
		Addr:           "no-port",
		Requests:       101,
		ConnectTimeout: 0,
		Rate:           -1,
		Output:         "xml",
		LogLevel:       "chatty",
		Tracing:        config.TracingConfig{Protocol: "thrift", SampleRate: 2},
	}
	err := cfg.Validate()
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if got := len(verr.Issues()); got != 8 {
		t.Fatalf("len(Issues()) = %d, want 8: %v", got, verr.Issues())
	}
}

func TestServerValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.ServerConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.ServerConfig) {}},
		{name: "missing addr", mutate: func(c *config.ServerConfig) { c.Addr = "" }, wantErr: "addr is required"},
		{name: "zero connections", mutate: func(c *config.ServerConfig) { c.MaxConnections = 0 }, wantErr: "max_connections"},
		{name: "inverted delays", mutate: func(c *config.ServerConfig) { c.MinDelay = time.Second }, wantErr: "max_delay"},
		{name: "bad metrics addr", mutate: func(c *config.ServerConfig) { c.MetricsAddr = "9100" }, wantErr: "metrics_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.ServerConfig{
				Addr:           ":8080",
				MaxConnections: 5,
				MinDelay:       100 * time.Millisecond,
				MaxDelay:       500 * time.Millisecond,
				LogLevel:       "info",
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTracingShouldPropagate(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	off := false
	on := true

	if (config.TracingConfig{}).ShouldPropagate() {
		t.Error("disabled tracing propagates")
	}
	if !(config.TracingConfig{Endpoint: "localhost:4317"}).ShouldPropagate() {
		t.Error("enabled tracing does not propagate")
	}
	if (config.TracingConfig{Endpoint: "localhost:4317", Propagate: &off}).ShouldPropagate() {
		t.Error("explicit propagate=false ignored")
	}
	if !(config.TracingConfig{Propagate: &on}).ShouldPropagate() {
		t.Error("explicit propagate=true ignored")
	}
}
