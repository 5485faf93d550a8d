package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "calltime-server",
		Short:         "Serve HTTP/2 echo requests with per-connection timing",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureServerFlags(cmd.Flags())
	return cmd
}

func newClientCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "calltime-client",
		Short:         "Issue a batch of concurrent requests over one HTTP/2 connection",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureClientFlags(cmd.Flags())
	return cmd
}

func configureServerFlags(flags *pflag.FlagSet) {
	flags.String("addr", "", "Address to listen on (host:port)")
	flags.Int("max-connections", 5, "Maximum number of connections served at once")
	flags.Duration("min-delay", 100*time.Millisecond, "Minimum simulated handler delay")
	flags.Duration("max-delay", 500*time.Millisecond, "Maximum simulated handler delay")
	flags.Int("max-concurrent-streams", 250, "HTTP/2 streams allowed per connection")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty disables)")
	flags.Duration("report-interval", 0, "Print a running connection report at this interval (0 disables)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")
	configureTracingFlags(flags)
}

func configureClientFlags(flags *pflag.FlagSet) {
	flags.String("addr", "127.0.0.1:8080", "Server address (host:port)")
	flags.IntP("nreqs", "n", 0, fmt.Sprintf("Number of requests to issue (1-%d)", MaxRequests))
	flags.Duration("connect-timeout", 2*time.Second, "Timeout for connecting and completing the handshake")
	flags.IntP("rate", "r", 0, "Requests per second limit (0 means unlimited)")
	flags.StringP("output", "o", string(OutputText), "Final report format: text, json or yaml")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")
	configureTracingFlags(flags)
}

func configureTracingFlags(flags *pflag.FlagSet) {
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Bool("tracing-insecure", false, "Export spans without TLS")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of traces sampled (0.0-1.0)")
	flags.Bool("tracing-propagate", false, "Send W3C trace context headers (defaults to on when tracing is enabled)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	if cmd.Short != "" {
		fmt.Fprintf(out, "%s\n\n", cmd.Short)
	}
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyServerFlags applies command-line flag values to the config, overriding
// values from the config file.
func applyServerFlags(cfg *ServerConfig, fs *pflag.FlagSet) error {
	if fs.Changed("addr") {
		val, err := fs.GetString("addr")
		if err != nil {
			return err
		}
		cfg.Addr = strings.TrimSpace(val)
	}
	if fs.Changed("max-connections") {
		val, err := fs.GetInt("max-connections")
		if err != nil {
			return err
		}
		cfg.MaxConnections = val
	}
	if fs.Changed("min-delay") {
		val, err := fs.GetDuration("min-delay")
		if err != nil {
			return err
		}
		cfg.MinDelay = val
	}
	if fs.Changed("max-delay") {
		val, err := fs.GetDuration("max-delay")
		if err != nil {
			return err
		}
		cfg.MaxDelay = val
	}
	if fs.Changed("max-concurrent-streams") {
		val, err := fs.GetInt("max-concurrent-streams")
		if err != nil {
			return err
		}
		cfg.MaxConcurrentStreams = val
	}
	if fs.Changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("report-interval") {
		val, err := fs.GetDuration("report-interval")
		if err != nil {
			return err
		}
		cfg.ReportInterval = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = val
	}
	return applyTracingFlags(&cfg.Tracing, fs)
}

// applyClientFlags applies command-line flag values to the config, overriding
// values from the config file.
func applyClientFlags(cfg *ClientConfig, fs *pflag.FlagSet) error {
	if fs.Changed("addr") {
		val, err := fs.GetString("addr")
		if err != nil {
			return err
		}
		cfg.Addr = strings.TrimSpace(val)
	}
	if fs.Changed("nreqs") {
		val, err := fs.GetInt("nreqs")
		if err != nil {
			return err
		}
		cfg.Requests = val
	}
	if fs.Changed("connect-timeout") {
		val, err := fs.GetDuration("connect-timeout")
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = val
	}
	return applyTracingFlags(&cfg.Tracing, fs)
}

func applyTracingFlags(t *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		t.Protocol = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		t.ServiceName = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		t.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		t.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		t.Propagate = &val
	}
	return nil
}
