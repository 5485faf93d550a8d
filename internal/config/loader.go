package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadServer parses calltime-server arguments and an optional config file.
// Flags override file values. The result is not validated.
func (Loader) LoadServer(args []string) (*ServerConfig, error) {
	fs, settings, configPath, err := parseCommand(newServerCommand(), args)
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		MaxConnections:       5,
		MinDelay:             100 * time.Millisecond,
		MaxDelay:             500 * time.Millisecond,
		MaxConcurrentStreams: 250,
		LogLevel:             "info",
		Tracing:              TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		ConfigFile:           configPath,
	}

	if err := applyServerSettings(cfg, settings); err != nil {
		return nil, err
	}
	if err := applyServerFlags(cfg, fs); err != nil {
		return nil, err
	}
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	return cfg, nil
}

// LoadClient parses calltime-client arguments and an optional config file.
// Flags override file values. The result is not validated.
func (Loader) LoadClient(args []string) (*ClientConfig, error) {
	fs, settings, configPath, err := parseCommand(newClientCommand(), args)
	if err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		Addr:           "127.0.0.1:8080",
		ConnectTimeout: 2 * time.Second,
		Output:         OutputText,
		LogLevel:       "warn",
		Tracing:        TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		ConfigFile:     configPath,
	}

	if err := applyClientSettings(cfg, settings); err != nil {
		return nil, err
	}
	if err := applyClientFlags(cfg, fs); err != nil {
		return nil, err
	}
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	return cfg, nil
}

// parseCommand parses args against cmd's flags and reads the config file
// named by --config, if any.
func parseCommand(cmd *cobra.Command, args []string) (*pflag.FlagSet, map[string]interface{}, string, error) {
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, nil, "", ErrHelpRequested
		}
		return nil, nil, "", err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, nil, "", ErrHelpRequested
		}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, nil, "", fmt.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, nil, "", err
		}
	}
	return flagSet, cfgViper.AllSettings(), configPath, nil
}

func applyServerSettings(cfg *ServerConfig, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "addr", "address"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("addr: %w", err)
		}
		cfg.Addr = val
	}
	if raw, ok := lookupSetting(settings, "max_connections", "maxConnections", "max-connections"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_connections: %w", err)
		}
		cfg.MaxConnections = val
	}
	if raw, ok := lookupSetting(settings, "min_delay", "minDelay", "min-delay"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("min_delay: %w", err)
		}
		cfg.MinDelay = val
	}
	if raw, ok := lookupSetting(settings, "max_delay", "maxDelay", "max-delay"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("max_delay: %w", err)
		}
		cfg.MaxDelay = val
	}
	if raw, ok := lookupSetting(settings, "max_concurrent_streams", "maxConcurrentStreams", "max-concurrent-streams"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_concurrent_streams: %w", err)
		}
		cfg.MaxConcurrentStreams = val
	}
	if raw, ok := lookupSetting(settings, "metrics_addr", "metricsAddr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "report_interval", "reportInterval", "report-interval"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("report_interval: %w", err)
		}
		cfg.ReportInterval = val
	}
	if raw, ok := lookupSetting(settings, "log_level", "logLevel", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = val
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func applyClientSettings(cfg *ClientConfig, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "addr", "address"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("addr: %w", err)
		}
		cfg.Addr = val
	}
	if raw, ok := lookupSetting(settings, "nreqs", "requests"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("nreqs: %w", err)
		}
		cfg.Requests = val
	}
	if raw, ok := lookupSetting(settings, "connect_timeout", "connectTimeout", "connect-timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = val
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}
	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if val != "" {
			cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
		}
	}
	if raw, ok := lookupSetting(settings, "log_level", "logLevel", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = val
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = val
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
