package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/calltime/internal/config"
	"github.com/torosent/calltime/internal/dispatch"
	"github.com/torosent/calltime/internal/logging"
	"github.com/torosent/calltime/internal/output"
	"github.com/torosent/calltime/internal/tracing"
	"github.com/torosent/calltime/internal/transport"
)

const (
	serviceName     = "calltime-client"
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.LoadClient(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	// Nothing touches the network until the arguments are known good.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("tracing shutdown", "error", err)
		}
	}()

	sess, err := transport.Dial(ctx, cfg.Addr, transport.DialOptions{Timeout: cfg.ConnectTimeout})
	if err != nil {
		return err
	}
	defer sess.Close()
	logger.Debugw("connected", "addr", sess.Addr())

	d := dispatch.New(dispatch.Options{
		Caller:        dispatch.NewSessionCaller(sess, tp.CallTracer(), tp.ShouldPropagate()),
		RatePerSecond: cfg.Rate,
		Logger:        logger,
	})

	summary, err := d.Run(ctx, cfg.Requests, func(resp dispatch.Response) {
		fmt.Fprintf(stdout, "%s: %s\n", cfg.Addr, resp.Body)
	})
	if err != nil {
		return err
	}

	stats := sess.Stats()
	logger.Debugw("session traffic", "bytes_read", stats.BytesRead, "bytes_written", stats.BytesWritten)

	return writeReport(stdout, cfg.Output, output.NewReport(cfg.Addr, summary.Requested, summary.Completed, summary.Duration, d.Timing()))
}

func writeReport(w io.Writer, format config.OutputFormat, report output.Report) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, report)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, report)
	default:
		output.PrintReport(w, report)
		return nil
	}
}
