package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/calltime/internal/admission"
	"github.com/torosent/calltime/internal/config"
	"github.com/torosent/calltime/internal/logging"
	"github.com/torosent/calltime/internal/metrics"
	"github.com/torosent/calltime/internal/output"
	"github.com/torosent/calltime/internal/server"
	"github.com/torosent/calltime/internal/tracing"
	"github.com/torosent/calltime/internal/transport"
)

const (
	serviceName     = "calltime-server"
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.LoadServer(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

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

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		stop, addr, err := serveMetrics(cfg.MetricsAddr, collector, logger)
		if err != nil {
			return err
		}
		defer stop()
		logger.Infow("metrics listening", "addr", addr)
	}

	admitted := admission.New(int64(cfg.MaxConnections))
	srv := server.New(server.Options{
		Admission:            admitted,
		Handler:              server.NewEchoHandler(cfg.MinDelay, cfg.MaxDelay),
		MaxConcurrentStreams: uint32(cfg.MaxConcurrentStreams),
		Logger:               logger,
		Summary:              os.Stdout,
		Metrics:              collector,
		Tracer:               tp.CallTracer(),
	})

	ln, err := transport.Listen(ctx, cfg.Addr)
	if err != nil {
		return err
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	// Serve failing ends the wait the same way a signal does.
	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(serveCtx, ln)
		cancelWait()
	}()

	reporter := output.NewReporter(srv.ConnTiming(), srv.BrokenPipes(), os.Stdout)
	if cfg.ReportInterval > 0 {
		progress := output.NewProgressReporter(reporter, admitted.Outstanding, cfg.ReportInterval, os.Stderr)
		progress.Start()
		defer progress.Stop()
	}

	reporter.WaitForSignal(waitCtx, syscall.SIGINT, syscall.SIGTERM)

	stopServe()
	err = <-serveErr
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warnw("shutdown", "error", shutdownErr)
	}
	return err
}

// serveMetrics exposes the collector on addr/metrics and returns a stop
// function and the bound address.
func serveMetrics(addr string, collector *metrics.Collector, logger *zap.SugaredLogger) (func(), string, error) {
	ln, err := transport.Listen(context.Background(), addr)
	if err != nil {
		return nil, "", fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}, ln.Addr().String(), nil
}
