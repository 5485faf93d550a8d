// Package tracing wires OpenTelemetry into calltime: one client span per
// call, one server span per served request, and W3C trace context carried
// in the HTTP/2 request headers between them.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/calltime/internal/config"
)

const instrumentationName = "github.com/torosent/calltime"

// Provider owns the process TracerProvider. The zero value and a nil
// *Provider are both valid and disabled.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
}

// settings is a TracingConfig with environment fallbacks applied.
type settings struct {
	endpoint string
	protocol string
	service  string
	insecure bool
	rate     float64
}

func resolve(cfg config.TracingConfig, defaultService string) settings {
	s := settings{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		protocol: strings.ToLower(strings.TrimSpace(cfg.Protocol)),
		service:  cfg.ServiceName,
		insecure: cfg.Insecure,
		rate:     cfg.SampleRate,
	}
	if s.endpoint == "" {
		s.endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if s.protocol == "" {
		s.protocol = "grpc"
	}
	if s.service == "" {
		s.service = os.Getenv("OTEL_SERVICE_NAME")
	}
	if s.service == "" {
		s.service = defaultService
	}
	if s.service == "" {
		s.service = "calltime"
	}
	return s
}

// Init builds a Provider from cfg and installs it as the global tracer
// provider together with the W3C trace-context propagator. Without an
// endpoint it returns a disabled Provider and touches no globals.
// defaultService names the binary when neither cfg nor OTEL_SERVICE_NAME do.
func Init(ctx context.Context, cfg config.TracingConfig, defaultService string) (*Provider, error) {
	s := resolve(cfg, defaultService)
	if s.endpoint == "" {
		return &Provider{}, nil
	}

	sampler, err := newSampler(s.rate)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.service),
			attribute.String("service.instance.id", ulid.Make().String()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := newExporter(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:        tp,
		tracer:    tp.Tracer(instrumentationName),
		propagate: cfg.ShouldPropagate(),
	}, nil
}

// newSampler maps a sample rate in [0,1] onto a root sampler.
func newSampler(rate float64) (sdktrace.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		return sdktrace.NeverSample(), nil
	case rate == 1:
		return sdktrace.AlwaysSample(), nil
	default:
		return sdktrace.TraceIDRatioBased(rate), nil
	}
}

func newExporter(ctx context.Context, s settings) (sdktrace.SpanExporter, error) {
	switch s.protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.endpoint)}
		if s.insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
		if s.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", s.protocol)
	}
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Tracer returns the exporting tracer, or a no-op tracer when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if !p.Enabled() {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// CallTracer returns the tracer to hand to callers and servers, nil when
// disabled so they skip span bookkeeping entirely.
func (p *Provider) CallTracer() trace.Tracer {
	if !p.Enabled() {
		return nil
	}
	return p.tracer
}

// ShouldPropagate reports whether trace headers are injected into requests.
func (p *Provider) ShouldPropagate() bool {
	return p.Enabled() && p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
