package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/calltime/internal/middleware"
)

const namespace = "calltime"

// Collector holds the server's Prometheus instruments.
type Collector struct {
	registry *prometheus.Registry

	accepted    prometheus.Counter
	active      prometheus.Gauge
	brokenPipes prometheus.Counter
	closed      *prometheus.CounterVec
	lifetime    prometheus.Histogram
	requests    *prometheus.HistogramVec
}

// NewCollector registers the server metrics on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections admitted and accepted",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently being served",
		}),
		brokenPipes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broken_pipes_total",
			Help:      "Connections that ended with a broken pipe or reset",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Closed connections by terminal error kind",
		}, []string{"kind"}),
		lifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Connection lifetime",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(c.accepted, c.active, c.brokenPipes, c.closed, c.lifetime, c.requests)
	return c
}

// Registry returns the collector's private registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ConnectionAccepted marks a new connection as being served.
func (c *Collector) ConnectionAccepted() {
	if c == nil {
		return
	}
	c.accepted.Inc()
	c.active.Inc()
}

// ConnectionClosed records the end of a connection and its terminal error kind.
func (c *Collector) ConnectionClosed(kind string, lifetime time.Duration) {
	if c == nil {
		return
	}
	c.active.Dec()
	c.closed.WithLabelValues(kind).Inc()
	c.lifetime.Observe(lifetime.Seconds())
}

// BrokenPipe counts one broken-pipe termination.
func (c *Collector) BrokenPipe() {
	if c == nil {
		return
	}
	c.brokenPipes.Inc()
}

// ObserveRequest records one request latency.
func (c *Collector) ObserveRequest(latency time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.requests.WithLabelValues(outcome).Observe(latency.Seconds())
}

type instrumentedHandler[Req, Resp any] struct {
	inner middleware.Handler[Req, Resp]
	c     *Collector
}

// InstrumentRequests wraps h so every call is observed by c. A nil c
// returns h unchanged.
func InstrumentRequests[Req, Resp any](h middleware.Handler[Req, Resp], c *Collector) middleware.Handler[Req, Resp] {
	if c == nil {
		return h
	}
	return &instrumentedHandler[Req, Resp]{inner: h, c: c}
}

func (i *instrumentedHandler[Req, Resp]) Invoke(ctx context.Context, req Req) (Resp, error) {
	start := time.Now()
	resp, err := i.inner.Invoke(ctx, req)
	i.c.ObserveRequest(time.Since(start), err)
	return resp, err
}

func (i *instrumentedHandler[Req, Resp]) Ready(ctx context.Context) error {
	return middleware.Ready(ctx, i.inner)
}
