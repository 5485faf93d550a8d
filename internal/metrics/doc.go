// Package metrics exposes server-side connection and request counters in the
// Prometheus exposition format.
//
// # Collector
//
// The central [Collector] type owns a private registry so that several
// servers (and tests) can run in one process without colliding on the
// global default registry:
//
//	m := metrics.NewCollector()
//	m.ConnectionAccepted()
//	defer m.ConnectionClosed("clean", lifetime)
//
//	http.Handle("/metrics", m.Handler())
//
// # Request Instrumentation
//
// [InstrumentRequests] wraps a request handler and records one latency
// observation per call, labeled by outcome.
//
// # Nil Safety
//
// Every method is a no-op on a nil *Collector, so callers wire metrics
// unconditionally and leave the pointer nil when the endpoint is disabled.
package metrics
