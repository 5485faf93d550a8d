// Package middleware provides composable decorators around a generic
// request handler.
//
// # Handler Interface
//
// Anything that turns a request into a response is a [Handler]:
//
//	type Handler[Req, Resp any] interface {
//		Invoke(ctx context.Context, req Req) (Resp, error)
//	}
//
// Handlers that can exert back-pressure also implement [Readier]. Decorators
// in this package forward Ready to the handler they wrap and never gate
// concurrency themselves.
//
// # Middleware
//
//   - [WithTiming]: record every call's latency into a shared timing.CallTiming
//   - [WithLogging]: log failed calls
//
// Decorators compose by wrapping:
//
//	h := middleware.WithTiming(middleware.WithLogging(inner, logger), ct)
package middleware
