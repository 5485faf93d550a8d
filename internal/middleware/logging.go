package middleware

import "context"

// FailureLogger logs failed calls.
type FailureLogger interface {
	LogFailure(err error)
}

// loggingHandler wraps a Handler with failure logging.
type loggingHandler[Req, Resp any] struct {
	inner  Handler[Req, Resp]
	logger FailureLogger
}

// WithLogging wraps a Handler to log failures.
func WithLogging[Req, Resp any](h Handler[Req, Resp], logger FailureLogger) Handler[Req, Resp] {
	if logger == nil {
		return h
	}
	return &loggingHandler[Req, Resp]{
		inner:  h,
		logger: logger,
	}
}

func (l *loggingHandler[Req, Resp]) Invoke(ctx context.Context, req Req) (Resp, error) {
	resp, err := l.inner.Invoke(ctx, req)
	if err != nil {
		l.logger.LogFailure(err)
	}
	return resp, err
}

func (l *loggingHandler[Req, Resp]) Ready(ctx context.Context) error {
	return Ready(ctx, l.inner)
}
