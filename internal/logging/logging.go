// Package logging builds the zap loggers used by the calltime binaries.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w at the given level
// ("debug", "info", "warn", "error"). A nil w logs to stderr.
func New(level string, w io.Writer) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if w == nil {
		w = os.Stderr
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core).Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// FailureLogger adapts a SugaredLogger to log failed calls at warn level.
type FailureLogger struct {
	Logger *zap.SugaredLogger
	Msg    string
}

// LogFailure logs err with the configured message.
func (f FailureLogger) LogFailure(err error) {
	if f.Logger == nil {
		return
	}
	msg := f.Msg
	if msg == "" {
		msg = "call failed"
	}
	f.Logger.Warnw(msg, "error", err)
}
