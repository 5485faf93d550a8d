package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/torosent/calltime/internal/timing"
)

// Counter is a monotonically increasing count read at report time.
type Counter interface {
	Load() int64
}

// Reporter renders the server's process-wide statistics. It only holds
// references, so the line reflects whatever has accumulated when it is
// rendered.
type Reporter struct {
	conns  *timing.CallTiming
	broken Counter
	writer io.Writer
}

// NewReporter creates a Reporter for the server counters. A nil writer
// discards output.
func NewReporter(conns *timing.CallTiming, broken Counter, writer io.Writer) *Reporter {
	if writer == nil {
		writer = io.Discard
	}
	return &Reporter{conns: conns, broken: broken, writer: writer}
}

// Render returns "connections: <timing>, broken pipes: <n>".
func (r *Reporter) Render() string {
	var n int64
	if r.broken != nil {
		n = r.broken.Load()
	}
	return fmt.Sprintf("connections: %s, broken pipes: %d", r.conns.Render(), n)
}

// Print writes the rendered line.
func (r *Reporter) Print() {
	fmt.Fprintln(r.writer, r.Render())
}

// WaitForSignal blocks until one of sigs arrives or ctx ends. On a signal it
// prints the report and returns true.
func (r *Reporter) WaitForSignal(ctx context.Context, sigs ...os.Signal) bool {
	sigCtx, stop := signal.NotifyContext(ctx, sigs...)
	defer stop()

	<-sigCtx.Done()
	if ctx.Err() != nil {
		return false
	}
	r.Print()
	return true
}
