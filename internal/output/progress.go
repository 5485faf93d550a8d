package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ProgressReporter periodically writes the server's running connection report.
type ProgressReporter struct {
	reporter *Reporter
	active   func() int64
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	running  int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. active, when non-nil, reports the number of live connections.
func NewProgressReporter(reporter *Reporter, active func() int64, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		reporter: reporter,
		active:   active,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins writing progress lines in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates. It is a no-op if Start was never called.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		return
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprintln(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	line := fmt.Sprintf("[%s] %s", time.Since(p.start).Truncate(time.Second), p.reporter.Render())
	if p.active != nil {
		line += fmt.Sprintf(", active: %d", p.active())
	}
	return line
}
