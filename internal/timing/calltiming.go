package timing

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// CallTiming accumulates latency samples for a stream of calls.
// The zero value is ready to use; all methods are safe for concurrent use.
type CallTiming struct {
	mu    sync.Mutex
	count uint64
	min   time.Duration
	max   time.Duration
	sum   time.Duration
	hist  *hdrhistogram.Histogram
}

// Snapshot is a point-in-time copy of a CallTiming.
type Snapshot struct {
	Count uint64        `json:"count" yaml:"count"`
	Min   time.Duration `json:"-" yaml:"-"`
	Max   time.Duration `json:"-" yaml:"-"`
	Mean  time.Duration `json:"-" yaml:"-"`
	Sum   time.Duration `json:"-" yaml:"-"`
	P50   time.Duration `json:"-" yaml:"-"`
	P90   time.Duration `json:"-" yaml:"-"`
	P99   time.Duration `json:"-" yaml:"-"`

	// Millisecond fields for JSON and YAML reports.
	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
}

// New returns an empty accumulator.
func New() *CallTiming {
	return &CallTiming{hist: newHistogram()}
}

// Track latencies from 1µs up to 60s with 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

// Add merges one latency sample.
func (c *CallTiming) Add(d time.Duration) {
	if d < 0 {
		d = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 || d < c.min {
		c.min = d
	}
	if d > c.max {
		c.max = d
	}
	c.count++
	c.sum += d

	if c.hist == nil {
		c.hist = newHistogram()
	}
	us := d.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)
}

// Count returns the number of samples merged so far.
func (c *CallTiming) Count() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Snapshot returns the current aggregate, including histogram percentiles.
func (c *CallTiming) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Count: c.count}
	if c.count == 0 {
		return s
	}

	s.Min = c.min
	s.Max = c.max
	s.Sum = c.sum
	s.Mean = c.mean()

	if c.hist != nil && c.hist.TotalCount() > 0 {
		s.P50 = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90 = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P99 = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	s.MinMs = toMillis(s.Min)
	s.MaxMs = toMillis(s.Max)
	s.MeanMs = toMillis(s.Mean)
	s.P50Ms = toMillis(s.P50)
	s.P90Ms = toMillis(s.P90)
	s.P99Ms = toMillis(s.P99)

	return s
}

// Render formats the aggregate as "number=N, min=.., max=.., avg=..".
// An empty accumulator renders as "number=0".
func (c *CallTiming) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return "number=0"
	}
	return fmt.Sprintf(
		"number=%d, min=%s, max=%s, avg=%s",
		c.count,
		FormatDuration(c.min),
		FormatDuration(c.max),
		FormatDuration(c.mean()),
	)
}

func (c *CallTiming) String() string {
	return c.Render()
}

// mean truncates; callers hold c.mu and guarantee count > 0.
func (c *CallTiming) mean() time.Duration {
	return time.Duration(uint64(c.sum) / c.count)
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
