package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/calltime/internal/timing"
)

// Report is the client's end-of-run summary.
type Report struct {
	Addr           string          `json:"addr" yaml:"addr"`
	Requested      int             `json:"requested" yaml:"requested"`
	Completed      int             `json:"completed" yaml:"completed"`
	Duration       time.Duration   `json:"-" yaml:"-"`
	DurationMs     float64         `json:"duration_ms" yaml:"duration_ms"`
	RequestsPerSec float64         `json:"requests_per_sec" yaml:"requests_per_sec"`
	Summary        string          `json:"summary" yaml:"summary"`
	Requests       timing.Snapshot `json:"requests" yaml:"requests"`
}

// NewReport builds a Report from the run's shared request timing.
func NewReport(addr string, requested, completed int, elapsed time.Duration, ct *timing.CallTiming) Report {
	r := Report{
		Addr:       addr,
		Requested:  requested,
		Completed:  completed,
		Duration:   elapsed,
		DurationMs: float64(elapsed) / float64(time.Millisecond),
		Summary:    ct.Render(),
		Requests:   ct.Snapshot(),
	}
	if elapsed > 0 && completed > 0 {
		r.RequestsPerSec = float64(completed) / elapsed.Seconds()
	}
	return r
}

// PrintReport writes the one-line human-readable summary.
func PrintReport(w io.Writer, r Report) {
	fmt.Fprintf(w, "requests: %s\n", r.Summary)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
