package timing_test

import (
	"sync"
	"testing"
	"time"

	"github.com/torosent/calltime/internal/timing"
)

func TestRenderEmpty(t *testing.T) {
	ct := timing.New()
	if got := ct.Render(); got != "number=0" {
		t.Fatalf("Render() = %q, want %q", got, "number=0")
	}

	var zero timing.CallTiming
	if got := zero.Render(); got != "number=0" {
		t.Fatalf("zero value Render() = %q, want %q", got, "number=0")
	}
}

func TestRenderSamples(t *testing.T) {
	ct := timing.New()
	ct.Add(100 * time.Millisecond)
	ct.Add(300 * time.Millisecond)

	want := "number=2, min=100ms, max=300ms, avg=200ms"
	if got := ct.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
	if got := ct.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestRenderAverageTruncates(t *testing.T) {
	ct := timing.New()
	ct.Add(1 * time.Nanosecond)
	ct.Add(2 * time.Nanosecond)

	want := "number=2, min=1ns, max=2ns, avg=1ns"
	if got := ct.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestConcurrentAddLosesNothing(t *testing.T) {
	ct := timing.New()

	const writers = 32
	const perWriter = 250

	var wg sync.WaitGroup
	var wantSum time.Duration
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			wantSum += time.Duration(w*perWriter+i+1) * time.Microsecond
		}
	}

	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ct.Add(time.Duration(w*perWriter+i+1) * time.Microsecond)
			}
		}(w)
	}
	wg.Wait()

	snap := ct.Snapshot()
	if snap.Count != writers*perWriter {
		t.Fatalf("Count = %d, want %d", snap.Count, writers*perWriter)
	}
	if snap.Min != time.Microsecond {
		t.Errorf("Min = %s, want 1µs", snap.Min)
	}
	if want := time.Duration(writers*perWriter) * time.Microsecond; snap.Max != want {
		t.Errorf("Max = %s, want %s", snap.Max, want)
	}
	if snap.Sum != wantSum {
		t.Errorf("Sum = %s, want %s", snap.Sum, wantSum)
	}
	if snap.Min > snap.Mean || snap.Mean > snap.Max {
		t.Errorf("expected min <= avg <= max, got %s <= %s <= %s", snap.Min, snap.Mean, snap.Max)
	}
}

func TestSnapshotPercentiles(t *testing.T) {
	ct := timing.New()
	for i := 1; i <= 100; i++ {
		ct.Add(time.Duration(i) * time.Millisecond)
	}

	snap := ct.Snapshot()
	if snap.P50 < 49*time.Millisecond || snap.P50 > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", snap.P50)
	}
	if snap.P99 < 98*time.Millisecond || snap.P99 > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", snap.P99)
	}
	if snap.MeanMs < 50 || snap.MeanMs > 51 {
		t.Errorf("expected MeanMs ~50.5, got %f", snap.MeanMs)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	snap := timing.New().Snapshot()
	if snap.Count != 0 || snap.Min != 0 || snap.Max != 0 || snap.P99 != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{123 * time.Millisecond, "123ms"},
		{1200 * time.Millisecond, "1s 200ms"},
		{90*time.Minute + time.Nanosecond, "1h 30m 1ns"},
		{25 * time.Hour, "1day 1h"},
		{48*time.Hour + 4*time.Microsecond, "2days 4us"},
		{-5 * time.Second, "5s"},
	}

	for _, tt := range tests {
		if got := timing.FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
