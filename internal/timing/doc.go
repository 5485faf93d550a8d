// Package timing aggregates call latencies.
//
// A [CallTiming] keeps count, minimum, maximum and sum of every sample it is
// given, plus an HDR histogram for percentiles:
//
//	ct := timing.New()
//	ct.Add(120 * time.Millisecond)
//	ct.Add(310 * time.Millisecond)
//	fmt.Println(ct.Render()) // number=2, min=120ms, max=310ms, avg=215ms
//
// # Thread Safety
//
// Every sample goes through [CallTiming.Add], which takes the accumulator's
// mutex, so concurrent writers never lose updates. Readers such as a signal
// handler may call [CallTiming.Render] or [CallTiming.Snapshot] at any time and
// observe the current value.
package timing
