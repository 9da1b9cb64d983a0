package epoch

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// flushLatencyMinNanos/MaxNanos bound the histogram's tracked range: from a
// microsecond (an essentially instant local write) to ten seconds (a
// checkpoint write under severe disk contention). Values outside this range
// are clamped into it by clampNanos before recording rather than rejected.
const (
	flushLatencyMinNanos   = int64(time.Microsecond)
	flushLatencyMaxNanos   = int64(10 * time.Second)
	flushLatencySigFigures = 3
)

// CacheStats is a point-in-time snapshot of an EpochCache's diagnostic
// counters. It carries no correctness signal — nothing in EpochCache reads
// its own stats — it exists purely for operators to observe checkpoint
// write behavior.
type CacheStats struct {
	// FlushCount is the number of checkpoint writes performed since the
	// cache was constructed.
	FlushCount int64

	// FlushLatencyP50/P99/Max are percentiles of checkpoint flush latency
	// observed since construction.
	FlushLatencyP50 time.Duration
	FlushLatencyP99 time.Duration
	FlushLatencyMax time.Duration
}

// flushHistogram tracks checkpoint flush latency. It is separate from the
// cache's correctness-critical state so a histogram allocation failure can
// never affect Assign/Truncate semantics.
type flushHistogram struct {
	hist *hdrhistogram.Histogram
}

func newFlushHistogram() *flushHistogram {
	return &flushHistogram{
		hist: hdrhistogram.New(flushLatencyMinNanos, flushLatencyMaxNanos, flushLatencySigFigures),
	}
}

func (h *flushHistogram) record(d time.Duration) {
	if h == nil || h.hist == nil {
		return
	}
	// RecordValue only fails if d is outside the configured range; silently
	// drop the sample rather than let a diagnostics-only path affect the
	// caller.
	_ = h.hist.RecordValue(clampNanos(d))
}

func (h *flushHistogram) snapshot() CacheStats {
	if h == nil || h.hist == nil {
		return CacheStats{}
	}
	return CacheStats{
		FlushCount:      h.hist.TotalCount(),
		FlushLatencyP50: time.Duration(h.hist.ValueAtQuantile(50.0)),
		FlushLatencyP99: time.Duration(h.hist.ValueAtQuantile(99.0)),
		FlushLatencyMax: time.Duration(h.hist.Max()),
	}
}

func clampNanos(d time.Duration) int64 {
	n := int64(d)
	if n < flushLatencyMinNanos {
		return flushLatencyMinNanos
	}
	if n > flushLatencyMaxNanos {
		return flushLatencyMaxNanos
	}
	return n
}
