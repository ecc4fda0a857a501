// Package metrics provides latency tracking with percentiles and the
// Prometheus collectors of the triage engine.
package metrics

import (
	"slices"
	"sync"
	"time"
)

// =============================================================================
// Latency Tracker with P50/P95/P99 Percentiles
// =============================================================================

// LatencyTracker keeps the most recent samples in a ring and computes
// percentiles over a sorted copy.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []int64 // microseconds, insertion order within the ring
	next    int
	full    bool
	count   int64
}

// NewLatencyTracker creates a tracker keeping windowSize samples.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{samples: make([]int64, windowSize)}
}

// Record records a latency measurement.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.samples[lt.next] = d.Microseconds()
	lt.next = (lt.next + 1) % len(lt.samples)
	if lt.next == 0 {
		lt.full = true
	}
	lt.count++
}

// Stats returns latency statistics over the retained window.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.RLock()
	n := lt.next
	if lt.full {
		n = len(lt.samples)
	}
	window := slices.Clone(lt.samples[:n])
	total := lt.count
	lt.mu.RUnlock()

	if len(window) == 0 {
		return LatencyStats{}
	}
	slices.Sort(window)

	var sum int64
	for _, v := range window {
		sum += v
	}

	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Count:   total,
		Min:     us(window[0]),
		Max:     us(window[len(window)-1]),
		Avg:     us(sum / int64(len(window))),
		P50:     us(percentile(window, 0.50)),
		P90:     us(percentile(window, 0.90)),
		P95:     us(percentile(window, 0.95)),
		P99:     us(percentile(window, 0.99)),
		Samples: len(window),
	}
}

func percentile(sorted []int64, p float64) int64 {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Reset clears all samples.
func (lt *LatencyTracker) Reset() {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.next = 0
	lt.full = false
	lt.count = 0
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int64         `json:"count"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Avg     time.Duration `json:"avg"`
	P50     time.Duration `json:"p50"`
	P90     time.Duration `json:"p90"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Samples int           `json:"samples"`
}

// ToMap renders the stats in milliseconds for JSON responses.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":       s.Count,
		"min_ms":      ms(s.Min),
		"max_ms":      ms(s.Max),
		"avg_ms":      ms(s.Avg),
		"p50_ms":      ms(s.P50),
		"p90_ms":      ms(s.P90),
		"p95_ms":      ms(s.P95),
		"p99_ms":      ms(s.P99),
		"sample_size": s.Samples,
	}
}

// =============================================================================
// Multi-Operation Latency Registry
// =============================================================================

// LatencyRegistry manages one tracker per operation name.
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

// Record records a latency for the given operation. A nil registry is a no-op.
func (r *LatencyRegistry) Record(op string, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.RLock()
	tracker, ok := r.trackers[op]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[op]; !ok {
			tracker = NewLatencyTracker(r.window)
			r.trackers[op] = tracker
		}
		r.mu.Unlock()
	}

	tracker.Record(d)
}

// Stats returns latency statistics for one operation.
func (r *LatencyRegistry) Stats(op string) LatencyStats {
	if r == nil {
		return LatencyStats{}
	}
	r.mu.RLock()
	tracker, ok := r.trackers[op]
	r.mu.RUnlock()

	if !ok {
		return LatencyStats{}
	}
	return tracker.Stats()
}

// AllStats returns latency statistics for all operations.
func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	result := make(map[string]LatencyStats)
	if r == nil {
		return result
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, tracker := range r.trackers {
		result[name] = tracker.Stats()
	}
	return result
}
