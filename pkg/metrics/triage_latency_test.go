package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTracker_Window(t *testing.T) {
	lt := NewLatencyTracker(4)
	for _, ms := range []int{50, 10, 20, 30, 40} {
		lt.Record(time.Duration(ms) * time.Millisecond)
	}

	s := lt.Stats()
	assert.Equal(t, int64(5), s.Count)
	assert.Equal(t, 4, s.Samples)
	assert.Equal(t, 10*time.Millisecond, s.Min, "oldest sample (50ms) must be evicted")
	assert.Equal(t, 40*time.Millisecond, s.Max)
	assert.Equal(t, 25*time.Millisecond, s.Avg)
}

func TestLatencyTracker_Empty(t *testing.T) {
	assert.Equal(t, LatencyStats{}, NewLatencyTracker(10).Stats())
}

func TestLatencyRegistry(t *testing.T) {
	r := NewLatencyRegistry(10)
	r.Record("process_email", time.Millisecond)
	r.Record("process_email", 3*time.Millisecond)
	r.Record("submit_feedback", 2*time.Millisecond)

	assert.Equal(t, int64(2), r.Stats("process_email").Count)
	assert.Len(t, r.AllStats(), 2)
	assert.Equal(t, LatencyStats{}, r.Stats("unknown"))

	var nilRegistry *LatencyRegistry
	nilRegistry.Record("x", time.Second)
	assert.Empty(t, nilRegistry.AllStats())
}
