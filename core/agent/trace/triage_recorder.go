// Package trace keeps the most recent agent traces of a session in a
// bounded ring buffer and forwards each trace to optional sinks.
package trace

import (
	"sync"

	"triage_server/core/domain"
)

const DefaultCapacity = 1000

// Sink receives every recorded trace. Enqueue must not block the scorer;
// delivery is best-effort.
type Sink interface {
	Enqueue(userID string, trace domain.AgentTrace)
}

// Recorder retains at most capacity traces, dropping the oldest first.
type Recorder struct {
	mu       sync.RWMutex
	userID   string
	buf      []domain.AgentTrace
	next     int
	size     int
	dropped  uint64
	recorded uint64
	sinks    []Sink
}

func NewRecorder(userID string, capacity int, sinks ...Sink) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		userID: userID,
		buf:    make([]domain.AgentTrace, capacity),
		sinks:  sinks,
	}
}

// Record stores the trace and hands it to the sinks.
func (r *Recorder) Record(t domain.AgentTrace) {
	r.mu.Lock()
	if r.size == len(r.buf) {
		r.dropped++
	} else {
		r.size++
	}
	r.buf[r.next] = t
	r.next = (r.next + 1) % len(r.buf)
	r.recorded++
	sinks := r.sinks
	r.mu.Unlock()

	for _, s := range sinks {
		s.Enqueue(r.userID, t)
	}
}

// Traces returns the retained traces, oldest first.
func (r *Recorder) Traces() []domain.AgentTrace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AgentTrace, 0, r.size)
	start := (r.next - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Latest returns the most recent trace for emailID.
func (r *Recorder) Latest(emailID string) (domain.AgentTrace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 1; i <= r.size; i++ {
		t := r.buf[(r.next-i+len(r.buf))%len(r.buf)]
		if t.EmailID == emailID {
			return t, true
		}
	}
	return domain.AgentTrace{}, false
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *Recorder) Capacity() int {
	return len(r.buf)
}

// Dropped is the number of traces evicted to make room.
func (r *Recorder) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

// Recorded is the number of traces ever recorded.
func (r *Recorder) Recorded() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recorded
}
