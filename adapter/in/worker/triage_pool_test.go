package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/adapter/out/memory"
	"triage_server/core/domain"
)

type flakySink struct {
	*memory.TraceLog
	failures atomic.Int32
}

func (s *flakySink) ShipTrace(ctx context.Context, userID string, tr *domain.AgentTrace) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("mongo unavailable")
	}
	return s.TraceLog.ShipTrace(ctx, userID, tr)
}

func testConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        2,
		BatchSize:      1,
		WorkerChanSize: 8,
		JobTimeout:     time.Second,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
		RatePerSecond:  1000,
	}
}

func TestPool_ShipsTracesAndAnalytics(t *testing.T) {
	sink := memory.NewTraceLog()
	p := NewPool(NewHandler(sink), testConfig(), zerolog.Nop())
	require.NoError(t, p.Start())

	p.Enqueue("u1", domain.AgentTrace{ID: "t1", EmailID: "e1", FinalDecision: domain.DecisionBatch})
	p.EnqueueAnalytics("u1", domain.AnalyticsData{TotalEmailsProcessed: 3})
	p.Stop()

	traces := sink.Traces("u1")
	require.Len(t, traces, 1)
	assert.Equal(t, "t1", traces[0].ID)
	assert.Equal(t, domain.DecisionBatch, traces[0].FinalDecision)

	snaps := sink.Analytics("u1")
	require.Len(t, snaps, 1)
	assert.Equal(t, 3, snaps[0].TotalEmailsProcessed)

	assert.Equal(t, int64(2), p.GetMetrics().JobsProcessed)
}

func TestPool_DefaultConfigShipsWithoutStop(t *testing.T) {
	sink := memory.NewTraceLog()
	p := NewPool(NewHandler(sink), DefaultPoolConfig(), zerolog.Nop())
	require.NoError(t, p.Start())
	defer p.Stop()

	for _, id := range []string{"t1", "t2", "t3"} {
		p.Enqueue("u1", domain.AgentTrace{ID: id})
	}

	require.Eventually(t, func() bool {
		return len(sink.Traces("u1")) == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	p := NewPool(NewHandler(memory.NewTraceLog()), testConfig(), zerolog.Nop())

	msg, err := NewMessage(JobTraceShip, "u1", TracePayload{})
	require.NoError(t, err)
	assert.False(t, p.Submit(msg))
	p.Stop()
}

func TestPool_RetriesFailedJobs(t *testing.T) {
	sink := &flakySink{TraceLog: memory.NewTraceLog()}
	sink.failures.Store(1)

	p := NewPool(NewHandler(sink), testConfig(), zerolog.Nop())
	require.NoError(t, p.Start())

	p.Enqueue("u1", domain.AgentTrace{ID: "t1"})
	require.Eventually(t, func() bool {
		return p.GetMetrics().JobsProcessed == 1
	}, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	m := p.GetMetrics()
	assert.Equal(t, int64(1), m.JobsRetried)
	assert.Zero(t, m.JobsFailed)
	assert.Len(t, sink.Traces("u1"), 1)
}

func TestPool_GivesUpAfterMaxRetries(t *testing.T) {
	sink := &flakySink{TraceLog: memory.NewTraceLog()}
	sink.failures.Store(100)

	cfg := testConfig()
	cfg.MaxRetries = 0
	p := NewPool(NewHandler(sink), cfg, zerolog.Nop())
	require.NoError(t, p.Start())

	p.Enqueue("u1", domain.AgentTrace{ID: "t1"})
	p.Stop()

	assert.Equal(t, int64(1), p.GetMetrics().JobsFailed)
	assert.Empty(t, sink.Traces("u1"))
}

func TestHandler_UnknownJobType(t *testing.T) {
	h := NewHandler(memory.NewTraceLog())
	msg, err := NewMessage("telemetry.unknown", "u1", map[string]string{})
	require.NoError(t, err)
	assert.NoError(t, h.Process(context.Background(), msg))
}

func TestHandler_BadPayload(t *testing.T) {
	h := NewHandler(memory.NewTraceLog())
	msg := &Message{Type: JobTraceShip, UserID: "u1", Payload: []byte(`{"trace":`)}
	assert.Error(t, h.Process(context.Background(), msg))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	rl.SetRate(5)
	assert.False(t, rl.Allow())
}
