package mongodb

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

func testAdapter() *TraceAdapter {
	fixed := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	return &TraceAdapter{retention: time.Hour, now: func() time.Time { return fixed }}
}

func sampleTrace(subject string) *domain.AgentTrace {
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return &domain.AgentTrace{
		ID:      "t1",
		EmailID: "e1",
		Steps: []domain.LoopStep{
			{Stage: domain.StageObserve, Timestamp: at, Observation: &domain.Observation{
				EmailID:  "e1",
				Sender:   domain.Sender{Email: "a@b.com"},
				Subject:  subject,
				Labels:   []string{},
				Keywords: []string{"budget"},
			}},
			{Stage: domain.StageDecide, Timestamp: at, Decision: &domain.DecisionResult{Decision: domain.DecisionBatch, Reasoning: "r"}},
		},
		FinalDecision: domain.DecisionBatch,
		Reasoning:     "r",
		Metrics:       domain.TraceMetrics{ProcessingTimeMs: 3, ConfidenceScore: 70},
		Timestamp:     at,
	}
}

func TestTraceDocument_RoundTrip(t *testing.T) {
	a := testAdapter()

	for _, subject := range []string{"short", strings.Repeat("long subject ", 100)} {
		tr := sampleTrace(subject)
		doc, err := a.toTraceDocument("u1", tr)
		require.NoError(t, err)
		assert.Equal(t, len(subject) > 100, doc.IsCompressed)
		assert.Equal(t, time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), doc.ExpiresAt)

		decoded, err := doc.toEntity()
		require.NoError(t, err)
		assert.Equal(t, tr, decoded)
	}
}

func TestTraceDocument_CorruptSteps(t *testing.T) {
	doc := &traceDocument{Steps: []byte("not gzip"), IsCompressed: true}
	_, err := doc.toEntity()
	assert.Error(t, err)
}

func TestAnalyticsDocument(t *testing.T) {
	doc := testAdapter().toAnalyticsDocument("u1", &domain.AnalyticsData{
		TotalEmailsProcessed: 4,
		DecisionsBreakdown:   domain.DecisionsBreakdown{Batched: 3, Ignored: 1},
		Accuracy:             domain.AccuracyStats{Precision: 0.85, Recall: 0.78},
		TimeSavedMinutes:     14,
		AvgConfidenceScore:   72.5,
	})
	assert.Equal(t, "u1", doc.UserID)
	assert.Equal(t, 3, doc.Batched)
	assert.Equal(t, 14, doc.TimeSavedMinutes)
	assert.Equal(t, doc.CapturedAt.Add(time.Hour), doc.ExpiresAt)
}
