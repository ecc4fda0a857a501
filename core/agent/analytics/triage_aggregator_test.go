package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"triage_server/core/domain"
)

type countingObserver struct {
	decisions int
	feedback  int
}

func (c *countingObserver) ObserveDecision(string, *domain.EmailAnalysis) { c.decisions++ }
func (c *countingObserver) ObserveFeedback(string, *domain.UserFeedback)  { c.feedback++ }

func TestAggregator_RecordDecision(t *testing.T) {
	obs := &countingObserver{}
	a := NewAggregator("u1", obs)

	a.RecordDecision(&domain.EmailAnalysis{Decision: domain.DecisionNotifyImmediately, ConfidenceScore: 90})
	a.RecordDecision(&domain.EmailAnalysis{Decision: domain.DecisionIgnore, ConfidenceScore: 70})
	a.RecordDecision(&domain.EmailAnalysis{Decision: domain.DecisionBatch, ConfidenceScore: 80})
	a.RecordDecision(&domain.EmailAnalysis{Decision: domain.DecisionDelay, ConfidenceScore: 80})

	got := a.Snapshot()
	assert.Equal(t, 4, got.TotalEmailsProcessed)
	assert.Equal(t, domain.DecisionsBreakdown{NotifyImmediately: 1, Delayed: 1, Batched: 1, Ignored: 1}, got.DecisionsBreakdown)
	assert.Equal(t, 10, got.TimeSavedMinutes)
	assert.InDelta(t, 80.0, got.AvgConfidenceScore, 1e-9)
	assert.Equal(t, InitialPrecision, got.Accuracy.Precision)
	assert.Equal(t, InitialRecall, got.Accuracy.Recall)
	assert.Equal(t, 4, obs.decisions)
}

func TestAggregator_RecordFeedback(t *testing.T) {
	obs := &countingObserver{}
	a := NewAggregator("u1", obs)
	target := domain.DecisionIgnore

	a.RecordFeedback(&domain.UserFeedback{EmailID: "e1", Action: domain.FeedbackOpened})
	a.RecordFeedback(&domain.UserFeedback{EmailID: "e1", Action: domain.FeedbackReclassified, ReclassifiedTo: &target})

	got := a.Snapshot()
	assert.Equal(t, 1, got.UserOverrides)
	assert.Equal(t, 1, got.Accuracy.FalsePositives)
	assert.Equal(t, 2, obs.feedback)
}

func TestTimeSavedMinutes(t *testing.T) {
	assert.Equal(t, 0, TimeSavedMinutes(domain.DecisionNotifyImmediately))
	assert.Equal(t, 2, TimeSavedMinutes(domain.DecisionDelay))
	assert.Equal(t, 3, TimeSavedMinutes(domain.DecisionBatch))
	assert.Equal(t, 5, TimeSavedMinutes(domain.DecisionIgnore))
}
