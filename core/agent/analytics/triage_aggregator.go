// Package analytics aggregates the decision and feedback counters of a
// triage session.
package analytics

import (
	"sync"

	"triage_server/core/domain"
)

// Placeholder accuracy figures reported until labelled outcomes exist.
const (
	InitialPrecision = 0.85
	InitialRecall    = 0.78
)

// timeSaved is the estimated minutes saved per decision.
var timeSaved = map[domain.Decision]int{
	domain.DecisionNotifyImmediately: 0,
	domain.DecisionDelay:             2,
	domain.DecisionBatch:             3,
	domain.DecisionIgnore:            5,
}

// TimeSavedMinutes returns the time-saved estimate for a decision.
func TimeSavedMinutes(d domain.Decision) int {
	return timeSaved[d]
}

// Observer is notified after every aggregator update (metrics exporters).
type Observer interface {
	ObserveDecision(userID string, analysis *domain.EmailAnalysis)
	ObserveFeedback(userID string, fb *domain.UserFeedback)
}

// WeightsObserver is optionally implemented by observers that export the
// learned weights after each feedback.
type WeightsObserver interface {
	ObserveWeights(userID string, w domain.WeightVector)
}

// NotifyWeights forwards w to every observer implementing WeightsObserver.
func NotifyWeights(userID string, w domain.WeightVector, observers ...Observer) {
	for _, o := range observers {
		if wo, ok := o.(WeightsObserver); ok {
			wo.ObserveWeights(userID, w)
		}
	}
}

type Aggregator struct {
	mu        sync.RWMutex
	userID    string
	data      domain.AnalyticsData
	observers []Observer
}

func NewAggregator(userID string, observers ...Observer) *Aggregator {
	return &Aggregator{
		userID: userID,
		data: domain.AnalyticsData{
			Accuracy: domain.AccuracyStats{
				Precision: InitialPrecision,
				Recall:    InitialRecall,
			},
		},
		observers: observers,
	}
}

// RecordDecision counts one scored email.
func (a *Aggregator) RecordDecision(analysis *domain.EmailAnalysis) {
	a.mu.Lock()
	d := &a.data
	prevTotal := float64(d.TotalEmailsProcessed)
	d.TotalEmailsProcessed++
	d.AvgConfidenceScore = (d.AvgConfidenceScore*prevTotal + float64(analysis.ConfidenceScore)) / float64(d.TotalEmailsProcessed)

	switch analysis.Decision {
	case domain.DecisionNotifyImmediately:
		d.DecisionsBreakdown.NotifyImmediately++
	case domain.DecisionDelay:
		d.DecisionsBreakdown.Delayed++
	case domain.DecisionBatch:
		d.DecisionsBreakdown.Batched++
	case domain.DecisionIgnore:
		d.DecisionsBreakdown.Ignored++
	}
	d.TimeSavedMinutes += TimeSavedMinutes(analysis.Decision)
	a.mu.Unlock()

	for _, o := range a.observers {
		o.ObserveDecision(a.userID, analysis)
	}
}

// RecordFeedback counts a reclassification as a user override and a false
// positive. Other actions only reach the observers.
func (a *Aggregator) RecordFeedback(fb *domain.UserFeedback) {
	if fb.Action == domain.FeedbackReclassified {
		a.mu.Lock()
		a.data.UserOverrides++
		a.data.Accuracy.FalsePositives++
		a.mu.Unlock()
	}

	for _, o := range a.observers {
		o.ObserveFeedback(a.userID, fb)
	}
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() domain.AnalyticsData {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data
}
