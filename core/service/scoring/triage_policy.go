package scoring

import (
	"fmt"

	"triage_server/core/domain"
)

// =============================================================================
// Decision Policy (multi-factor)
// =============================================================================

const (
	ImmediateThreshold     = 75
	ImmediateMinConfidence = 60
	DelayThreshold         = 50
	BatchThreshold         = 25
	// FocusBypassThreshold is the priority an immediate email needs to
	// interrupt focus mode.
	FocusBypassThreshold = 90
)

// Decide maps a reasoning result to a decision and its explanation. The band
// checks run in order; a score at or above ImmediateThreshold whose
// confidence is too low matches none of the lower bands and is ignored.
func Decide(r *domain.ReasoningResult, focusMode bool) domain.DecisionResult {
	p, c, f := r.PriorityScore, r.ConfidenceScore, &r.Factors

	var decision domain.Decision
	var text string

	switch {
	case p >= ImmediateThreshold && c >= ImmediateMinConfidence:
		decision = domain.DecisionNotifyImmediately
		text = fmt.Sprintf("High priority email (%d/100) with high confidence. %s %s",
			p, f.SenderImportance.Reason, f.ContentRelevance.Reason)
	case p >= DelayThreshold && p < ImmediateThreshold:
		decision = domain.DecisionDelay
		text = fmt.Sprintf("Moderate priority email (%d/100). Will notify when user exits focus mode or during next break. %s",
			p, f.TimingContext.Reason)
	case p >= BatchThreshold && p < DelayThreshold:
		decision = domain.DecisionBatch
		text = fmt.Sprintf("Lower priority email (%d/100). Will include in next batch notification. %s",
			p, f.ContentRelevance.Reason)
	default:
		decision = domain.DecisionIgnore
		text = fmt.Sprintf("Low priority email (%d/100). No notification needed. %s",
			p, f.HistoricalBehavior.Reason)
	}

	override := false
	if focusMode && decision == domain.DecisionNotifyImmediately && p < FocusBypassThreshold {
		decision = domain.DecisionDelay
		text = fmt.Sprintf("Focus mode active. %s Delaying until focus mode ends.", text)
		override = true
	}

	return domain.DecisionResult{Decision: decision, Reasoning: text, FocusOverride: override}
}
