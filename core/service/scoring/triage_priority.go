package scoring

import (
	"math"
	"time"

	"triage_server/core/domain"
)

// =============================================================================
// Priority Scorer
// =============================================================================

const (
	baseConfidence          = 70
	richHistoryInteractions = 10
	richHistoryConfidence   = 15
	someHistoryConfidence   = 10
	vipConfidence           = 10
	actionConfidence        = 5
)

// Clock returns the evaluation time. Tests inject a fixed clock.
type Clock func() time.Time

// ScoreFactors runs the five factor scorers.
func ScoreFactors(obs *domain.Observation, uc *domain.UserContext, now time.Time) domain.ScoringFactors {
	return domain.ScoringFactors{
		SenderImportance:   ScoreSenderImportance(obs, uc),
		ContentRelevance:   ScoreContentRelevance(obs, uc),
		ActionRequired:     ScoreActionRequired(obs, uc),
		TimingContext:      ScoreTimingContext(obs, uc, now),
		HistoricalBehavior: ScoreHistoricalBehavior(obs, uc),
	}
}

// PriorityScore is the rounded weighted sum of the factor scores, using the
// given weight snapshot for every term.
func PriorityScore(f *domain.ScoringFactors, w domain.WeightVector) int {
	sum := float64(f.SenderImportance.Score)*w.SenderImportance +
		float64(f.ContentRelevance.Score)*w.ContentRelevance +
		float64(f.ActionRequired.Score)*w.ActionRequired +
		float64(f.TimingContext.Score)*w.TimingContext +
		float64(f.HistoricalBehavior.Score)*w.HistoricalBehavior
	return clampScore(int(math.Round(sum)))
}

// ConfidenceScore grows with sender history, VIP status and detected action.
func ConfidenceScore(uc *domain.UserContext, f *domain.ScoringFactors) int {
	confidence := baseConfidence

	switch n := uc.SenderHistory.Interactions; {
	case n > richHistoryInteractions:
		confidence += richHistoryConfidence
	case n > engagedInteractions:
		confidence += someHistoryConfidence
	}
	if uc.IsVIPSender {
		confidence += vipConfidence
	}
	if f.ActionRequired.Detected {
		confidence += actionConfidence
	}
	return min(100, confidence)
}

// Reason runs the reason stage: factors, priority and confidence from one
// weight snapshot.
func Reason(obs *domain.Observation, uc *domain.UserContext, weights domain.WeightVector, now time.Time) domain.ReasoningResult {
	factors := ScoreFactors(obs, uc, now)
	return domain.ReasoningResult{
		Factors:         factors,
		PriorityScore:   PriorityScore(&factors, weights),
		ConfidenceScore: ConfidenceScore(uc, &factors),
		Weights:         weights,
	}
}
