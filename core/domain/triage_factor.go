package domain

import "math"

// =============================================================================
// Scoring factors & weights
// =============================================================================

type Factor string

const (
	FactorSenderImportance   Factor = "sender_importance"
	FactorContentRelevance   Factor = "content_relevance"
	FactorActionRequired     Factor = "action_required"
	FactorTimingContext      Factor = "timing_context"
	FactorHistoricalBehavior Factor = "historical_behavior"
)

var AllFactors = []Factor{
	FactorSenderImportance,
	FactorContentRelevance,
	FactorActionRequired,
	FactorTimingContext,
	FactorHistoricalBehavior,
}

type SenderImportanceFactor struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

type ContentRelevanceFactor struct {
	Score        int      `json:"score"`
	MatchedGoals []string `json:"matched_goals"`
	Reason       string   `json:"reason"`
}

type ActionRequiredFactor struct {
	Score    int    `json:"score"`
	Detected bool   `json:"detected"`
	Reason   string `json:"reason"`
}

type TimingContextFactor struct {
	Score           int    `json:"score"`
	IsWorkHours     bool   `json:"is_work_hours"`
	FocusModeActive bool   `json:"focus_mode_active"`
	Reason          string `json:"reason"`
}

type HistoricalBehaviorFactor struct {
	Score            int     `json:"score"`
	PastInteractions int     `json:"past_interactions"`
	OpenRate         float64 `json:"open_rate"`
	Reason           string  `json:"reason"`
}

type ScoringFactors struct {
	SenderImportance   SenderImportanceFactor   `json:"sender_importance"`
	ContentRelevance   ContentRelevanceFactor   `json:"content_relevance"`
	ActionRequired     ActionRequiredFactor     `json:"action_required"`
	TimingContext      TimingContextFactor      `json:"timing_context"`
	HistoricalBehavior HistoricalBehaviorFactor `json:"historical_behavior"`
}

// Score returns the score of one factor.
func (f *ScoringFactors) Score(factor Factor) int {
	switch factor {
	case FactorSenderImportance:
		return f.SenderImportance.Score
	case FactorContentRelevance:
		return f.ContentRelevance.Score
	case FactorActionRequired:
		return f.ActionRequired.Score
	case FactorTimingContext:
		return f.TimingContext.Score
	case FactorHistoricalBehavior:
		return f.HistoricalBehavior.Score
	}
	return 0
}

// WeightVector holds one non-negative weight per factor; the weights sum to 1.
type WeightVector struct {
	SenderImportance   float64 `json:"sender_importance"`
	ContentRelevance   float64 `json:"content_relevance"`
	ActionRequired     float64 `json:"action_required"`
	TimingContext      float64 `json:"timing_context"`
	HistoricalBehavior float64 `json:"historical_behavior"`
}

const WeightSumTolerance = 1e-9

func DefaultWeights() WeightVector {
	return WeightVector{
		SenderImportance:   0.25,
		ContentRelevance:   0.30,
		ActionRequired:     0.20,
		TimingContext:      0.15,
		HistoricalBehavior: 0.10,
	}
}

func (w WeightVector) Get(factor Factor) float64 {
	switch factor {
	case FactorSenderImportance:
		return w.SenderImportance
	case FactorContentRelevance:
		return w.ContentRelevance
	case FactorActionRequired:
		return w.ActionRequired
	case FactorTimingContext:
		return w.TimingContext
	case FactorHistoricalBehavior:
		return w.HistoricalBehavior
	}
	return 0
}

// Scale multiplies one factor's weight. The result is not normalized.
func (w WeightVector) Scale(factor Factor, by float64) WeightVector {
	switch factor {
	case FactorSenderImportance:
		w.SenderImportance *= by
	case FactorContentRelevance:
		w.ContentRelevance *= by
	case FactorActionRequired:
		w.ActionRequired *= by
	case FactorTimingContext:
		w.TimingContext *= by
	case FactorHistoricalBehavior:
		w.HistoricalBehavior *= by
	}
	return w
}

func (w WeightVector) Sum() float64 {
	return w.SenderImportance + w.ContentRelevance + w.ActionRequired + w.TimingContext + w.HistoricalBehavior
}

// Normalize rescales the weights to sum to 1. A degenerate vector (zero,
// negative or non-finite sum) resets to the defaults.
func (w WeightVector) Normalize() WeightVector {
	sum := w.Sum()
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return DefaultWeights()
	}
	return WeightVector{
		SenderImportance:   w.SenderImportance / sum,
		ContentRelevance:   w.ContentRelevance / sum,
		ActionRequired:     w.ActionRequired / sum,
		TimingContext:      w.TimingContext / sum,
		HistoricalBehavior: w.HistoricalBehavior / sum,
	}
}

// IsNormalized reports non-negative weights summing to 1 within tolerance.
func (w WeightVector) IsNormalized() bool {
	for _, f := range AllFactors {
		if w.Get(f) < 0 {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= WeightSumTolerance
}

// SenderStats - 발신자별 상호작용 이력
type SenderStats struct {
	Interactions int     `json:"interactions"`
	OpenRate     float64 `json:"open_rate"`
}

func DefaultSenderStats() SenderStats {
	return SenderStats{Interactions: 0, OpenRate: 0.5}
}

// LearningSnapshot is the exportable adaptive state of one session.
type LearningSnapshot struct {
	Weights WeightVector           `json:"weights"`
	Senders map[string]SenderStats `json:"senders"`
}
