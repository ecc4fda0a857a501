package agent

import (
	"triage_server/core/domain"
	"triage_server/core/service/scoring"
)

// =============================================================================
// Goal-Context Re-evaluator
// =============================================================================

// ReevaluationBoost is the minimum priority of an email promoted to
// immediate notification by a context change.
const ReevaluationBoost = 90

// Reevaluator reapplies the instant policy to stored analyses after a
// context change. It is distinct from the multi-factor decision policy.
type Reevaluator struct {
	policy scoring.InstantPolicy
}

// Reevaluate rewrites, in place, every analysis whose candidate decision
// differs from the stored one and returns the changes in order.
func (r Reevaluator) Reevaluate(trigger string, order []string, emails map[string]domain.Email, analyses map[string]*domain.EmailAnalysis, in *scoring.InstantInput) []domain.Reclassification {
	changes := []domain.Reclassification{}

	for _, id := range order {
		analysis, ok := analyses[id]
		if !ok {
			continue
		}
		email, ok := emails[id]
		if !ok {
			continue
		}

		candidate, reason := r.policy.Evaluate(&email, in)
		if candidate == analysis.Decision {
			continue
		}

		from := analysis.Decision
		if candidate == domain.DecisionNotifyImmediately && from != domain.DecisionNotifyImmediately {
			analysis.PriorityScore = max(analysis.PriorityScore, ReevaluationBoost)
		}
		analysis.Decision = candidate
		analysis.Reasoning = reason
		analysis.ReevaluationReason = trigger

		changes = append(changes, domain.Reclassification{EmailID: id, From: from, To: candidate, Reason: reason})
	}
	return changes
}
