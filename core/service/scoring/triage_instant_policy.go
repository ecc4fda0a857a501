package scoring

import (
	"fmt"
	"strings"
	"time"

	"triage_server/core/domain"
)

// =============================================================================
// Instant Policy (goal-context re-evaluation)
// =============================================================================

// InstantPolicy is the rule set applied when the user's context changes
// (goals, VIP list, interests, priority rules, focus mode). It looks only at
// the raw email and the current context; factor scores are not consulted.
type InstantPolicy struct{}

// InstantInput is the user context an email is re-judged against.
type InstantInput struct {
	Preferences domain.UserPreferences
	Window      domain.WorkWindow
	Goals       []domain.Goal
	Rules       []domain.PriorityRule
	Now         time.Time
}

// Evaluate returns the candidate decision and the rule that produced it.
func (InstantPolicy) Evaluate(email *domain.Email, in *InstantInput) (domain.Decision, string) {
	text := strings.ToLower(email.Subject + " " + email.Snippet + " " + email.Body)

	if in.Preferences.IsVIP(email.Sender.Email) {
		return domain.DecisionNotifyImmediately, fmt.Sprintf("Sender %s is on the VIP list.", email.Sender.Email)
	}
	for _, interest := range in.Preferences.Interests {
		if interest != "" && strings.Contains(text, strings.ToLower(interest)) {
			return domain.DecisionNotifyImmediately, fmt.Sprintf("Mentions interest %q.", interest)
		}
	}
	for i := range in.Rules {
		if in.Rules[i].Matches(email) {
			return domain.DecisionNotifyImmediately, fmt.Sprintf("Matches %s priority rule %q.", in.Rules[i].Type, in.Rules[i].Value)
		}
	}

	if in.Preferences.FocusMode && !in.Window.Contains(in.Now) {
		return domain.DecisionDelay, "Focus mode active outside work hours."
	}

	for _, g := range in.Goals {
		if g.Title != "" && strings.Contains(text, strings.ToLower(g.Title)) {
			return domain.DecisionNotifyImmediately, fmt.Sprintf("Relates to goal %q.", g.Title)
		}
	}

	return domain.DecisionBatch, "No goal, VIP or interest match."
}
