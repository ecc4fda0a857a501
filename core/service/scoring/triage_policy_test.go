package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

func factorsWith(si, cr, ar, tc, hb int) domain.ScoringFactors {
	return domain.ScoringFactors{
		SenderImportance:   domain.SenderImportanceFactor{Score: si, Reason: "SI."},
		ContentRelevance:   domain.ContentRelevanceFactor{Score: cr, Reason: "CR."},
		ActionRequired:     domain.ActionRequiredFactor{Score: ar, Reason: "AR."},
		TimingContext:      domain.TimingContextFactor{Score: tc, Reason: "TC."},
		HistoricalBehavior: domain.HistoricalBehaviorFactor{Score: hb, Reason: "HB."},
	}
}

func TestPriorityScore(t *testing.T) {
	w := domain.DefaultWeights()

	f := factorsWith(95, 95, 80, 70, 93)
	assert.Equal(t, 88, PriorityScore(&f, w))

	f = factorsWith(50, 30, 30, 70, 50)
	assert.Equal(t, 43, PriorityScore(&f, w))

	f = factorsWith(100, 100, 100, 100, 100)
	assert.Equal(t, 100, PriorityScore(&f, w))

	f = factorsWith(0, 0, 0, 0, 0)
	assert.Equal(t, 0, PriorityScore(&f, w))
}

func TestPriorityScore_Monotonic(t *testing.T) {
	w := domain.DefaultWeights()
	base := factorsWith(40, 40, 40, 40, 40)
	baseScore := PriorityScore(&base, w)

	bump := []func(f *domain.ScoringFactors){
		func(f *domain.ScoringFactors) { f.SenderImportance.Score += 30 },
		func(f *domain.ScoringFactors) { f.ContentRelevance.Score += 30 },
		func(f *domain.ScoringFactors) { f.ActionRequired.Score += 30 },
		func(f *domain.ScoringFactors) { f.TimingContext.Score += 30 },
		func(f *domain.ScoringFactors) { f.HistoricalBehavior.Score += 30 },
	}
	for i, apply := range bump {
		f := base
		apply(&f)
		assert.GreaterOrEqual(t, PriorityScore(&f, w), baseScore, "factor %d", i)
	}
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name         string
		interactions int
		vip          bool
		action       bool
		want         int
	}{
		{"base", 0, false, false, 70},
		{"some history", 6, false, false, 80},
		{"rich history", 11, false, false, 85},
		{"ten is only some", 10, false, false, 80},
		{"vip and action", 0, true, true, 85},
		{"everything", 20, true, true, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &domain.UserContext{IsVIPSender: tt.vip, SenderHistory: domain.SenderStats{Interactions: tt.interactions}}
			f := domain.ScoringFactors{ActionRequired: domain.ActionRequiredFactor{Detected: tt.action}}
			assert.Equal(t, tt.want, ConfidenceScore(uc, &f))
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		priority   int
		confidence int
		focus      bool
		want       domain.Decision
		wantPrefix string
	}{
		{"immediate at threshold", 75, 60, false, domain.DecisionNotifyImmediately, "High priority email (75/100) with high confidence. SI. CR."},
		{"delay just below", 74, 90, false, domain.DecisionDelay, "Moderate priority email (74/100). Will notify when user exits focus mode or during next break. TC."},
		{"delay lower bound", 50, 70, false, domain.DecisionDelay, "Moderate priority email (50/100)."},
		{"batch upper bound", 49, 70, false, domain.DecisionBatch, "Lower priority email (49/100). Will include in next batch notification. CR."},
		{"batch lower bound", 25, 70, false, domain.DecisionBatch, "Lower priority email (25/100)."},
		{"ignore", 24, 70, false, domain.DecisionIgnore, "Low priority email (24/100). No notification needed. HB."},
		{"high priority low confidence falls through", 80, 59, false, domain.DecisionIgnore, "Low priority email (80/100)."},
		{"focus delays immediate", 80, 70, true, domain.DecisionDelay, "Focus mode active. High priority email (80/100) with high confidence. SI. CR. Delaying until focus mode ends."},
		{"focus bypass", 90, 70, true, domain.DecisionNotifyImmediately, "High priority email (90/100)"},
		{"focus leaves delay alone", 60, 70, true, domain.DecisionDelay, "Moderate priority email (60/100)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &domain.ReasoningResult{
				Factors:         factorsWith(0, 0, 0, 0, 0),
				PriorityScore:   tt.priority,
				ConfidenceScore: tt.confidence,
			}
			got := Decide(r, tt.focus)
			assert.Equal(t, tt.want, got.Decision)
			assert.True(t, strings.HasPrefix(got.Reasoning, tt.wantPrefix), got.Reasoning)
		})
	}
}

func TestDecide_FocusNeverUpgrades(t *testing.T) {
	for p := 0; p <= 100; p++ {
		r := &domain.ReasoningResult{Factors: factorsWith(0, 0, 0, 0, 0), PriorityScore: p, ConfidenceScore: 70}
		off := Decide(r, false)
		on := Decide(r, true)

		if off.Decision != domain.DecisionNotifyImmediately {
			assert.Equal(t, off.Decision, on.Decision, "priority %d", p)
		}
		if on.Decision == domain.DecisionNotifyImmediately {
			assert.GreaterOrEqual(t, p, FocusBypassThreshold)
		}
	}
}

func TestReason_UsesOneSnapshot(t *testing.T) {
	obs := observation("boss@corp.com", "Urgent: please review launch plan", "", 10*time.Minute)
	uc := &domain.UserContext{
		IsWorkHours:   true,
		IsVIPSender:   true,
		RelevantGoals: []string{"Launch"},
		SenderHistory: domain.SenderStats{Interactions: 10, OpenRate: 0.9},
	}

	r := Reason(obs, uc, domain.DefaultWeights(), testNow)
	require.Equal(t, domain.DefaultWeights(), r.Weights)
	assert.Equal(t, 88, r.PriorityScore)
	assert.Equal(t, 95, r.ConfidenceScore)
}

func TestInstantPolicy_Evaluate(t *testing.T) {
	office := domain.WorkWindow{StartHour: 9, EndHour: 17}
	evening := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	noon := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	goals := []domain.Goal{{ID: "g1", Title: "Quarterly Report", Category: domain.GoalCategoryProductivity, Priority: domain.GoalPriorityHigh}}
	email := func(sender, subject string) *domain.Email {
		return &domain.Email{ID: "e1", Sender: domain.Sender{Email: sender}, Subject: subject}
	}

	tests := []struct {
		name  string
		email *domain.Email
		prefs domain.UserPreferences
		rules []domain.PriorityRule
		now   time.Time
		want  domain.Decision
	}{
		{"vip wins over focus", email("vip@corp.com", "hi"), domain.UserPreferences{VIPSenders: []string{"vip@corp.com"}, FocusMode: true}, nil, evening, domain.DecisionNotifyImmediately},
		{"interest", email("a@b.com", "Kubernetes tips"), domain.UserPreferences{Interests: []string{"kubernetes"}}, nil, noon, domain.DecisionNotifyImmediately},
		{"priority rule", email("alerts@bank.com", "statement"), domain.UserPreferences{}, []domain.PriorityRule{{Type: domain.PriorityRuleSender, Value: "alerts@bank.com"}}, noon, domain.DecisionNotifyImmediately},
		{"focus outside hours delays goal mail", email("a@b.com", "quarterly report draft"), domain.UserPreferences{FocusMode: true}, nil, evening, domain.DecisionDelay},
		{"goal title inside hours", email("a@b.com", "quarterly report draft"), domain.UserPreferences{FocusMode: true}, nil, noon, domain.DecisionNotifyImmediately},
		{"default batch", email("a@b.com", "lunch?"), domain.UserPreferences{}, nil, noon, domain.DecisionBatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := InstantPolicy{}.Evaluate(tt.email, &InstantInput{
				Preferences: tt.prefs,
				Window:      office,
				Goals:       goals,
				Rules:       tt.rules,
				Now:         tt.now,
			})
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}
