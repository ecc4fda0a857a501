package in

import (
	"context"

	"triage_server/core/domain"
)

// TriageService is the inbound port of one user's triage session.
type TriageService interface {
	User() domain.User

	// Scoring
	ProcessEmail(ctx context.Context, email domain.Email) (*domain.EmailAnalysis, error)
	ProcessAll(ctx context.Context, emails []domain.Email) (*domain.BatchResult, error)
	ProcessInbox(ctx context.Context) (*domain.BatchResult, error)
	SubmitFeedback(ctx context.Context, fb domain.UserFeedback) (*domain.LearningResult, error)

	// Context changes (trigger re-evaluation)
	UpdateGoals(ctx context.Context, goals []domain.Goal) ([]domain.Reclassification, error)
	AddGoal(ctx context.Context, goal domain.Goal) (*domain.Goal, []domain.Reclassification, error)
	RemoveGoal(ctx context.Context, goalID string) ([]domain.Reclassification, error)
	SetFocusMode(ctx context.Context, enabled bool) []domain.Reclassification
	ToggleFocusMode(ctx context.Context) (bool, []domain.Reclassification)
	UpdatePreferences(ctx context.Context, patch domain.PreferencesPatch) (*domain.UserPreferences, []domain.Reclassification, error)
	AddPriorityRule(ctx context.Context, rule domain.PriorityRule) ([]domain.Reclassification, error)

	// Read side
	Goals() []domain.Goal
	Analyses() []domain.EmailAnalysis
	Analysis(emailID string) (*domain.EmailAnalysis, error)
	Traces() []domain.AgentTrace
	Analytics() domain.AnalyticsData
	Weights() domain.WeightVector
	Actions() []domain.AgentAction
}
