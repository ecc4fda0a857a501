package out

import (
	"context"

	"triage_server/core/domain"
)

// =============================================================================
// Triage collaborators
// =============================================================================

// EmailSource supplies the inbox of a user.
type EmailSource interface {
	FetchEmails(ctx context.Context, userID string) ([]domain.Email, error)
}

// GoalStore supplies and persists the goals of a user.
type GoalStore interface {
	ListGoals(ctx context.Context, userID string) ([]domain.Goal, error)
	SaveGoal(ctx context.Context, userID string, goal *domain.Goal) error
	DeleteGoal(ctx context.Context, userID, goalID string) error
}

// FeedbackSink accepts user feedback. Learning is applied only after the
// sink accepted the event.
type FeedbackSink interface {
	SubmitFeedback(ctx context.Context, userID string, fb *domain.UserFeedback) error
}

// TraceSink receives agent traces and analytics snapshots for offline
// analysis. Failures never reach the scorer.
type TraceSink interface {
	ShipTrace(ctx context.Context, userID string, trace *domain.AgentTrace) error
	ShipAnalytics(ctx context.Context, userID string, data *domain.AnalyticsData) error
}

// SessionSnapshotStore persists the learned weights and sender history so a
// session survives restarts. Load returns nil, nil when nothing is stored.
type SessionSnapshotStore interface {
	SaveSnapshot(ctx context.Context, userID string, snap *domain.LearningSnapshot) error
	LoadSnapshot(ctx context.Context, userID string) (*domain.LearningSnapshot, error)
}

// AnalysisRepository keeps scored analyses beyond the session lifetime.
type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, userID string, analysis *domain.EmailAnalysis) error
	ListAnalyses(ctx context.Context, userID string, limit int) ([]domain.EmailAnalysis, error)
}
