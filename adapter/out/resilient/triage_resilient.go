// Package resilient decorates the collaborator ports with circuit breakers.
// A tripped breaker fails fast instead of stalling the agent on a dead
// dependency.
package resilient

import (
	"context"
	"slices"

	"golang.org/x/sync/singleflight"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/resilience"
)

var (
	_ out.EmailSource  = (*EmailSource)(nil)
	_ out.GoalStore    = (*GoalStore)(nil)
	_ out.FeedbackSink = (*FeedbackSink)(nil)
	_ out.TraceSink    = (*TraceSink)(nil)
)

// =============================================================================
// EmailSource
// =============================================================================

// EmailSource collapses concurrent fetches for the same user into one call.
type EmailSource struct {
	next    out.EmailSource
	breaker *resilience.Breaker
	group   singleflight.Group
}

func NewEmailSource(next out.EmailSource, breaker *resilience.Breaker) *EmailSource {
	return &EmailSource{next: next, breaker: breaker}
}

func (s *EmailSource) FetchEmails(ctx context.Context, userID string) ([]domain.Email, error) {
	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		return resilience.Call(ctx, s.breaker, func(ctx context.Context) ([]domain.Email, error) {
			return s.next.FetchEmails(ctx, userID)
		})
	})
	if err != nil {
		return nil, err
	}
	// callers sharing a flight must not share the backing array
	return slices.Clone(v.([]domain.Email)), nil
}

// =============================================================================
// GoalStore
// =============================================================================

type GoalStore struct {
	next    out.GoalStore
	breaker *resilience.Breaker
}

func NewGoalStore(next out.GoalStore, breaker *resilience.Breaker) *GoalStore {
	return &GoalStore{next: next, breaker: breaker}
}

func (s *GoalStore) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	return resilience.Call(ctx, s.breaker, func(ctx context.Context) ([]domain.Goal, error) {
		return s.next.ListGoals(ctx, userID)
	})
}

func (s *GoalStore) SaveGoal(ctx context.Context, userID string, goal *domain.Goal) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.SaveGoal(ctx, userID, goal)
	})
}

func (s *GoalStore) DeleteGoal(ctx context.Context, userID, goalID string) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.DeleteGoal(ctx, userID, goalID)
	})
}

// =============================================================================
// FeedbackSink
// =============================================================================

type FeedbackSink struct {
	next    out.FeedbackSink
	breaker *resilience.Breaker
}

func NewFeedbackSink(next out.FeedbackSink, breaker *resilience.Breaker) *FeedbackSink {
	return &FeedbackSink{next: next, breaker: breaker}
}

func (s *FeedbackSink) SubmitFeedback(ctx context.Context, userID string, fb *domain.UserFeedback) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.SubmitFeedback(ctx, userID, fb)
	})
}

// =============================================================================
// TraceSink
// =============================================================================

type TraceSink struct {
	next    out.TraceSink
	breaker *resilience.Breaker
}

func NewTraceSink(next out.TraceSink, breaker *resilience.Breaker) *TraceSink {
	return &TraceSink{next: next, breaker: breaker}
}

func (s *TraceSink) ShipTrace(ctx context.Context, userID string, tr *domain.AgentTrace) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.ShipTrace(ctx, userID, tr)
	})
}

func (s *TraceSink) ShipAnalytics(ctx context.Context, userID string, data *domain.AnalyticsData) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.ShipAnalytics(ctx, userID, data)
	})
}
