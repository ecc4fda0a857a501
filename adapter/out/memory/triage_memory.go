// Package memory provides in-process implementations of the triage
// collaborator ports for development and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

var (
	_ out.EmailSource          = (*Inbox)(nil)
	_ out.GoalStore            = (*GoalStore)(nil)
	_ out.FeedbackSink         = (*FeedbackLog)(nil)
	_ out.TraceSink            = (*TraceLog)(nil)
	_ out.SessionSnapshotStore = (*SnapshotStore)(nil)
	_ out.AnalysisRepository   = (*AnalysisStore)(nil)
)

// =============================================================================
// Inbox (EmailSource)
// =============================================================================

type Inbox struct {
	mu     sync.RWMutex
	emails map[string][]domain.Email
	err    error
	calls  int
}

func NewInbox() *Inbox {
	return &Inbox{emails: make(map[string][]domain.Email)}
}

// Put replaces the inbox of a user.
func (i *Inbox) Put(userID string, emails ...domain.Email) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.emails[userID] = slices.Clone(emails)
}

// FailWith makes every following fetch return err. nil clears it.
func (i *Inbox) FailWith(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

func (i *Inbox) FetchEmails(ctx context.Context, userID string) ([]domain.Email, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	if i.err != nil {
		return nil, i.err
	}
	return slices.Clone(i.emails[userID]), nil
}

// Calls returns how many fetches reached the inbox.
func (i *Inbox) Calls() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.calls
}

// =============================================================================
// GoalStore
// =============================================================================

type GoalStore struct {
	mu    sync.RWMutex
	goals map[string][]domain.Goal
	err   error
}

func NewGoalStore() *GoalStore {
	return &GoalStore{goals: make(map[string][]domain.Goal)}
}

func (s *GoalStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *GoalStore) ListGoals(_ context.Context, userID string) ([]domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	goals := slices.Clone(s.goals[userID])
	if goals == nil {
		goals = []domain.Goal{}
	}
	return goals, nil
}

// SaveGoal inserts the goal or replaces the one with the same ID.
func (s *GoalStore) SaveGoal(_ context.Context, userID string, goal *domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	goals := s.goals[userID]
	if idx := slices.IndexFunc(goals, func(g domain.Goal) bool { return g.ID == goal.ID }); idx >= 0 {
		goals[idx] = *goal
		return nil
	}
	s.goals[userID] = append(goals, *goal)
	return nil
}

func (s *GoalStore) DeleteGoal(_ context.Context, userID, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.goals[userID] = slices.DeleteFunc(s.goals[userID], func(g domain.Goal) bool { return g.ID == goalID })
	return nil
}

// =============================================================================
// FeedbackLog (FeedbackSink)
// =============================================================================

type FeedbackLog struct {
	mu     sync.RWMutex
	events map[string][]domain.UserFeedback
	err    error
}

func NewFeedbackLog() *FeedbackLog {
	return &FeedbackLog{events: make(map[string][]domain.UserFeedback)}
}

func (l *FeedbackLog) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *FeedbackLog) SubmitFeedback(_ context.Context, userID string, fb *domain.UserFeedback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events[userID] = append(l.events[userID], *fb)
	return nil
}

func (l *FeedbackLog) Events(userID string) []domain.UserFeedback {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events[userID])
}

// =============================================================================
// TraceLog (TraceSink)
// =============================================================================

type TraceLog struct {
	mu        sync.RWMutex
	traces    map[string][]domain.AgentTrace
	snapshots map[string][]domain.AnalyticsData
}

func NewTraceLog() *TraceLog {
	return &TraceLog{
		traces:    make(map[string][]domain.AgentTrace),
		snapshots: make(map[string][]domain.AnalyticsData),
	}
}

func (l *TraceLog) ShipTrace(_ context.Context, userID string, trace *domain.AgentTrace) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.traces[userID] = append(l.traces[userID], *trace)
	return nil
}

func (l *TraceLog) ShipAnalytics(_ context.Context, userID string, data *domain.AnalyticsData) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots[userID] = append(l.snapshots[userID], *data)
	return nil
}

func (l *TraceLog) Traces(userID string) []domain.AgentTrace {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.traces[userID])
}

func (l *TraceLog) Analytics(userID string) []domain.AnalyticsData {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.snapshots[userID])
}

// =============================================================================
// SnapshotStore
// =============================================================================

type SnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]domain.LearningSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[string]domain.LearningSnapshot)}
}

func (s *SnapshotStore) SaveSnapshot(_ context.Context, userID string, snap *domain.LearningSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[userID] = copySnapshot(snap)
	return nil
}

func (s *SnapshotStore) LoadSnapshot(_ context.Context, userID string) (*domain.LearningSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[userID]
	if !ok {
		return nil, nil
	}
	c := copySnapshot(&snap)
	return &c, nil
}

func copySnapshot(snap *domain.LearningSnapshot) domain.LearningSnapshot {
	c := domain.LearningSnapshot{Weights: snap.Weights, Senders: make(map[string]domain.SenderStats, len(snap.Senders))}
	for k, v := range snap.Senders {
		c.Senders[k] = v
	}
	return c
}

// =============================================================================
// AnalysisStore (AnalysisRepository)
// =============================================================================

type AnalysisStore struct {
	mu       sync.RWMutex
	analyses map[string][]domain.EmailAnalysis
}

func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{analyses: make(map[string][]domain.EmailAnalysis)}
}

// SaveAnalysis upserts by email ID.
func (s *AnalysisStore) SaveAnalysis(_ context.Context, userID string, analysis *domain.EmailAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.analyses[userID]
	if idx := slices.IndexFunc(list, func(a domain.EmailAnalysis) bool { return a.EmailID == analysis.EmailID }); idx >= 0 {
		list[idx] = *analysis.Clone()
		return nil
	}
	s.analyses[userID] = append(list, *analysis.Clone())
	return nil
}

// ListAnalyses returns the most recent analyses first. limit <= 0 returns all.
func (s *AnalysisStore) ListAnalyses(_ context.Context, userID string, limit int) ([]domain.EmailAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := slices.Clone(s.analyses[userID])
	slices.Reverse(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	if list == nil {
		list = []domain.EmailAnalysis{}
	}
	return list, nil
}
