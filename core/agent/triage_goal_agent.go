package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"triage_server/core/agent/analytics"
	"triage_server/core/agent/learning"
	"triage_server/core/agent/trace"
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/scoring"
	"triage_server/pkg/apperr"
	"triage_server/pkg/metrics"
)

// =============================================================================
// Adaptive Goal Agent (one per user session)
// =============================================================================

// Latency operation names.
const (
	OpProcessEmail   = "process_email"
	OpProcessAll     = "process_all"
	OpSubmitFeedback = "submit_feedback"
	OpReevaluate     = "reevaluate"
)

// AnalyticsPublisher ships analytics snapshots off the request path.
type AnalyticsPublisher interface {
	EnqueueAnalytics(userID string, data domain.AnalyticsData)
}

// SessionDeps are the collaborators of a session. Every field is optional;
// a nil collaborator turns the related side effect off.
type SessionDeps struct {
	Emails     out.EmailSource
	Goals      out.GoalStore
	Feedback   out.FeedbackSink
	Analyses   out.AnalysisRepository
	Snapshots  out.SessionSnapshotStore
	TraceSinks []trace.Sink
	Publisher  AnalyticsPublisher
	Observers  []analytics.Observer
	Latency    *metrics.LatencyRegistry
}

type SessionConfig struct {
	SenderKeyMode learning.SenderKeyMode
	TraceCapacity int
	// Pacing is the delay between two emails of a batch.
	Pacing time.Duration
	Clock  scoring.Clock
}

// AdaptiveGoalAgent owns the state of one user's triage session: context,
// analyses, actions, learned weights, traces and analytics.
type AdaptiveGoalAgent struct {
	mu       sync.RWMutex
	user     domain.User
	rules    []domain.PriorityRule
	emails   map[string]domain.Email
	analyses map[string]*domain.EmailAnalysis
	order    []string
	actions  []domain.AgentAction

	emailAgent  *EmailPriorityAgent
	learning    *learning.Session
	recorder    *trace.Recorder
	analytics   *analytics.Aggregator
	reevaluator Reevaluator

	deps   SessionDeps
	pacing time.Duration
	clock  scoring.Clock
	log    zerolog.Logger
}

func NewAdaptiveGoalAgent(user *domain.User, deps SessionDeps, cfg SessionConfig, log zerolog.Logger) (*AdaptiveGoalAgent, error) {
	if user == nil {
		return nil, apperr.MissingField("user")
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	owned := *user
	owned.Preferences = user.Preferences.Clone()
	owned.Goals = slices.Clone(user.Goals)
	if owned.Goals == nil {
		owned.Goals = []domain.Goal{}
	}

	ls := learning.NewSession(cfg.SenderKeyMode)
	rec := trace.NewRecorder(user.ID, cfg.TraceCapacity, deps.TraceSinks...)
	emailAgent, err := NewEmailPriorityAgent(owned.Preferences, owned.Goals, ls, rec, cfg.Clock)
	if err != nil {
		return nil, err
	}

	return &AdaptiveGoalAgent{
		user:       owned,
		rules:      []domain.PriorityRule{},
		emails:     make(map[string]domain.Email),
		analyses:   make(map[string]*domain.EmailAnalysis),
		actions:    []domain.AgentAction{},
		emailAgent: emailAgent,
		learning:   ls,
		recorder:   rec,
		analytics:  analytics.NewAggregator(user.ID, deps.Observers...),
		deps:       deps,
		pacing:     cfg.Pacing,
		clock:      cfg.Clock,
		log:        log.With().Str("component", "adaptive_agent").Str("user_id", user.ID).Logger(),
	}, nil
}

var _ in.TriageService = (*AdaptiveGoalAgent)(nil)

func newActionID() string {
	return "action_" + uuid.NewString()
}

// =============================================================================
// Scoring
// =============================================================================

// ProcessEmail scores one email and stores the analysis. Scoring an email
// again replaces its stored analysis.
func (a *AdaptiveGoalAgent) ProcessEmail(ctx context.Context, email domain.Email) (*domain.EmailAnalysis, error) {
	start := time.Now()

	analysis, _, err := a.emailAgent.Analyze(email)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if _, seen := a.analyses[email.ID]; !seen {
		a.order = append(a.order, email.ID)
	}
	a.emails[email.ID] = email
	a.analyses[email.ID] = analysis
	a.actions = append(a.actions, domain.AgentAction{
		ID:        newActionID(),
		Type:      domain.ActionEmailAnalysis,
		EmailID:   email.ID,
		Decision:  analysis.Decision,
		Reasoning: analysis.Reasoning,
		Timestamp: a.clock(),
	})
	if analysis.Decision == domain.DecisionNotifyImmediately {
		a.actions = append(a.actions, domain.AgentAction{
			ID:        newActionID(),
			Type:      domain.ActionNotificationSent,
			EmailID:   email.ID,
			Decision:  analysis.Decision,
			Reasoning: fmt.Sprintf("Notified about %q from %s.", email.Subject, email.Sender.DisplayName()),
			Timestamp: a.clock(),
		})
	}
	stored := analysis.Clone()
	a.mu.Unlock()

	a.analytics.RecordDecision(stored)
	a.persistAnalysis(ctx, stored)
	a.deps.Latency.Record(OpProcessEmail, time.Since(start))

	a.log.Debug().
		Str("email_id", email.ID).
		Int("priority", stored.PriorityScore).
		Int("confidence", stored.ConfidenceScore).
		Str("decision", string(stored.Decision)).
		Msg("email scored")
	return stored, nil
}

func (a *AdaptiveGoalAgent) isScored(emailID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.analyses[emailID]
	return ok
}

// ProcessAll scores every email not scored yet, in order, pausing between
// emails. Failed emails are reported and never affect the others.
func (a *AdaptiveGoalAgent) ProcessAll(ctx context.Context, emails []domain.Email) (*domain.BatchResult, error) {
	start := time.Now()
	result := &domain.BatchResult{Processed: []domain.EmailAnalysis{}, Failed: []domain.BatchFailure{}}

	scored := 0
	for i, email := range emails {
		if a.isScored(email.ID) {
			result.Skipped++
			continue
		}

		if err := a.pace(ctx, scored); err != nil {
			for _, rest := range emails[i:] {
				if !a.isScored(rest.ID) {
					result.Failed = append(result.Failed, domain.BatchFailure{EmailID: rest.ID, Error: err.Error()})
				}
			}
			break
		}
		scored++

		analysis, err := a.ProcessEmail(ctx, email)
		if err != nil {
			a.log.Warn().Err(err).Str("email_id", email.ID).Msg("batch item failed")
			result.Failed = append(result.Failed, domain.BatchFailure{EmailID: email.ID, Error: err.Error()})
			continue
		}
		result.Processed = append(result.Processed, *analysis)
	}

	a.finishBatch(result, start)
	return result, nil
}

// pace waits between two scored emails of a batch.
func (a *AdaptiveGoalAgent) pace(ctx context.Context, scored int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if scored == 0 || a.pacing <= 0 {
		return nil
	}

	timer := time.NewTimer(a.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *AdaptiveGoalAgent) finishBatch(result *domain.BatchResult, start time.Time) {
	batched := 0
	for _, an := range result.Processed {
		if an.Decision == domain.DecisionBatch {
			batched++
		}
	}
	if batched > 0 {
		a.mu.Lock()
		a.actions = append(a.actions, domain.AgentAction{
			ID:        newActionID(),
			Type:      domain.ActionBatchCreated,
			Decision:  domain.DecisionBatch,
			Reasoning: fmt.Sprintf("Grouped %d email(s) into the next batch notification.", batched),
			Timestamp: a.clock(),
		})
		a.mu.Unlock()
	}

	a.deps.Latency.Record(OpProcessAll, time.Since(start))
	a.publishAnalytics()

	a.log.Info().
		Int("processed", len(result.Processed)).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failed)).
		Dur("elapsed", time.Since(start)).
		Msg("batch scored")
}

// ProcessInbox fetches the user's emails from the email source and scores
// the unscored ones.
func (a *AdaptiveGoalAgent) ProcessInbox(ctx context.Context) (*domain.BatchResult, error) {
	if a.deps.Emails == nil {
		return nil, apperr.ConfigError("no email source configured")
	}
	emails, err := a.deps.Emails.FetchEmails(ctx, a.user.ID)
	if err != nil {
		return nil, apperr.CollaboratorFailed("email_source", err)
	}
	return a.ProcessAll(ctx, emails)
}

// SubmitFeedback delivers feedback to the sink and, once accepted, applies
// learning, analytics and the local decision update. A rejected delivery
// leaves the session untouched.
func (a *AdaptiveGoalAgent) SubmitFeedback(ctx context.Context, fb domain.UserFeedback) (*domain.LearningResult, error) {
	start := time.Now()
	if fb.Timestamp.IsZero() {
		fb.Timestamp = a.clock()
	}
	if err := fb.Validate(); err != nil {
		return nil, err
	}

	if a.deps.Feedback != nil {
		if err := a.deps.Feedback.SubmitFeedback(ctx, a.user.ID, &fb); err != nil {
			a.log.Warn().Err(err).Str("email_id", fb.EmailID).Msg("feedback rejected by sink")
			return nil, apperr.CollaboratorFailed("feedback_sink", err)
		}
	}

	a.mu.Lock()
	var email *domain.Email
	if e, ok := a.emails[fb.EmailID]; ok {
		email = &e
	}
	step := a.emailAgent.Learn(fb, email)

	for i := range a.actions {
		if a.actions[i].EmailID == fb.EmailID {
			attached := fb
			a.actions[i].UserFeedback = &attached
			break
		}
	}

	decision := domain.DecisionNotifyImmediately
	var reclassified *domain.EmailAnalysis
	if target := fb.Target(); target != "" {
		decision = target
		if an, ok := a.analyses[fb.EmailID]; ok {
			an.Decision = target
			reclassified = an.Clone()
		}
	}
	a.actions = append(a.actions, domain.AgentAction{
		ID:        newActionID(),
		Type:      domain.ActionLearningUpdate,
		EmailID:   fb.EmailID,
		Decision:  decision,
		Reasoning: fmt.Sprintf("User %s the notification. Adjusting weights accordingly.", fb.Action),
		Timestamp: a.clock(),
	})
	a.mu.Unlock()

	if reclassified != nil {
		a.persistAnalysis(ctx, reclassified)
	}
	a.analytics.RecordFeedback(&fb)
	analytics.NotifyWeights(a.user.ID, step.Learning.UpdatedWeights, a.deps.Observers...)
	a.saveSnapshot(ctx)
	a.deps.Latency.Record(OpSubmitFeedback, time.Since(start))

	return step.Learning, nil
}

// =============================================================================
// Context changes
// =============================================================================

// applyContextLocked pushes the current preferences and goals to the email
// agent and re-evaluates the stored analyses. Caller holds a.mu.
func (a *AdaptiveGoalAgent) applyContextLocked(trigger string) ([]domain.Reclassification, error) {
	if err := a.emailAgent.SetContext(a.user.Preferences, a.user.Goals); err != nil {
		return nil, err
	}
	return a.reevaluateLocked(trigger)
}

func (a *AdaptiveGoalAgent) reevaluateLocked(trigger string) ([]domain.Reclassification, error) {
	start := time.Now()
	window, err := a.user.Preferences.WorkHours.Parse()
	if err != nil {
		return nil, err
	}

	changes := a.reevaluator.Reevaluate(trigger, a.order, a.emails, a.analyses, &scoring.InstantInput{
		Preferences: a.user.Preferences,
		Window:      window,
		Goals:       a.user.Goals,
		Rules:       a.rules,
		Now:         a.clock(),
	})
	a.deps.Latency.Record(OpReevaluate, time.Since(start))

	if len(changes) > 0 {
		a.log.Info().Str("trigger", trigger).Int("reclassified", len(changes)).Msg("inbox re-evaluated")
	}
	return changes, nil
}

// contextChange runs fn under the session lock, then stores every analysis
// it reclassified.
func (a *AdaptiveGoalAgent) contextChange(ctx context.Context, fn func() ([]domain.Reclassification, error)) ([]domain.Reclassification, error) {
	a.mu.Lock()
	changes, err := fn()
	changed := a.changedAnalysesLocked(changes)
	a.mu.Unlock()

	for _, an := range changed {
		a.persistAnalysis(ctx, an)
	}
	return changes, err
}

func (a *AdaptiveGoalAgent) changedAnalysesLocked(changes []domain.Reclassification) []*domain.EmailAnalysis {
	if a.deps.Analyses == nil || len(changes) == 0 {
		return nil
	}
	changed := make([]*domain.EmailAnalysis, 0, len(changes))
	for _, c := range changes {
		if an, ok := a.analyses[c.EmailID]; ok {
			changed = append(changed, an.Clone())
		}
	}
	return changed
}

// UpdateGoals replaces the goal list.
func (a *AdaptiveGoalAgent) UpdateGoals(ctx context.Context, goals []domain.Goal) ([]domain.Reclassification, error) {
	for i := range goals {
		if err := goals[i].Validate(); err != nil {
			return nil, err
		}
	}

	return a.contextChange(ctx, func() ([]domain.Reclassification, error) {
		a.user.Goals = slices.Clone(goals)
		if a.user.Goals == nil {
			a.user.Goals = []domain.Goal{}
		}
		return a.applyContextLocked("goals updated")
	})
}

// AddGoal persists the goal through the goal store, then adds it.
func (a *AdaptiveGoalAgent) AddGoal(ctx context.Context, goal domain.Goal) (*domain.Goal, []domain.Reclassification, error) {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = a.clock()
	}
	if goal.Keywords == nil {
		goal.Keywords = []string{}
	}
	if err := goal.Validate(); err != nil {
		return nil, nil, err
	}

	a.mu.RLock()
	exists := slices.ContainsFunc(a.user.Goals, func(g domain.Goal) bool { return g.ID == goal.ID })
	a.mu.RUnlock()
	if exists {
		return nil, nil, apperr.AlreadyExists("goal")
	}

	if a.deps.Goals != nil {
		if err := a.deps.Goals.SaveGoal(ctx, a.user.ID, &goal); err != nil {
			return nil, nil, apperr.CollaboratorFailed("goal_store", err)
		}
	}

	changes, err := a.contextChange(ctx, func() ([]domain.Reclassification, error) {
		a.user.Goals = append(a.user.Goals, goal)
		return a.applyContextLocked(fmt.Sprintf("goal %q added", goal.Title))
	})
	if err != nil {
		return nil, nil, err
	}
	return &goal, changes, nil
}

// RemoveGoal deletes the goal from the goal store, then drops it.
func (a *AdaptiveGoalAgent) RemoveGoal(ctx context.Context, goalID string) ([]domain.Reclassification, error) {
	a.mu.RLock()
	idx := slices.IndexFunc(a.user.Goals, func(g domain.Goal) bool { return g.ID == goalID })
	a.mu.RUnlock()
	if idx < 0 {
		return nil, apperr.NotFound("goal")
	}

	if a.deps.Goals != nil {
		if err := a.deps.Goals.DeleteGoal(ctx, a.user.ID, goalID); err != nil {
			return nil, apperr.CollaboratorFailed("goal_store", err)
		}
	}

	return a.contextChange(ctx, func() ([]domain.Reclassification, error) {
		a.user.Goals = slices.DeleteFunc(a.user.Goals, func(g domain.Goal) bool { return g.ID == goalID })
		return a.applyContextLocked("goal removed")
	})
}

// SyncGoals replaces the local goals with the goal store's list.
func (a *AdaptiveGoalAgent) SyncGoals(ctx context.Context) ([]domain.Reclassification, error) {
	if a.deps.Goals == nil {
		return []domain.Reclassification{}, nil
	}
	goals, err := a.deps.Goals.ListGoals(ctx, a.user.ID)
	if err != nil {
		return nil, apperr.CollaboratorFailed("goal_store", err)
	}
	return a.UpdateGoals(ctx, goals)
}

func (a *AdaptiveGoalAgent) SetFocusMode(ctx context.Context, enabled bool) []domain.Reclassification {
	changes, err := a.contextChange(ctx, func() ([]domain.Reclassification, error) {
		a.user.Preferences.FocusMode = enabled
		return a.applyContextLocked(fmt.Sprintf("focus mode set to %t", enabled))
	})
	if err != nil {
		// preferences were validated on the way in
		a.log.Error().Err(err).Msg("re-evaluation failed")
	}
	return changes
}

func (a *AdaptiveGoalAgent) ToggleFocusMode(ctx context.Context) (bool, []domain.Reclassification) {
	a.mu.RLock()
	enabled := !a.user.Preferences.FocusMode
	a.mu.RUnlock()
	return enabled, a.SetFocusMode(ctx, enabled)
}

// UpdatePreferences validates and applies a partial update.
func (a *AdaptiveGoalAgent) UpdatePreferences(ctx context.Context, patch domain.PreferencesPatch) (*domain.UserPreferences, []domain.Reclassification, error) {
	var prefs domain.UserPreferences
	changes, err := a.contextChange(ctx, func() ([]domain.Reclassification, error) {
		next := patch.Apply(a.user.Preferences)
		if err := next.Validate(); err != nil {
			return nil, err
		}
		a.user.Preferences = next
		prefs = a.user.Preferences.Clone()

		if patch.AffectsRouting() {
			return a.applyContextLocked("preferences updated")
		}
		return []domain.Reclassification{}, a.emailAgent.SetContext(a.user.Preferences, a.user.Goals)
	})
	if err != nil {
		return nil, nil, err
	}
	return &prefs, changes, nil
}

// AddPriorityRule adds a sender or keyword rule that forces immediate
// notification on re-evaluation.
func (a *AdaptiveGoalAgent) AddPriorityRule(ctx context.Context, rule domain.PriorityRule) ([]domain.Reclassification, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	return a.contextChange(ctx, func() ([]domain.Reclassification, error) {
		a.rules = append(a.rules, rule)
		return a.reevaluateLocked(fmt.Sprintf("%s rule %q added", rule.Type, rule.Value))
	})
}

// =============================================================================
// Read side
// =============================================================================

func (a *AdaptiveGoalAgent) User() domain.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u := a.user
	u.Preferences = a.user.Preferences.Clone()
	u.Goals = slices.Clone(a.user.Goals)
	return u
}

func (a *AdaptiveGoalAgent) Goals() []domain.Goal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.user.Goals)
}

func (a *AdaptiveGoalAgent) PriorityRules() []domain.PriorityRule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.rules)
}

// Analyses returns the stored analyses in scoring order.
func (a *AdaptiveGoalAgent) Analyses() []domain.EmailAnalysis {
	a.mu.RLock()
	defer a.mu.RUnlock()

	list := make([]domain.EmailAnalysis, 0, len(a.order))
	for _, id := range a.order {
		list = append(list, *a.analyses[id].Clone())
	}
	return list
}

func (a *AdaptiveGoalAgent) Analysis(emailID string) (*domain.EmailAnalysis, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	an, ok := a.analyses[emailID]
	if !ok {
		return nil, apperr.NotFound("analysis")
	}
	return an.Clone(), nil
}

func (a *AdaptiveGoalAgent) Traces() []domain.AgentTrace {
	return a.emailAgent.Traces()
}

// TraceStats reports retained and evicted trace counts.
func (a *AdaptiveGoalAgent) TraceStats() (retained int, dropped uint64) {
	return a.recorder.Len(), a.recorder.Dropped()
}

func (a *AdaptiveGoalAgent) Analytics() domain.AnalyticsData {
	return a.analytics.Snapshot()
}

func (a *AdaptiveGoalAgent) Weights() domain.WeightVector {
	return a.learning.Weights()
}

func (a *AdaptiveGoalAgent) Actions() []domain.AgentAction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.actions)
}

// LatencyStats returns per-operation latency statistics.
func (a *AdaptiveGoalAgent) LatencyStats() map[string]metrics.LatencyStats {
	return a.deps.Latency.AllStats()
}

// =============================================================================
// Best-effort persistence
// =============================================================================

// RestoreSnapshot loads learned state saved by a previous session.
func (a *AdaptiveGoalAgent) RestoreSnapshot(ctx context.Context) error {
	if a.deps.Snapshots == nil {
		return nil
	}
	snap, err := a.deps.Snapshots.LoadSnapshot(ctx, a.user.ID)
	if err != nil {
		return apperr.CollaboratorFailed("snapshot_store", err)
	}
	if snap == nil {
		return nil
	}
	if err := a.learning.Restore(*snap); err != nil {
		return apperr.InvalidInput("snapshot", err.Error())
	}
	return nil
}

// RestoreAnalyses reloads the analyses kept by the analysis repository.
// Emails already scored in this session keep their live analysis.
func (a *AdaptiveGoalAgent) RestoreAnalyses(ctx context.Context) (int, error) {
	if a.deps.Analyses == nil {
		return 0, nil
	}
	stored, err := a.deps.Analyses.ListAnalyses(ctx, a.user.ID, 0)
	if err != nil {
		return 0, apperr.CollaboratorFailed("analysis_repository", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	restored := 0
	// stored is newest first
	for i := len(stored) - 1; i >= 0; i-- {
		an := stored[i]
		if _, ok := a.analyses[an.EmailID]; ok {
			continue
		}
		a.analyses[an.EmailID] = an.Clone()
		a.order = append(a.order, an.EmailID)
		restored++
	}
	return restored, nil
}

func (a *AdaptiveGoalAgent) saveSnapshot(ctx context.Context) {
	if a.deps.Snapshots == nil {
		return
	}
	snap := a.learning.Snapshot()
	if err := a.deps.Snapshots.SaveSnapshot(ctx, a.user.ID, &snap); err != nil {
		a.log.Warn().Err(err).Msg("failed to save learning snapshot")
	}
}

func (a *AdaptiveGoalAgent) persistAnalysis(ctx context.Context, analysis *domain.EmailAnalysis) {
	if a.deps.Analyses == nil {
		return
	}
	if err := a.deps.Analyses.SaveAnalysis(ctx, a.user.ID, analysis); err != nil {
		a.log.Warn().Err(err).Str("email_id", analysis.EmailID).Msg("failed to persist analysis")
	}
}

func (a *AdaptiveGoalAgent) publishAnalytics() {
	if a.deps.Publisher == nil {
		return
	}
	a.deps.Publisher.EnqueueAnalytics(a.user.ID, a.analytics.Snapshot())
}
