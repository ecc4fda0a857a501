// Package agent implements the triage agents: the five-stage email priority
// loop and the per-user adaptive goal agent that owns a session.
package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"triage_server/core/agent/learning"
	"triage_server/core/agent/trace"
	"triage_server/core/domain"
	"triage_server/core/service/scoring"
)

// =============================================================================
// Email Priority Agent (observe → contextualize → reason → decide → act)
// =============================================================================

// EmailPriorityAgent scores single emails against a user context. The
// context is swapped atomically by the owning session; learned state lives
// in the shared learning.Session and traces go to the recorder.
type EmailPriorityAgent struct {
	mu     sync.RWMutex
	prefs  domain.UserPreferences
	window domain.WorkWindow
	goals  []domain.Goal

	learning *learning.Session
	recorder *trace.Recorder
	clock    scoring.Clock
}

func NewEmailPriorityAgent(prefs domain.UserPreferences, goals []domain.Goal, ls *learning.Session, rec *trace.Recorder, clock scoring.Clock) (*EmailPriorityAgent, error) {
	if clock == nil {
		clock = time.Now
	}
	a := &EmailPriorityAgent{learning: ls, recorder: rec, clock: clock}
	if err := a.SetContext(prefs, goals); err != nil {
		return nil, err
	}
	return a, nil
}

// SetContext replaces preferences and goals. Work hours are parsed here so a
// malformed window fails before any email is scored.
func (a *EmailPriorityAgent) SetContext(prefs domain.UserPreferences, goals []domain.Goal) error {
	window, err := prefs.WorkHours.Parse()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.prefs = prefs.Clone()
	a.window = window
	a.goals = append([]domain.Goal(nil), goals...)
	return nil
}

type userState struct {
	prefs  domain.UserPreferences
	window domain.WorkWindow
	goals  []domain.Goal
}

func (a *EmailPriorityAgent) state() userState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return userState{prefs: a.prefs, window: a.window, goals: a.goals}
}

// Analyze runs the full loop for one email and records its trace.
func (a *EmailPriorityAgent) Analyze(email domain.Email) (*domain.EmailAnalysis, *domain.AgentTrace, error) {
	if err := email.Validate(); err != nil {
		return nil, nil, err
	}

	started := time.Now()
	st := a.state()
	steps := make([]domain.LoopStep, 0, len(domain.TraceStages))

	obs := a.observe(&email)
	steps = append(steps, domain.LoopStep{Stage: domain.StageObserve, Timestamp: a.clock(), Observation: obs})

	uc := a.contextualize(obs, &st)
	steps = append(steps, domain.LoopStep{Stage: domain.StageContextualize, Timestamp: a.clock(), Context: uc})

	reasoning := scoring.Reason(obs, uc, a.learning.Weights(), uc.EvaluatedAt)
	steps = append(steps, domain.LoopStep{Stage: domain.StageReason, Timestamp: a.clock(), Reasoning: &reasoning})

	decision := scoring.Decide(&reasoning, uc.FocusModeActive)
	steps = append(steps, domain.LoopStep{Stage: domain.StageDecide, Timestamp: a.clock(), Decision: &decision})

	action := a.act(&email, &decision)
	steps = append(steps, domain.LoopStep{Stage: domain.StageAct, Timestamp: action.ActionTime, Action: action})

	now := a.clock()
	tr := domain.AgentTrace{
		ID:            uuid.NewString(),
		EmailID:       email.ID,
		Steps:         steps,
		FinalDecision: decision.Decision,
		Reasoning:     decision.Reasoning,
		Metrics: domain.TraceMetrics{
			ProcessingTimeMs: time.Since(started).Milliseconds(),
			ConfidenceScore:  reasoning.ConfidenceScore,
		},
		Timestamp: now,
	}
	if a.recorder != nil {
		a.recorder.Record(tr)
	}

	analysis := &domain.EmailAnalysis{
		EmailID:         email.ID,
		PriorityScore:   reasoning.PriorityScore,
		ConfidenceScore: reasoning.ConfidenceScore,
		Factors:         reasoning.Factors,
		Decision:        decision.Decision,
		Reasoning:       decision.Reasoning,
		Timestamp:       now,
	}
	return analysis, &tr, nil
}

func (a *EmailPriorityAgent) observe(email *domain.Email) *domain.Observation {
	return &domain.Observation{
		EmailID:        email.ID,
		Sender:         email.Sender,
		Subject:        email.Subject,
		BodyPreview:    email.Snippet,
		Body:           email.Body,
		Timestamp:      email.Timestamp,
		HasAttachments: email.HasAttachments,
		Labels:         append([]string{}, email.Labels...),
		Keywords:       scoring.Keywords(email.Subject + " " + email.Snippet),
	}
}

func (a *EmailPriorityAgent) contextualize(obs *domain.Observation, st *userState) *domain.UserContext {
	now := a.clock()
	matched := scoring.MatchGoals(obs.Keywords, st.goals)

	return &domain.UserContext{
		IsWorkHours:      st.window.Contains(now),
		FocusModeActive:  st.prefs.FocusMode,
		UrgencyThreshold: st.prefs.UrgencyThreshold,
		IsVIPSender:      st.prefs.IsVIP(obs.Sender.Email),
		RelevantGoals:    domain.GoalTitles(matched),
		SenderKey:        obs.Sender.Email,
		SenderHistory:    a.learning.SenderStats(obs.Sender.Email),
		EvaluatedAt:      now,
	}
}

func (a *EmailPriorityAgent) act(email *domain.Email, d *domain.DecisionResult) *domain.NotificationAction {
	return &domain.NotificationAction{
		Type:         domain.NotificationActionType,
		EmailID:      email.ID,
		EmailSubject: email.Subject,
		Sender:       email.Sender.DisplayName(),
		Decision:     d.Decision,
		Reasoning:    d.Reasoning,
		ActionTime:   a.clock(),
	}
}

// Learn applies feedback to the learning session and returns the learn
// step for the caller's log.
func (a *EmailPriorityAgent) Learn(fb domain.UserFeedback, email *domain.Email) domain.LoopStep {
	res := a.learning.Learn(fb, a.learning.SenderKey(&fb, email))
	return domain.LoopStep{Stage: domain.StageLearn, Timestamp: a.clock(), Learning: &res}
}

func (a *EmailPriorityAgent) Weights() domain.WeightVector {
	return a.learning.Weights()
}

func (a *EmailPriorityAgent) Traces() []domain.AgentTrace {
	if a.recorder == nil {
		return []domain.AgentTrace{}
	}
	return a.recorder.Traces()
}
