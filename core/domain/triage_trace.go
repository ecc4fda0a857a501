package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// AgentTrace - 5단계 의사결정 루프 기록
// =============================================================================

type LoopStage string

const (
	StageObserve       LoopStage = "observe"
	StageContextualize LoopStage = "contextualize"
	StageReason        LoopStage = "reason"
	StageDecide        LoopStage = "decide"
	StageAct           LoopStage = "act"
	StageLearn         LoopStage = "learn"
)

// TraceStages is the fixed order of a scoring trace.
var TraceStages = []LoopStage{StageObserve, StageContextualize, StageReason, StageDecide, StageAct}

// Observation is what the observe stage extracted from the email.
type Observation struct {
	EmailID        string    `json:"email_id"`
	Sender         Sender    `json:"sender"`
	Subject        string    `json:"subject"`
	BodyPreview    string    `json:"body_preview"`
	Body           string    `json:"body,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	HasAttachments bool      `json:"has_attachments"`
	Labels         []string  `json:"labels"`
	Keywords       []string  `json:"keywords"`
}

// ContentText mirrors Email.ContentText for the observed copy.
func (o *Observation) ContentText() string {
	body := o.Body
	if body == "" {
		body = o.BodyPreview
	}
	return o.Subject + " " + body
}

// UserContext is the user state the email was judged against.
type UserContext struct {
	IsWorkHours      bool        `json:"is_work_hours"`
	FocusModeActive  bool        `json:"focus_mode_active"`
	UrgencyThreshold int         `json:"urgency_threshold"`
	IsVIPSender      bool        `json:"is_vip_sender"`
	RelevantGoals    []string    `json:"relevant_goals"`
	SenderKey        string      `json:"sender_key"`
	SenderHistory    SenderStats `json:"sender_history"`
	EvaluatedAt      time.Time   `json:"evaluated_at"`
}

type ReasoningResult struct {
	Factors         ScoringFactors `json:"factors"`
	PriorityScore   int            `json:"priority_score"`
	ConfidenceScore int            `json:"confidence_score"`
	Weights         WeightVector   `json:"weights"`
}

type DecisionResult struct {
	Decision      Decision `json:"decision"`
	Reasoning     string   `json:"reasoning"`
	FocusOverride bool     `json:"focus_override"`
}

type NotificationAction struct {
	Type         string    `json:"type"`
	EmailID      string    `json:"email_id"`
	EmailSubject string    `json:"email_subject"`
	Sender       string    `json:"sender"`
	Decision     Decision  `json:"decision"`
	Reasoning    string    `json:"reasoning"`
	ActionTime   time.Time `json:"action_time"`
}

const NotificationActionType = "notification_decision"

type LearningResult struct {
	Feedback       UserFeedback `json:"feedback"`
	UpdatedWeights WeightVector `json:"updated_weights"`
	SenderKey      string       `json:"sender_key"`
	SenderStats    SenderStats  `json:"sender_stats"`
}

// LoopStep carries exactly one payload, the one matching Stage.
type LoopStep struct {
	Stage       LoopStage           `json:"stage"`
	Timestamp   time.Time           `json:"timestamp"`
	Observation *Observation        `json:"observation,omitempty"`
	Context     *UserContext        `json:"context,omitempty"`
	Reasoning   *ReasoningResult    `json:"reasoning,omitempty"`
	Decision    *DecisionResult     `json:"decision,omitempty"`
	Action      *NotificationAction `json:"action,omitempty"`
	Learning    *LearningResult     `json:"learning,omitempty"`
}

// Payload returns the active payload, or nil when none is set.
func (s *LoopStep) Payload() any {
	switch s.Stage {
	case StageObserve:
		return s.Observation
	case StageContextualize:
		return s.Context
	case StageReason:
		return s.Reasoning
	case StageDecide:
		return s.Decision
	case StageAct:
		return s.Action
	case StageLearn:
		return s.Learning
	}
	return nil
}

func (s *LoopStep) Validate() error {
	set := map[LoopStage]bool{
		StageObserve:       s.Observation != nil,
		StageContextualize: s.Context != nil,
		StageReason:        s.Reasoning != nil,
		StageDecide:        s.Decision != nil,
		StageAct:           s.Action != nil,
		StageLearn:         s.Learning != nil,
	}
	active, known := set[s.Stage]
	if !known {
		return fmt.Errorf("unknown loop stage %q", s.Stage)
	}
	if !active {
		return fmt.Errorf("loop step %s has no payload", s.Stage)
	}
	for stage, present := range set {
		if present && stage != s.Stage {
			return fmt.Errorf("loop step %s carries a %s payload", s.Stage, stage)
		}
	}
	return nil
}

type TraceMetrics struct {
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	ConfidenceScore  int   `json:"confidence_score"`
}

type AgentTrace struct {
	ID            string       `json:"id"`
	EmailID       string       `json:"email_id"`
	Steps         []LoopStep   `json:"steps"`
	FinalDecision Decision     `json:"final_decision"`
	Reasoning     string       `json:"reasoning"`
	Metrics       TraceMetrics `json:"metrics"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Validate checks the five stages appear once each, in order.
func (t *AgentTrace) Validate() error {
	if len(t.Steps) != len(TraceStages) {
		return fmt.Errorf("trace %s has %d steps, want %d", t.ID, len(t.Steps), len(TraceStages))
	}
	for i := range t.Steps {
		if t.Steps[i].Stage != TraceStages[i] {
			return fmt.Errorf("trace %s step %d is %s, want %s", t.ID, i, t.Steps[i].Stage, TraceStages[i])
		}
		if err := t.Steps[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
