package domain

import "time"

// =============================================================================
// EmailAnalysis - 메일 분석 결과
// =============================================================================

type EmailAnalysis struct {
	EmailID            string         `json:"email_id"`
	PriorityScore      int            `json:"priority_score"`
	ConfidenceScore    int            `json:"confidence_score"`
	Factors            ScoringFactors `json:"factors"`
	Decision           Decision       `json:"decision"`
	Reasoning          string         `json:"reasoning"`
	Timestamp          time.Time      `json:"timestamp"`
	ReevaluationReason string         `json:"reevaluation_reason,omitempty"`
}

// Clone copies the analysis including the matched goal slice.
func (a *EmailAnalysis) Clone() *EmailAnalysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Factors.ContentRelevance.MatchedGoals = append([]string(nil), a.Factors.ContentRelevance.MatchedGoals...)
	return &c
}

// Reclassification records one decision rewritten by the re-evaluator.
type Reclassification struct {
	EmailID string   `json:"email_id"`
	From    Decision `json:"from"`
	To      Decision `json:"to"`
	Reason  string   `json:"reason"`
}

// BatchFailure is one email that could not be scored in a batch.
type BatchFailure struct {
	EmailID string `json:"email_id"`
	Error   string `json:"error"`
}

type BatchResult struct {
	Processed []EmailAnalysis `json:"processed"`
	Skipped   int             `json:"skipped"`
	Failed    []BatchFailure  `json:"failed"`
}

// =============================================================================
// AgentAction - 에이전트 활동 로그
// =============================================================================

type AgentActionType string

const (
	ActionEmailAnalysis    AgentActionType = "email_analysis"
	ActionNotificationSent AgentActionType = "notification_sent"
	ActionBatchCreated     AgentActionType = "batch_created"
	ActionLearningUpdate   AgentActionType = "learning_update"
)

type AgentAction struct {
	ID           string          `json:"id"`
	Type         AgentActionType `json:"type"`
	EmailID      string          `json:"email_id"`
	Decision     Decision        `json:"decision"`
	Reasoning    string          `json:"reasoning"`
	Timestamp    time.Time       `json:"timestamp"`
	UserFeedback *UserFeedback   `json:"user_feedback,omitempty"`
}
