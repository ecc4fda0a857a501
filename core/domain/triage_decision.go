package domain

import (
	"time"

	"triage_server/pkg/apperr"
)

// =============================================================================
// Decision - 알림 라우팅 결정
// =============================================================================

type Decision string

const (
	DecisionNotifyImmediately Decision = "notify_immediately"
	DecisionDelay             Decision = "delay_notification"
	DecisionBatch             Decision = "batch_notification"
	DecisionIgnore            Decision = "ignore"
)

var AllDecisions = []Decision{DecisionNotifyImmediately, DecisionDelay, DecisionBatch, DecisionIgnore}

func (d Decision) IsValid() bool {
	switch d {
	case DecisionNotifyImmediately, DecisionDelay, DecisionBatch, DecisionIgnore:
		return true
	}
	return false
}

func ParseDecision(s string) (Decision, error) {
	d := Decision(s)
	if !d.IsValid() {
		return "", apperr.InvalidInput("decision", "unknown decision "+s)
	}
	return d, nil
}

// =============================================================================
// UserFeedback - 사용자 피드백
// =============================================================================

type FeedbackAction string

const (
	FeedbackOpened       FeedbackAction = "opened"
	FeedbackDismissed    FeedbackAction = "dismissed"
	FeedbackIgnored      FeedbackAction = "ignored"
	FeedbackReclassified FeedbackAction = "reclassified"
)

func (a FeedbackAction) IsValid() bool {
	switch a {
	case FeedbackOpened, FeedbackDismissed, FeedbackIgnored, FeedbackReclassified:
		return true
	}
	return false
}

type UserFeedback struct {
	EmailID        string         `json:"email_id"`
	Action         FeedbackAction `json:"action"`
	ReclassifiedTo *Decision      `json:"reclassified_to,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

func (f *UserFeedback) Validate() error {
	if f.EmailID == "" {
		return apperr.MissingField("email_id")
	}
	if !f.Action.IsValid() {
		return apperr.InvalidInput("action", "unknown feedback action "+string(f.Action))
	}
	if f.Action == FeedbackReclassified {
		if f.ReclassifiedTo == nil {
			return apperr.MissingField("reclassified_to")
		}
		if !f.ReclassifiedTo.IsValid() {
			return apperr.InvalidInput("reclassified_to", "unknown decision "+string(*f.ReclassifiedTo))
		}
	}
	return nil
}

// Target returns the reclassification target, or "" for other actions.
func (f *UserFeedback) Target() Decision {
	if f.Action != FeedbackReclassified || f.ReclassifiedTo == nil {
		return ""
	}
	return *f.ReclassifiedTo
}
