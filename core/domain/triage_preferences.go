package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"triage_server/pkg/apperr"
)

// =============================================================================
// UserPreferences - 알림/집중 모드 설정
// =============================================================================

type WorkHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkWindow is a parsed WorkHours. Start is inclusive, End exclusive.
// A window whose end precedes its start wraps past midnight.
type WorkWindow struct {
	StartHour   int `json:"start_hour"`
	StartMinute int `json:"start_minute"`
	EndHour     int `json:"end_hour"`
	EndMinute   int `json:"end_minute"`
}

// Parse validates both "HH:MM" strings.
func (w WorkHours) Parse() (WorkWindow, error) {
	sh, sm, err := parseClock(w.Start)
	if err != nil {
		return WorkWindow{}, apperr.InvalidInput("work_hours", fmt.Sprintf("start %q: %v", w.Start, err))
	}
	eh, em, err := parseClock(w.End)
	if err != nil {
		return WorkWindow{}, apperr.InvalidInput("work_hours", fmt.Sprintf("end %q: %v", w.End, err))
	}
	return WorkWindow{StartHour: sh, StartMinute: sm, EndHour: eh, EndMinute: em}, nil
}

func parseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("hour out of range")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("minute out of range")
	}
	return h, m, nil
}

// Contains reports whether t (in its own location) falls inside the window.
func (w WorkWindow) Contains(t time.Time) bool {
	now := t.Hour()*60 + t.Minute()
	start := w.StartHour*60 + w.StartMinute
	end := w.EndHour*60 + w.EndMinute

	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

type NotificationPreferences struct {
	Immediate     bool `json:"immediate"`
	Batched       bool `json:"batched"`
	BatchInterval int  `json:"batch_interval"` // minutes
}

type UserPreferences struct {
	WorkHours               WorkHours               `json:"work_hours"`
	FocusMode               bool                    `json:"focus_mode"`
	UrgencyThreshold        int                     `json:"urgency_threshold"`
	VIPSenders              []string                `json:"vip_senders"`
	Interests               []string                `json:"interests"`
	NotificationPreferences NotificationPreferences `json:"notification_preferences"`
}

func DefaultUserPreferences() UserPreferences {
	return UserPreferences{
		WorkHours:        WorkHours{Start: "09:00", End: "17:00"},
		UrgencyThreshold: 50,
		VIPSenders:       []string{},
		Interests:        []string{},
		NotificationPreferences: NotificationPreferences{
			Immediate:     true,
			Batched:       true,
			BatchInterval: 60,
		},
	}
}

func (p *UserPreferences) Validate() error {
	if _, err := p.WorkHours.Parse(); err != nil {
		return err
	}
	if p.UrgencyThreshold < 0 || p.UrgencyThreshold > 100 {
		return apperr.InvalidInput("urgency_threshold", "must be between 0 and 100")
	}
	if p.NotificationPreferences.BatchInterval < 0 {
		return apperr.InvalidInput("batch_interval", "must not be negative")
	}
	return nil
}

// IsVIP reports exact membership of address in the VIP list.
func (p *UserPreferences) IsVIP(address string) bool {
	for _, v := range p.VIPSenders {
		if v == address {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices with a session.
func (p UserPreferences) Clone() UserPreferences {
	p.VIPSenders = append([]string(nil), p.VIPSenders...)
	p.Interests = append([]string(nil), p.Interests...)
	return p
}

// PreferencesPatch is a partial update; nil fields are left unchanged.
type PreferencesPatch struct {
	WorkHours               *WorkHours               `json:"work_hours,omitempty"`
	FocusMode               *bool                    `json:"focus_mode,omitempty"`
	UrgencyThreshold        *int                     `json:"urgency_threshold,omitempty"`
	VIPSenders              *[]string                `json:"vip_senders,omitempty"`
	Interests               *[]string                `json:"interests,omitempty"`
	NotificationPreferences *NotificationPreferences `json:"notification_preferences,omitempty"`
}

// Apply returns p updated with the patch. The receiver is not modified.
func (patch PreferencesPatch) Apply(p UserPreferences) UserPreferences {
	out := p.Clone()
	if patch.WorkHours != nil {
		out.WorkHours = *patch.WorkHours
	}
	if patch.FocusMode != nil {
		out.FocusMode = *patch.FocusMode
	}
	if patch.UrgencyThreshold != nil {
		out.UrgencyThreshold = *patch.UrgencyThreshold
	}
	if patch.VIPSenders != nil {
		out.VIPSenders = append([]string(nil), (*patch.VIPSenders)...)
	}
	if patch.Interests != nil {
		out.Interests = append([]string(nil), (*patch.Interests)...)
	}
	if patch.NotificationPreferences != nil {
		out.NotificationPreferences = *patch.NotificationPreferences
	}
	return out
}

// AffectsRouting reports whether the patch touches anything the instant
// policy reads.
func (patch PreferencesPatch) AffectsRouting() bool {
	return patch.FocusMode != nil || patch.VIPSenders != nil || patch.Interests != nil || patch.WorkHours != nil
}

// =============================================================================
// PriorityRule - 사용자 지정 우선순위 규칙
// =============================================================================

type PriorityRuleType string

const (
	PriorityRuleSender  PriorityRuleType = "sender"
	PriorityRuleKeyword PriorityRuleType = "keyword"
)

type PriorityRule struct {
	Type  PriorityRuleType `json:"type"`
	Value string           `json:"value"`
}

func (r *PriorityRule) Validate() error {
	if r.Type != PriorityRuleSender && r.Type != PriorityRuleKeyword {
		return apperr.InvalidInput("type", "must be sender or keyword")
	}
	if strings.TrimSpace(r.Value) == "" {
		return apperr.MissingField("value")
	}
	return nil
}

// Matches reports whether the rule applies to the email. Sender rules match
// the address case-insensitively, keyword rules search subject and body.
func (r *PriorityRule) Matches(email *Email) bool {
	value := strings.ToLower(r.Value)
	switch r.Type {
	case PriorityRuleSender:
		return strings.ToLower(email.Sender.Email) == value
	case PriorityRuleKeyword:
		return strings.Contains(strings.ToLower(email.ContentText()), value)
	}
	return false
}
