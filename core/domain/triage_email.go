package domain

import (
	"strings"
	"time"

	"triage_server/pkg/apperr"
)

// =============================================================================
// Email - 분류 대상 메일 (observed once, never mutated)
// =============================================================================

type Sender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DisplayName returns the sender name, falling back to the address.
func (s Sender) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Email
}

type Email struct {
	ID             string    `json:"id"`
	ThreadID       string    `json:"thread_id"`
	Sender         Sender    `json:"sender"`
	Subject        string    `json:"subject"`
	Snippet        string    `json:"snippet"`
	Body           string    `json:"body,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Labels         []string  `json:"labels"`
	IsRead         bool      `json:"is_read"`
	HasAttachments bool      `json:"has_attachments"`
}

// Validate checks the fields every scoring stage depends on.
func (e *Email) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return apperr.MissingField("id")
	}
	if strings.TrimSpace(e.Sender.Email) == "" {
		return apperr.MissingField("sender.email")
	}
	return nil
}

// ContentText is the text searched for action phrases: subject plus body,
// with the snippet standing in for a body that was not fetched.
func (e *Email) ContentText() string {
	body := e.Body
	if body == "" {
		body = e.Snippet
	}
	return e.Subject + " " + body
}
