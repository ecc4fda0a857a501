package persistence

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// DefaultInboxLimit bounds how many emails one fetch returns.
const DefaultInboxLimit = 200

// EmailAdapter implements out.EmailSource over the synced triage_emails
// table.
type EmailAdapter struct {
	db    *sqlx.DB
	limit int
}

var _ out.EmailSource = (*EmailAdapter)(nil)

func NewEmailAdapter(db *sqlx.DB, limit int) *EmailAdapter {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	return &EmailAdapter{db: db, limit: limit}
}

type emailRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	ThreadID       string         `db:"thread_id"`
	SenderName     string         `db:"sender_name"`
	SenderEmail    string         `db:"sender_email"`
	Subject        string         `db:"subject"`
	Snippet        string         `db:"snippet"`
	Body           string         `db:"body"`
	ReceivedAt     time.Time      `db:"received_at"`
	Labels         pq.StringArray `db:"labels"`
	IsRead         bool           `db:"is_read"`
	HasAttachments bool           `db:"has_attachments"`
}

func (r *emailRow) toEntity() domain.Email {
	labels := []string(r.Labels)
	if labels == nil {
		labels = []string{}
	}
	return domain.Email{
		ID:             r.ID,
		ThreadID:       r.ThreadID,
		Sender:         domain.Sender{Name: r.SenderName, Email: r.SenderEmail},
		Subject:        r.Subject,
		Snippet:        r.Snippet,
		Body:           r.Body,
		Timestamp:      r.ReceivedAt,
		Labels:         labels,
		IsRead:         r.IsRead,
		HasAttachments: r.HasAttachments,
	}
}

// FetchEmails returns the newest emails of the user, oldest first so a
// batch scores them in arrival order.
func (a *EmailAdapter) FetchEmails(ctx context.Context, userID string) ([]domain.Email, error) {
	var rows []emailRow
	query := `
		SELECT * FROM (
			SELECT id, user_id, thread_id, sender_name, sender_email, subject, snippet, body,
			       received_at, labels, is_read, has_attachments
			FROM triage_emails
			WHERE user_id = $1
			ORDER BY received_at DESC
			LIMIT $2
		) newest
		ORDER BY received_at ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID, a.limit); err != nil {
		return nil, apperr.DatabaseError("fetch emails", err)
	}

	emails := make([]domain.Email, len(rows))
	for i := range rows {
		emails[i] = rows[i].toEntity()
	}
	return emails, nil
}
