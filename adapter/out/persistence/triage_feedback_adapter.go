package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// FeedbackAdapter implements out.FeedbackSink by appending to the
// triage_feedback table.
type FeedbackAdapter struct {
	db *sqlx.DB
}

var _ out.FeedbackSink = (*FeedbackAdapter)(nil)

func NewFeedbackAdapter(db *sqlx.DB) *FeedbackAdapter {
	return &FeedbackAdapter{db: db}
}

type feedbackRow struct {
	UserID         string         `db:"user_id"`
	EmailID        string         `db:"email_id"`
	Action         string         `db:"action"`
	ReclassifiedTo sql.NullString `db:"reclassified_to"`
	CreatedAt      time.Time      `db:"created_at"`
}

func feedbackRowFromEntity(userID string, fb *domain.UserFeedback) feedbackRow {
	row := feedbackRow{
		UserID:    userID,
		EmailID:   fb.EmailID,
		Action:    string(fb.Action),
		CreatedAt: fb.Timestamp,
	}
	if fb.ReclassifiedTo != nil {
		row.ReclassifiedTo = sql.NullString{String: string(*fb.ReclassifiedTo), Valid: true}
	}
	return row
}

func (r *feedbackRow) toEntity() domain.UserFeedback {
	fb := domain.UserFeedback{
		EmailID:   r.EmailID,
		Action:    domain.FeedbackAction(r.Action),
		Timestamp: r.CreatedAt,
	}
	if r.ReclassifiedTo.Valid {
		d := domain.Decision(r.ReclassifiedTo.String)
		fb.ReclassifiedTo = &d
	}
	return fb
}

func (a *FeedbackAdapter) SubmitFeedback(ctx context.Context, userID string, fb *domain.UserFeedback) error {
	query := `
		INSERT INTO triage_feedback (user_id, email_id, action, reclassified_to, created_at)
		VALUES (:user_id, :email_id, :action, :reclassified_to, :created_at)`

	if _, err := a.db.NamedExecContext(ctx, query, feedbackRowFromEntity(userID, fb)); err != nil {
		return apperr.DatabaseError("insert feedback", err)
	}
	return nil
}

// ListFeedback returns the most recent feedback of a user first.
func (a *FeedbackAdapter) ListFeedback(ctx context.Context, userID string, limit int) ([]domain.UserFeedback, error) {
	var rows []feedbackRow
	query := `
		SELECT user_id, email_id, action, reclassified_to, created_at
		FROM triage_feedback
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, apperr.DatabaseError("list feedback", err)
	}

	events := make([]domain.UserFeedback, len(rows))
	for i := range rows {
		events[i] = rows[i].toEntity()
	}
	return events, nil
}
