package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// GoalAdapter implements out.GoalStore using PostgreSQL.
type GoalAdapter struct {
	db *sqlx.DB
}

var _ out.GoalStore = (*GoalAdapter)(nil)

func NewGoalAdapter(db *sqlx.DB) *GoalAdapter {
	return &GoalAdapter{db: db}
}

type goalRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Category    string         `db:"category"`
	Priority    string         `db:"priority"`
	Keywords    pq.StringArray `db:"keywords"`
	Deadline    sql.NullTime   `db:"deadline"`
	Progress    int            `db:"progress"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *goalRow) toEntity() domain.Goal {
	g := domain.Goal{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Category:    domain.GoalCategory(r.Category),
		Priority:    domain.GoalPriority(r.Priority),
		Keywords:    []string(r.Keywords),
		Progress:    r.Progress,
		CreatedAt:   r.CreatedAt,
	}
	if g.Keywords == nil {
		g.Keywords = []string{}
	}
	if r.Deadline.Valid {
		d := r.Deadline.Time
		g.Deadline = &d
	}
	return g
}

func goalRowFromEntity(userID string, g *domain.Goal) goalRow {
	row := goalRow{
		ID:          g.ID,
		UserID:      userID,
		Title:       g.Title,
		Description: g.Description,
		Category:    string(g.Category),
		Priority:    string(g.Priority),
		Keywords:    pq.StringArray(g.Keywords),
		Progress:    g.Progress,
		CreatedAt:   g.CreatedAt,
	}
	if row.Keywords == nil {
		row.Keywords = pq.StringArray{}
	}
	if g.Deadline != nil {
		row.Deadline = sql.NullTime{Time: *g.Deadline, Valid: true}
	}
	return row
}

func (a *GoalAdapter) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	var rows []goalRow
	query := `
		SELECT id, user_id, title, description, category, priority, keywords, deadline, progress, created_at
		FROM triage_goals
		WHERE user_id = $1
		ORDER BY created_at, id`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, apperr.DatabaseError("list goals", err)
	}

	goals := make([]domain.Goal, len(rows))
	for i := range rows {
		goals[i] = rows[i].toEntity()
	}
	return goals, nil
}

func (a *GoalAdapter) SaveGoal(ctx context.Context, userID string, goal *domain.Goal) error {
	query := `
		INSERT INTO triage_goals (id, user_id, title, description, category, priority, keywords, deadline, progress, created_at)
		VALUES (:id, :user_id, :title, :description, :category, :priority, :keywords, :deadline, :progress, :created_at)
		ON CONFLICT (user_id, id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			keywords = EXCLUDED.keywords,
			deadline = EXCLUDED.deadline,
			progress = EXCLUDED.progress`

	if _, err := a.db.NamedExecContext(ctx, query, goalRowFromEntity(userID, goal)); err != nil {
		return apperr.DatabaseError("save goal", err)
	}
	return nil
}

// DeleteGoal is idempotent: deleting a missing goal succeeds.
func (a *GoalAdapter) DeleteGoal(ctx context.Context, userID, goalID string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM triage_goals WHERE user_id = $1 AND id = $2`, userID, goalID); err != nil {
		return apperr.DatabaseError("delete goal", err)
	}
	return nil
}
