package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// AnalysisAdapter implements out.AnalysisRepository. Factors are stored as
// JSONB.
type AnalysisAdapter struct {
	db *sqlx.DB
}

var _ out.AnalysisRepository = (*AnalysisAdapter)(nil)

func NewAnalysisAdapter(db *sqlx.DB) *AnalysisAdapter {
	return &AnalysisAdapter{db: db}
}

type analysisRow struct {
	UserID             string    `db:"user_id"`
	EmailID            string    `db:"email_id"`
	PriorityScore      int       `db:"priority_score"`
	ConfidenceScore    int       `db:"confidence_score"`
	Factors            []byte    `db:"factors"`
	Decision           string    `db:"decision"`
	Reasoning          string    `db:"reasoning"`
	ReevaluationReason string    `db:"reevaluation_reason"`
	AnalyzedAt         time.Time `db:"analyzed_at"`
}

func analysisRowFromEntity(userID string, a *domain.EmailAnalysis) (analysisRow, error) {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return analysisRow{}, fmt.Errorf("encode factors: %w", err)
	}
	return analysisRow{
		UserID:             userID,
		EmailID:            a.EmailID,
		PriorityScore:      a.PriorityScore,
		ConfidenceScore:    a.ConfidenceScore,
		Factors:            factors,
		Decision:           string(a.Decision),
		Reasoning:          a.Reasoning,
		ReevaluationReason: a.ReevaluationReason,
		AnalyzedAt:         a.Timestamp,
	}, nil
}

func (r *analysisRow) toEntity() (domain.EmailAnalysis, error) {
	a := domain.EmailAnalysis{
		EmailID:            r.EmailID,
		PriorityScore:      r.PriorityScore,
		ConfidenceScore:    r.ConfidenceScore,
		Decision:           domain.Decision(r.Decision),
		Reasoning:          r.Reasoning,
		ReevaluationReason: r.ReevaluationReason,
		Timestamp:          r.AnalyzedAt,
	}
	if err := json.Unmarshal(r.Factors, &a.Factors); err != nil {
		return domain.EmailAnalysis{}, fmt.Errorf("decode factors of %s: %w", r.EmailID, err)
	}
	return a, nil
}

func (a *AnalysisAdapter) SaveAnalysis(ctx context.Context, userID string, analysis *domain.EmailAnalysis) error {
	row, err := analysisRowFromEntity(userID, analysis)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO triage_analyses (user_id, email_id, priority_score, confidence_score, factors, decision, reasoning, reevaluation_reason, analyzed_at)
		VALUES (:user_id, :email_id, :priority_score, :confidence_score, :factors, :decision, :reasoning, :reevaluation_reason, :analyzed_at)
		ON CONFLICT (user_id, email_id) DO UPDATE SET
			priority_score = EXCLUDED.priority_score,
			confidence_score = EXCLUDED.confidence_score,
			factors = EXCLUDED.factors,
			decision = EXCLUDED.decision,
			reasoning = EXCLUDED.reasoning,
			reevaluation_reason = EXCLUDED.reevaluation_reason,
			analyzed_at = EXCLUDED.analyzed_at`

	if _, err := a.db.NamedExecContext(ctx, query, row); err != nil {
		return apperr.DatabaseError("save analysis", err)
	}
	return nil
}

// ListAnalyses returns the most recent analyses first. limit <= 0 returns all.
func (a *AnalysisAdapter) ListAnalyses(ctx context.Context, userID string, limit int) ([]domain.EmailAnalysis, error) {
	query := `
		SELECT user_id, email_id, priority_score, confidence_score, factors, decision, reasoning, reevaluation_reason, analyzed_at
		FROM triage_analyses
		WHERE user_id = $1
		ORDER BY analyzed_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []analysisRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.DatabaseError("list analyses", err)
	}

	analyses := make([]domain.EmailAnalysis, 0, len(rows))
	for i := range rows {
		an, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, an)
	}
	return analyses, nil
}
