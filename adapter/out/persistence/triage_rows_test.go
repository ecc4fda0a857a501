package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
	"triage_server/pkg/apperr"
)

func TestGoalRow_RoundTrip(t *testing.T) {
	deadline := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	goal := domain.Goal{
		ID:        "g1",
		Title:     "Q3 Budget",
		Category:  domain.GoalCategoryProductivity,
		Priority:  domain.GoalPriorityHigh,
		Keywords:  []string{"budget", "finance"},
		Deadline:  &deadline,
		Progress:  40,
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	row := goalRowFromEntity("u1", &goal)
	assert.Equal(t, "u1", row.UserID)
	assert.True(t, row.Deadline.Valid)
	assert.Equal(t, goal, row.toEntity())
}

func TestGoalRow_NilKeywordsAndDeadline(t *testing.T) {
	row := goalRowFromEntity("u1", &domain.Goal{ID: "g1", Title: "t"})
	assert.Equal(t, pq.StringArray{}, row.Keywords)
	assert.False(t, row.Deadline.Valid)

	g := (&goalRow{ID: "g1"}).toEntity()
	assert.Equal(t, []string{}, g.Keywords)
	assert.Nil(t, g.Deadline)
}

func TestFeedbackRow(t *testing.T) {
	target := domain.DecisionIgnore
	fb := domain.UserFeedback{
		EmailID:        "e1",
		Action:         domain.FeedbackReclassified,
		ReclassifiedTo: &target,
		Timestamp:      time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}

	row := feedbackRowFromEntity("u1", &fb)
	assert.Equal(t, "ignore", row.ReclassifiedTo.String)
	assert.Equal(t, fb, row.toEntity())

	plain := feedbackRowFromEntity("u1", &domain.UserFeedback{EmailID: "e2", Action: domain.FeedbackOpened})
	assert.False(t, plain.ReclassifiedTo.Valid)
}

func TestAnalysisRow_RoundTrip(t *testing.T) {
	analysis := domain.EmailAnalysis{
		EmailID:         "e1",
		PriorityScore:   88,
		ConfidenceScore: 95,
		Factors: domain.ScoringFactors{
			SenderImportance:   domain.SenderImportanceFactor{Score: 95, Reason: "VIP sender detected."},
			ContentRelevance:   domain.ContentRelevanceFactor{Score: 95, MatchedGoals: []string{"Q3 Budget"}, Reason: "Matches 1 active goal(s): Q3 Budget."},
			HistoricalBehavior: domain.HistoricalBehaviorFactor{Score: 93, PastInteractions: 10, OpenRate: 0.9},
		},
		Decision:  domain.DecisionNotifyImmediately,
		Reasoning: "High priority email (88/100) with high confidence.",
		Timestamp: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}

	row, err := analysisRowFromEntity("u1", &analysis)
	require.NoError(t, err)

	decoded, err := row.toEntity()
	require.NoError(t, err)
	assert.Equal(t, analysis, decoded)
}

func TestAnalysisRow_CorruptFactors(t *testing.T) {
	row := analysisRow{EmailID: "e1", Factors: []byte("{")}
	_, err := row.toEntity()
	assert.Error(t, err)
}

func TestEmailRow(t *testing.T) {
	row := emailRow{
		ID:          "e1",
		SenderName:  "Boss",
		SenderEmail: "boss@corp.com",
		Subject:     "Hi",
		ReceivedAt:  time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	email := row.toEntity()
	assert.Equal(t, "Boss", email.Sender.DisplayName())
	assert.Equal(t, []string{}, email.Labels)
	assert.NoError(t, email.Validate())
}

func TestAdapters_ReportDatabaseErrors(t *testing.T) {
	// nothing listens on port 1
	db, err := sqlx.Open("postgres", "postgres://triage@127.0.0.1:1/triage?sslmode=disable&connect_timeout=1")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = NewGoalAdapter(db).ListGoals(ctx, "u1")
	assert.True(t, apperr.HasCode(err, apperr.CodeDatabaseError), "%v", err)

	err = NewAnalysisAdapter(db).SaveAnalysis(ctx, "u1", &domain.EmailAnalysis{EmailID: "e1"})
	assert.True(t, apperr.HasCode(err, apperr.CodeDatabaseError), "%v", err)

	_, err = NewEmailAdapter(db, 10).FetchEmails(ctx, "u1")
	assert.True(t, apperr.HasCode(err, apperr.CodeDatabaseError), "%v", err)
}
