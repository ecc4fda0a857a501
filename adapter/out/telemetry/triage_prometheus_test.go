package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

func scrape(t *testing.T, o *PrometheusObserver) string {
	t.Helper()
	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusObserver_Decisions(t *testing.T) {
	o := NewPrometheusObserver()

	o.ObserveDecision("u1", &domain.EmailAnalysis{Decision: domain.DecisionBatch, PriorityScore: 40, ConfidenceScore: 70})
	o.ObserveDecision("u1", &domain.EmailAnalysis{Decision: domain.DecisionBatch, PriorityScore: 45, ConfidenceScore: 70})
	o.ObserveDecision("u2", &domain.EmailAnalysis{Decision: domain.DecisionNotifyImmediately, PriorityScore: 88, ConfidenceScore: 95})

	out := scrape(t, o)
	assert.Contains(t, out, `triage_decisions_total{decision="batch_notification"} 2`)
	assert.Contains(t, out, `triage_decisions_total{decision="notify_immediately"} 1`)
	assert.Contains(t, out, `triage_decisions_total{decision="ignore"} 0`)
	assert.Contains(t, out, `triage_priority_score_count 3`)
	assert.Contains(t, out, `triage_priority_score_bucket{le="50"} 2`)
	assert.NotContains(t, out, "u1")
}

func TestPrometheusObserver_FeedbackAndWeights(t *testing.T) {
	o := NewPrometheusObserver()
	target := domain.DecisionIgnore

	o.ObserveFeedback("u1", &domain.UserFeedback{Action: domain.FeedbackOpened})
	o.ObserveFeedback("u1", &domain.UserFeedback{Action: domain.FeedbackReclassified, ReclassifiedTo: &target})
	o.ObserveWeights("u1", domain.DefaultWeights())

	out := scrape(t, o)
	assert.Contains(t, out, `triage_feedback_total{action="opened"} 1`)
	assert.Contains(t, out, `triage_user_overrides_total 1`)
	assert.Contains(t, out, `triage_learned_weight{factor="content_relevance"} 0.3`)
	assert.Contains(t, out, "go_goroutines")
}
