package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/adapter/out/memory"
	"triage_server/adapter/out/telemetry"
	"triage_server/core/agent"
	"triage_server/core/agent/analytics"
	"triage_server/core/agent/session"
	"triage_server/core/domain"
	"triage_server/infra/middleware"
)

var morning = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type testServer struct {
	app      *fiber.App
	inbox    *memory.Inbox
	feedback *memory.FeedbackLog
	registry *session.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{inbox: memory.NewInbox(), feedback: memory.NewFeedbackLog()}
	observer := telemetry.NewPrometheusObserver()
	deps := agent.SessionDeps{
		Emails:    s.inbox,
		Goals:     memory.NewGoalStore(),
		Feedback:  s.feedback,
		Snapshots: memory.NewSnapshotStore(),
		Observers: []analytics.Observer{observer},
	}
	s.registry = session.NewRegistry(deps, agent.SessionConfig{Clock: func() time.Time { return morning }}, 0, zerolog.Nop())
	t.Cleanup(s.registry.Stop)

	s.app = fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	s.app.Use(middleware.RequestID())
	NewHealthHandler(s.registry, observer.Handler()).Register(s.app)
	NewTriageHandler(s.registry).Register(s.app.Group("/api/v1"))
	return s
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) open(t *testing.T) {
	t.Helper()
	status, _ := s.do(t, http.MethodPost, "/api/v1/users", map[string]any{"id": "u1", "name": "Test"})
	require.Equal(t, http.StatusCreated, status)
}

func newsletter() domain.Email {
	return domain.Email{
		ID:        "email-news",
		Sender:    domain.Sender{Name: "Shop", Email: "newsletter@shop.com"},
		Subject:   "Weekly deals newsletter",
		Snippet:   "Check out our latest offers",
		Timestamp: morning.Add(-3 * time.Hour),
	}
}

func TestOpenSession_AppliesDefaultPreferences(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/users", map[string]any{"id": "u1"})
	require.Equal(t, http.StatusCreated, status)

	var user domain.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "09:00", user.Preferences.WorkHours.Start)
	assert.False(t, user.CreatedAt.IsZero())

	status, env = s.do(t, http.MethodPost, "/api/v1/users", map[string]any{
		"id":          "u2",
		"preferences": map[string]any{"work_hours": map[string]string{"start": "9am", "end": "17:00"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/users/nobody/weights", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAnalyzeAndFeedback(t *testing.T) {
	s := newTestServer(t)
	s.open(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/users/u1/emails/analyze", newsletter())
	require.Equal(t, http.StatusOK, status)
	var analysis domain.EmailAnalysis
	require.NoError(t, json.Unmarshal(env.Data, &analysis))
	assert.Equal(t, 40, analysis.PriorityScore)
	assert.Equal(t, domain.DecisionBatch, analysis.Decision)

	status, _ = s.do(t, http.MethodGet, "/api/v1/users/u1/analyses/email-news", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/api/v1/users/u1/analyses/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/users/u1/feedback", domain.UserFeedback{
		EmailID: "email-news",
		Action:  domain.FeedbackDismissed,
	})
	require.Equal(t, http.StatusOK, status)
	var learned domain.LearningResult
	require.NoError(t, json.Unmarshal(env.Data, &learned))
	assert.True(t, learned.UpdatedWeights.IsNormalized())
	assert.Len(t, s.feedback.Events("u1"), 1)

	status, env = s.do(t, http.MethodGet, "/api/v1/users/u1/traces", nil)
	require.Equal(t, http.StatusOK, status)
	var traces TraceList
	require.NoError(t, json.Unmarshal(env.Data, &traces))
	assert.Len(t, traces.Traces, 1)
	assert.Zero(t, traces.Dropped)

	status, env = s.do(t, http.MethodGet, "/api/v1/users/u1/analytics", nil)
	require.Equal(t, http.StatusOK, status)
	var analytics domain.AnalyticsData
	require.NoError(t, json.Unmarshal(env.Data, &analytics))
	assert.Equal(t, 1, analytics.TotalEmailsProcessed)
}

func TestAnalyze_InvalidBody(t *testing.T) {
	s := newTestServer(t)
	s.open(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u1/emails/analyze", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	status, env := s.do(t, http.MethodPost, "/api/v1/users/u1/emails/analyze", domain.Email{ID: "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MISSING_FIELD", env.Error.Code)
}

func TestProcessAll_FromInboxAndBody(t *testing.T) {
	s := newTestServer(t)
	s.open(t)
	s.inbox.Put("u1", newsletter())

	status, env := s.do(t, http.MethodPost, "/api/v1/users/u1/emails/process-all", nil)
	require.Equal(t, http.StatusOK, status)
	var result domain.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Processed, 1)
	assert.Equal(t, 1, s.inbox.Calls())

	second := newsletter()
	second.ID = "email-news-2"
	status, env = s.do(t, http.MethodPost, "/api/v1/users/u1/emails/process-all",
		ProcessAllRequest{Emails: []domain.Email{newsletter(), second}})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Processed, 1)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, s.inbox.Calls())
}

func TestContextRoutes(t *testing.T) {
	s := newTestServer(t)
	s.open(t)
	_, _ = s.do(t, http.MethodPost, "/api/v1/users/u1/emails/analyze", newsletter())

	// a keyword rule matching the subject promotes the batched newsletter
	status, env := s.do(t, http.MethodPost, "/api/v1/users/u1/priority-rules",
		domain.PriorityRule{Type: domain.PriorityRuleKeyword, Value: "deals"})
	require.Equal(t, http.StatusCreated, status)
	var change ContextChangeResponse
	require.NoError(t, json.Unmarshal(env.Data, &change))
	require.Len(t, change.Reclassified, 1)
	assert.Equal(t, domain.DecisionNotifyImmediately, change.Reclassified[0].To)

	status, env = s.do(t, http.MethodPost, "/api/v1/users/u1/goals", domain.Goal{
		Title:    "Ship v2",
		Category: domain.GoalCategoryProductivity,
		Priority: domain.GoalPriorityHigh,
	})
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, json.Unmarshal(env.Data, &change))
	raw, err := json.Marshal(change.Data)
	require.NoError(t, err)
	var goal domain.Goal
	require.NoError(t, json.Unmarshal(raw, &goal))
	assert.NotEmpty(t, goal.ID)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/users/u1/goals/"+goal.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, "/api/v1/users/u1/goals/"+goal.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/users/u1/focus", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &change))
	assert.Equal(t, map[string]any{"enabled": true}, change.Data)

	status, env = s.do(t, http.MethodPut, "/api/v1/users/u1/focus", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MISSING_FIELD", env.Error.Code)

	status, _ = s.do(t, http.MethodPut, "/api/v1/users/u1/preferences", map[string]any{"urgency_threshold": 70})
	assert.Equal(t, http.StatusOK, status)
}

func TestCloseSession(t *testing.T) {
	s := newTestServer(t)
	s.open(t)

	status, _ := s.do(t, http.MethodDelete, "/api/v1/users/u1", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodDelete, "/api/v1/users/u1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	s.open(t)
	_, _ = s.do(t, http.MethodPost, "/api/v1/users/u1/emails/analyze", newsletter())

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `triage_decisions_total{decision="batch_notification"} 1`)
}
