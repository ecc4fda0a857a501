package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"triage_server/core/agent"
	"triage_server/core/domain"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/response"
)

// Sessions resolves the triage session of a user.
type Sessions interface {
	Open(ctx context.Context, user *domain.User) (*agent.AdaptiveGoalAgent, error)
	Get(userID string) (*agent.AdaptiveGoalAgent, error)
	Close(userID string) bool
}

// TriageHandler exposes the triage sessions over HTTP.
type TriageHandler struct {
	sessions   Sessions
	batchLimit fiber.Handler
	now        func() time.Time
}

func NewTriageHandler(sessions Sessions) *TriageHandler {
	return &TriageHandler{sessions: sessions, now: time.Now}
}

// WithBatchLimit guards the batch route, which fans out to the email source.
func (h *TriageHandler) WithBatchLimit(limit fiber.Handler) *TriageHandler {
	h.batchLimit = limit
	return h
}

// Register registers triage routes.
func (h *TriageHandler) Register(router fiber.Router) {
	users := router.Group("/users")
	users.Post("/", h.OpenSession)

	u := users.Group("/:userID")
	u.Get("/", h.GetSession)
	u.Delete("/", h.CloseSession)

	// Scoring
	u.Post("/emails/analyze", h.AnalyzeEmail)
	if h.batchLimit != nil {
		u.Post("/emails/process-all", h.batchLimit, h.ProcessAll)
	} else {
		u.Post("/emails/process-all", h.ProcessAll)
	}
	u.Get("/analyses", h.ListAnalyses)
	u.Get("/analyses/:emailID", h.GetAnalysis)
	u.Post("/feedback", h.SubmitFeedback)

	// Context
	u.Get("/goals", h.ListGoals)
	u.Put("/goals", h.ReplaceGoals)
	u.Post("/goals", h.AddGoal)
	u.Delete("/goals/:goalID", h.RemoveGoal)
	u.Put("/preferences", h.UpdatePreferences)
	u.Post("/focus", h.ToggleFocus)
	u.Put("/focus", h.SetFocus)
	u.Get("/priority-rules", h.ListPriorityRules)
	u.Post("/priority-rules", h.AddPriorityRule)

	// Telemetry
	u.Get("/traces", h.ListTraces)
	u.Get("/analytics", h.GetAnalytics)
	u.Get("/weights", h.GetWeights)
	u.Get("/actions", h.ListActions)
	u.Get("/latency", h.GetLatency)
}

func (h *TriageHandler) session(c *fiber.Ctx) (*agent.AdaptiveGoalAgent, error) {
	userID := c.Params("userID")
	c.SetUserContext(logger.ContextWithUserID(c.UserContext(), userID))
	return h.sessions.Get(userID)
}

func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		return apperr.BadRequest("invalid request body").WithError(err)
	}
	return nil
}

// ContextChangeResponse is returned by every route that re-evaluates.
type ContextChangeResponse struct {
	Reclassified []domain.Reclassification `json:"reclassified"`
	Data         any                       `json:"data,omitempty"`
}

func reclassified(data any, changes []domain.Reclassification) ContextChangeResponse {
	if changes == nil {
		changes = []domain.Reclassification{}
	}
	return ContextChangeResponse{Reclassified: changes, Data: data}
}

// =============================================================================
// Sessions
// =============================================================================

// OpenSession starts (or restarts) the session of a user.
// POST /api/v1/users
func (h *TriageHandler) OpenSession(c *fiber.Ctx) error {
	user := domain.User{Preferences: domain.DefaultUserPreferences()}
	if err := parseBody(c, &user); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = h.now()
	}

	a, err := h.sessions.Open(c.UserContext(), &user)
	if err != nil {
		return err
	}
	return response.Created(c, a.User())
}

// GET /api/v1/users/:userID
func (h *TriageHandler) GetSession(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	return response.OK(c, a.User())
}

// DELETE /api/v1/users/:userID
func (h *TriageHandler) CloseSession(c *fiber.Ctx) error {
	if !h.sessions.Close(c.Params("userID")) {
		return apperr.NotFound("session")
	}
	return response.NoContent(c)
}

// =============================================================================
// Scoring
// =============================================================================

// POST /api/v1/users/:userID/emails/analyze
func (h *TriageHandler) AnalyzeEmail(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var email domain.Email
	if err := parseBody(c, &email); err != nil {
		return err
	}

	analysis, err := a.ProcessEmail(c.UserContext(), email)
	if err != nil {
		return err
	}
	return response.OK(c, analysis)
}

// ProcessAllRequest carries the emails to score. Without emails the inbox
// is fetched from the configured email source.
type ProcessAllRequest struct {
	Emails []domain.Email `json:"emails"`
}

// POST /api/v1/users/:userID/emails/process-all
func (h *TriageHandler) ProcessAll(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var req ProcessAllRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	var result *domain.BatchResult
	if len(req.Emails) > 0 {
		result, err = a.ProcessAll(c.UserContext(), req.Emails)
	} else {
		result, err = a.ProcessInbox(c.UserContext())
	}
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

// GET /api/v1/users/:userID/analyses?limit=
func (h *TriageHandler) ListAnalyses(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	return response.List(c, a.Analyses(), c.QueryInt("limit", 0))
}

// GET /api/v1/users/:userID/analyses/:emailID
func (h *TriageHandler) GetAnalysis(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	analysis, err := a.Analysis(c.Params("emailID"))
	if err != nil {
		return err
	}
	return response.OK(c, analysis)
}

// POST /api/v1/users/:userID/feedback
func (h *TriageHandler) SubmitFeedback(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var fb domain.UserFeedback
	if err := parseBody(c, &fb); err != nil {
		return err
	}

	result, err := a.SubmitFeedback(c.UserContext(), fb)
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

// =============================================================================
// Context
// =============================================================================

// GET /api/v1/users/:userID/goals
func (h *TriageHandler) ListGoals(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	return response.List(c, a.Goals(), 0)
}

// PUT /api/v1/users/:userID/goals
func (h *TriageHandler) ReplaceGoals(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var goals []domain.Goal
	if err := parseBody(c, &goals); err != nil {
		return err
	}

	changes, err := a.UpdateGoals(c.UserContext(), goals)
	if err != nil {
		return err
	}
	return response.OK(c, reclassified(a.Goals(), changes))
}

// POST /api/v1/users/:userID/goals
func (h *TriageHandler) AddGoal(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var goal domain.Goal
	if err := parseBody(c, &goal); err != nil {
		return err
	}

	created, changes, err := a.AddGoal(c.UserContext(), goal)
	if err != nil {
		return err
	}
	return response.Created(c, reclassified(created, changes))
}

// DELETE /api/v1/users/:userID/goals/:goalID
func (h *TriageHandler) RemoveGoal(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	changes, err := a.RemoveGoal(c.UserContext(), c.Params("goalID"))
	if err != nil {
		return err
	}
	return response.OK(c, reclassified(nil, changes))
}

// PUT /api/v1/users/:userID/preferences
func (h *TriageHandler) UpdatePreferences(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var patch domain.PreferencesPatch
	if err := parseBody(c, &patch); err != nil {
		return err
	}

	prefs, changes, err := a.UpdatePreferences(c.UserContext(), patch)
	if err != nil {
		return err
	}
	return response.OK(c, reclassified(prefs, changes))
}

// FocusState is the focus mode after a change.
type FocusState struct {
	Enabled bool `json:"enabled"`
}

// POST /api/v1/users/:userID/focus
func (h *TriageHandler) ToggleFocus(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	enabled, changes := a.ToggleFocusMode(c.UserContext())
	return response.OK(c, reclassified(FocusState{Enabled: enabled}, changes))
}

// PUT /api/v1/users/:userID/focus
func (h *TriageHandler) SetFocus(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Enabled == nil {
		return apperr.MissingField("enabled")
	}

	changes := a.SetFocusMode(c.UserContext(), *req.Enabled)
	return response.OK(c, reclassified(FocusState{Enabled: *req.Enabled}, changes))
}

// GET /api/v1/users/:userID/priority-rules
func (h *TriageHandler) ListPriorityRules(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	return response.List(c, a.PriorityRules(), 0)
}

// POST /api/v1/users/:userID/priority-rules
func (h *TriageHandler) AddPriorityRule(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	var rule domain.PriorityRule
	if err := parseBody(c, &rule); err != nil {
		return err
	}

	changes, err := a.AddPriorityRule(c.UserContext(), rule)
	if err != nil {
		return err
	}
	return response.Created(c, reclassified(rule, changes))
}

// =============================================================================
// Telemetry
// =============================================================================

// TraceList is the retained traces plus how many the ring buffer evicted.
type TraceList struct {
	Traces  []domain.AgentTrace `json:"traces"`
	Dropped uint64              `json:"dropped"`
}

// GET /api/v1/users/:userID/traces?email_id=&limit=
func (h *TriageHandler) ListTraces(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}

	traces := a.Traces()
	if emailID := c.Query("email_id"); emailID != "" {
		filtered := traces[:0]
		for _, tr := range traces {
			if tr.EmailID == emailID {
				filtered = append(filtered, tr)
			}
		}
		traces = filtered
	}
	if limit := c.QueryInt("limit", 0); limit > 0 && len(traces) > limit {
		traces = traces[len(traces)-limit:]
	}
	if traces == nil {
		traces = []domain.AgentTrace{}
	}

	_, dropped := a.TraceStats()
	return response.OK(c, TraceList{Traces: traces, Dropped: dropped})
}

// GET /api/v1/users/:userID/analytics
func (h *TriageHandler) GetAnalytics(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	return response.OK(c, a.Analytics())
}

// GET /api/v1/users/:userID/weights
func (h *TriageHandler) GetWeights(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	return response.OK(c, a.Weights())
}

// GET /api/v1/users/:userID/actions?limit=
func (h *TriageHandler) ListActions(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	return response.List(c, a.Actions(), c.QueryInt("limit", 0))
}

// GET /api/v1/users/:userID/latency
func (h *TriageHandler) GetLatency(c *fiber.Ctx) error {
	a, err := h.session(c)
	if err != nil {
		return err
	}
	stats := a.LatencyStats()
	out := make(map[string]map[string]any, len(stats))
	for op, s := range stats {
		out[op] = s.ToMap()
	}
	return response.OK(c, out)
}
