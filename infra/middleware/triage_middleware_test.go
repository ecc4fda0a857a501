package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/resilience"
)

func newApp(handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(Recover(), RequestID())
	app.Get("/", handler)
	return app
}

func TestErrorHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error", apperr.NotFound("analysis"), http.StatusNotFound, apperr.CodeNotFound},
		{"wrapped app error", fmt.Errorf("load: %w", apperr.MissingField("id")), http.StatusBadRequest, apperr.CodeMissingField},
		{"collaborator", apperr.CollaboratorFailed("goal_store", errors.New("down")), http.StatusBadGateway, apperr.CodeCollaboratorFailed},
		{"fiber error", fiber.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"open breaker", resilience.ErrCircuitOpen, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, apperr.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), `"code":"`+tt.code+`"`)
			assert.Contains(t, string(body), `"request_id":"`+resp.Header.Get("X-Request-ID")+`"`)
		})
	}
}

func TestRecover(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error { return c.SendString(c.Locals("request_id").(string)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "req-42", string(body))
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestRequestID_StoredInUserContext(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return c.SendString(logger.RequestIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-7")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "req-7", string(body))
}

func TestErrorHandler_AlreadyExists(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error { return apperr.AlreadyExists("goal") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

type fixedLimiter struct {
	allow bool
	wait  time.Duration
	keys  []string
}

func (l *fixedLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	l.keys = append(l.keys, key)
	return l.allow, l.wait
}

func TestRateLimit(t *testing.T) {
	limiter := &fixedLimiter{wait: 1500 * time.Millisecond}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/users/:userID", RateLimit(limiter, func(c *fiber.Ctx) string { return c.Params("userID") }),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users/u1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
	assert.Equal(t, []string{"u1"}, limiter.keys)

	limiter.allow = true
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/users/u1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
