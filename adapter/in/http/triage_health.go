package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// HealthChecker is one dependency probed by /ready.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to HealthChecker.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SessionCounter reports open sessions for /health.
type SessionCounter interface {
	Count() int
}

type HealthHandler struct {
	checks   map[string]HealthChecker
	sessions SessionCounter
	breakers func() map[string]string
	metrics  http.Handler
}

func NewHealthHandler(sessions SessionCounter, metrics http.Handler) *HealthHandler {
	return &HealthHandler{
		checks:   make(map[string]HealthChecker),
		sessions: sessions,
		metrics:  metrics,
	}
}

// WithCheck adds a dependency probed by /ready.
func (h *HealthHandler) WithCheck(name string, check HealthChecker) *HealthHandler {
	h.checks[name] = check
	return h
}

// WithBreakers reports collaborator circuit breaker states on /health.
func (h *HealthHandler) WithBreakers(states func() map[string]string) *HealthHandler {
	h.breakers = states
	return h
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	if h.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.metrics))
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.sessions != nil {
		body["sessions"] = h.sessions.Count()
	}
	if h.breakers != nil {
		body["breakers"] = h.breakers()
	}
	return c.JSON(body)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		checks[name] = "healthy"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
