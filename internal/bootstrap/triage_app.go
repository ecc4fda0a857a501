package bootstrap

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"triage_server/adapter/in/http"
	"triage_server/adapter/in/worker"
	"triage_server/adapter/out/messaging"
	"triage_server/config"
	"triage_server/core/agent"
	"triage_server/core/agent/analytics"
	"triage_server/core/agent/learning"
	"triage_server/core/agent/session"
	"triage_server/core/agent/trace"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"
	"triage_server/pkg/ratelimit"
)

// Mode selects which parts of the server run in this process.
type Mode string

const (
	ModeAPI    Mode = "api"    // HTTP API + telemetry dispatcher
	ModeWorker Mode = "worker" // feedback stream archiver only
	ModeAll    Mode = "all"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAPI, ModeWorker, ModeAll:
		return m, nil
	}
	return "", errors.New("mode must be api, worker or all")
}

// App is the assembled triage server.
type App struct {
	HTTP     *fiber.App
	deps     *Dependencies
	registry *session.Registry
	pool     *worker.Pool
	consumer *messaging.Consumer
	mode     Mode

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

func NewApp(cfg *config.Config, mode Mode) (*App, func(), error) {
	log := logger.Default().Component("bootstrap")

	ctx, cancel := context.WithCancel(context.Background())
	deps, cleanup, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	a := &App{deps: deps, mode: mode, ctx: ctx, cancel: cancel, log: log}

	if mode != ModeWorker {
		if err := a.buildAPI(cfg); err != nil {
			cancel()
			cleanup()
			return nil, nil, err
		}
	}

	// the archiver only has work when feedback goes through the stream
	if mode != ModeAPI && deps.Redis != nil {
		a.consumer = messaging.NewConsumer(deps.Redis, messaging.ConsumerConfig{
			Group:    "triage-archivers",
			Consumer: cfg.ConsumerID,
			Streams:  []string{cfg.FeedbackStream},
			Handler:  messaging.NewFeedbackArchiver(deps.FeedbackArchive),
			Logger:   logger.Default().Component("feedback_archiver"),
		})
	}

	return a, func() {
		a.Stop()
		cleanup()
	}, nil
}

func (a *App) buildAPI(cfg *config.Config) error {
	deps := a.deps

	poolCfg := worker.DefaultPoolConfig()
	poolCfg.Workers = cfg.TelemetryWorkers
	poolCfg.BatchSize = cfg.TelemetryBatchSize
	poolCfg.MaxRetries = cfg.TelemetryMaxRetries
	poolCfg.RatePerSecond = cfg.TelemetryRatePerSec
	a.pool = worker.NewPool(worker.NewHandler(deps.Traces), poolCfg, logger.Default().Component("telemetry_pool"))

	keyMode, err := learning.ParseSenderKeyMode(cfg.SenderKeyMode)
	if err != nil {
		return err
	}

	sessionDeps := agent.SessionDeps{
		Emails:     deps.Emails,
		Goals:      deps.Goals,
		Feedback:   deps.Feedback,
		Analyses:   deps.Analyses,
		Snapshots:  deps.Snapshots,
		TraceSinks: []trace.Sink{a.pool},
		Publisher:  a.pool,
		Latency:    deps.Latency,
	}
	if cfg.MetricsEnabled {
		sessionDeps.Observers = []analytics.Observer{deps.Observer}
	}
	a.registry = session.NewRegistry(sessionDeps, agent.SessionConfig{
		SenderKeyMode: keyMode,
		TraceCapacity: cfg.TraceCapacity,
		Pacing:        cfg.BatchPacing,
	}, cfg.SessionTTL, logger.Default().Zerolog())

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json: 표준 encoding/json 대비 2~3배 빠른 JSON 직렬화
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 4 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID",
		MaxAge:        86400,
	}))

	var metricsHandler = deps.Observer.Handler()
	if !cfg.MetricsEnabled {
		metricsHandler = nil
	}
	health := http.NewHealthHandler(a.registry, metricsHandler).WithBreakers(deps.BreakerStates)
	if deps.DB != nil {
		health.WithCheck("postgres", http.PingFunc(deps.DB.Ping))
	}
	if deps.Redis != nil {
		health.WithCheck("redis", http.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}))
	}
	if deps.MongoDB != nil {
		health.WithCheck("mongodb", http.PingFunc(func(ctx context.Context) error {
			return deps.MongoDB.Ping(ctx, nil)
		}))
	}
	health.Register(app)

	batchLimiter := ratelimit.NewSlidingWindowLimiter(deps.Redis, "process_all", cfg.BatchRatePerMin, time.Minute)
	http.NewTriageHandler(a.registry).
		WithBatchLimit(middleware.RateLimit(batchLimiter, func(c *fiber.Ctx) string { return c.Params("userID") })).
		Register(app.Group("/api/v1"))

	a.HTTP = app
	return nil
}

// Start runs the background components. It does not block.
func (a *App) Start() error {
	if a.pool != nil {
		if err := a.pool.Start(); err != nil {
			return err
		}
	}
	if a.consumer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.Info().Msg("Starting feedback stream consumer...")
			if err := a.consumer.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("feedback stream consumer stopped")
			}
		}()
	}
	return nil
}

// Done is closed when the app was stopped.
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Stop is idempotent.
func (a *App) Stop() {
	a.cancel()
	a.wg.Wait()
	if a.registry != nil {
		a.registry.Stop()
	}
	if a.pool != nil {
		a.pool.Stop()
	}
}
