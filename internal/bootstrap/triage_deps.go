package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"triage_server/adapter/out/cache"
	"triage_server/adapter/out/memory"
	"triage_server/adapter/out/messaging"
	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/persistence"
	"triage_server/adapter/out/resilient"
	"triage_server/adapter/out/telemetry"
	"triage_server/config"
	"triage_server/core/port/out"
	"triage_server/infra/database"
	rediscache "triage_server/pkg/cache"
	"triage_server/pkg/metrics"
	"triage_server/pkg/resilience"
)

// Dependencies holds the infrastructure clients and the collaborator ports
// handed to every triage session. A missing URL falls back to the in-memory
// collaborator for that concern.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	Emails    out.EmailSource
	Goals     out.GoalStore
	Feedback  out.FeedbackSink
	Snapshots out.SessionSnapshotStore
	Analyses  out.AnalysisRepository
	Traces    out.TraceSink

	// FeedbackArchive receives events read back from the feedback stream.
	FeedbackArchive out.FeedbackSink

	Observer *telemetry.PrometheusObserver
	Latency  *metrics.LatencyRegistry
	Breakers []*resilience.Breaker
}

func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config:   cfg,
		Observer: telemetry.NewPrometheusObserver(),
		Latency:  metrics.NewLatencyRegistry(cfg.LatencyWindow),
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// PostgreSQL: goals, feedback archive, analyses, inbox
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		cleanups = append(cleanups, pool.Close)
		deps.DB = pool

		deps.SQLDB = database.NewSQLX(pool)
		cleanups = append(cleanups, func() { _ = deps.SQLDB.Close() })
		if err := persistence.Migrate(ctx, deps.SQLDB); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}

		deps.Emails = persistence.NewEmailAdapter(deps.SQLDB, cfg.InboxLimit)
		deps.Goals = persistence.NewGoalAdapter(deps.SQLDB)
		deps.FeedbackArchive = persistence.NewFeedbackAdapter(deps.SQLDB)
		deps.Analyses = persistence.NewAnalysisAdapter(deps.SQLDB)
		log.Info().Msg("PostgreSQL connected")
	} else {
		deps.Emails = memory.NewInbox()
		deps.Goals = memory.NewGoalStore()
		deps.FeedbackArchive = memory.NewFeedbackLog()
		deps.Analyses = memory.NewAnalysisStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory goals, feedback and analyses")
	}
	deps.Feedback = deps.FeedbackArchive

	// Redis: learning snapshots, inbox cache, feedback stream
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL, nil)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		deps.Redis = client

		rc := rediscache.NewRedisCache(client, "triage")
		deps.Snapshots = cache.NewSnapshotStore(rc, cfg.SnapshotTTL)
		deps.Emails = cache.NewInboxCache(deps.Emails, rc, cfg.InboxCacheTTL)
		deps.Feedback = messaging.NewFeedbackProducer(client, cfg.FeedbackStream, cfg.FeedbackStreamMaxLen)
		log.Info().Msg("Redis connected")
	} else {
		deps.Snapshots = memory.NewSnapshotStore()
		log.Warn().Msg("REDIS_URL not set, feedback is archived synchronously")
	}

	// MongoDB: agent traces and analytics snapshots
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			return fail(fmt.Errorf("mongodb: %w", err))
		}
		cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })
		deps.MongoDB = client

		traces := mongodb.NewTraceAdapter(client.Database(cfg.MongoDBName), cfg.TraceRetention)
		if err := traces.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("trace indexes not created")
		}
		deps.Traces = traces
		log.Info().Msg("MongoDB connected")
	} else {
		deps.Traces = memory.NewTraceLog()
	}

	deps.wrapCollaborators(log)
	return deps, cleanup, nil
}

// wrapCollaborators puts a circuit breaker in front of every port that
// crosses the process boundary.
func (d *Dependencies) wrapCollaborators(log zerolog.Logger) {
	cfg := d.Config
	breaker := func(name string) *resilience.Breaker {
		b := resilience.NewBreaker(resilience.BreakerConfig{
			Name:             name,
			FailureThreshold: uint32(cfg.BreakerFailures),
			OpenTimeout:      cfg.BreakerOpenTimeout,
			CallTimeout:      cfg.CollaboratorTimeout,
		}, func(name, from, to string) {
			log.Warn().Str("breaker", name).Str("from", from).Str("to", to).Msg("circuit breaker state changed")
		})
		d.Breakers = append(d.Breakers, b)
		return b
	}

	d.Emails = resilient.NewEmailSource(d.Emails, breaker("email_source"))
	d.Goals = resilient.NewGoalStore(d.Goals, breaker("goal_store"))
	d.Feedback = resilient.NewFeedbackSink(d.Feedback, breaker("feedback_sink"))
	d.Traces = resilient.NewTraceSink(d.Traces, breaker("trace_sink"))
}

// BreakerStates reports the state of every collaborator breaker.
func (d *Dependencies) BreakerStates() map[string]string {
	states := make(map[string]string, len(d.Breakers))
	for _, b := range d.Breakers {
		states[b.Name()] = b.State()
	}
	return states
}
