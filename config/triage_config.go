package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateConsumerID creates a unique stream consumer name using hostname and PID
func generateConsumerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "triage"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Storage. Empty URLs fall back to the in-memory collaborators.
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// Engine
	TraceCapacity  int
	BatchPacing    time.Duration
	SenderKeyMode  string
	SessionTTL     time.Duration
	LatencyWindow  int
	MetricsEnabled bool

	// Collaborators
	CollaboratorTimeout time.Duration
	BreakerFailures     int
	BreakerOpenTimeout  time.Duration
	SnapshotTTL         time.Duration
	InboxCacheTTL       time.Duration
	TraceRetention      time.Duration
	InboxLimit          int
	BatchRatePerMin     int

	// Feedback stream
	FeedbackStream       string
	FeedbackStreamMaxLen int64
	ConsumerID           string

	// Telemetry dispatcher
	TelemetryWorkers    int
	TelemetryBatchSize  int // submissions held before the workers see them
	TelemetryMaxRetries int
	TelemetryRatePerSec int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Engine
		TraceCapacity:  getEnvInt("TRACE_CAPACITY", 1000),
		BatchPacing:    time.Duration(getEnvInt("BATCH_PACING_MS", 0)) * time.Millisecond,
		SenderKeyMode:  getEnv("SENDER_KEY_MODE", "email_id"),
		SessionTTL:     time.Duration(getEnvInt("SESSION_TTL_MIN", 60)) * time.Minute,
		LatencyWindow:  getEnvInt("LATENCY_WINDOW", 500),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),

		// Collaborators
		CollaboratorTimeout: time.Duration(getEnvInt("COLLABORATOR_TIMEOUT_SEC", 5)) * time.Second,
		BreakerFailures:     getEnvInt("BREAKER_FAILURES", 5),
		BreakerOpenTimeout:  time.Duration(getEnvInt("BREAKER_OPEN_TIMEOUT_SEC", 30)) * time.Second,
		SnapshotTTL:         time.Duration(getEnvInt("SNAPSHOT_TTL_HOUR", 168)) * time.Hour,
		InboxCacheTTL:       time.Duration(getEnvInt("INBOX_CACHE_TTL_SEC", 120)) * time.Second,
		TraceRetention:      time.Duration(getEnvInt("TRACE_RETENTION_DAY", 30)) * 24 * time.Hour,
		InboxLimit:          getEnvInt("INBOX_LIMIT", 200),
		BatchRatePerMin:     getEnvInt("BATCH_RATE_PER_MIN", 10),

		// Feedback stream
		FeedbackStream:       getEnv("FEEDBACK_STREAM", "triage:feedback"),
		FeedbackStreamMaxLen: int64(getEnvInt("FEEDBACK_STREAM_MAXLEN", 100000)),
		ConsumerID:           getEnv("CONSUMER_ID", generateConsumerID()),

		// Telemetry dispatcher
		TelemetryWorkers:    getEnvInt("TELEMETRY_WORKERS", 4),
		TelemetryBatchSize:  getEnvInt("TELEMETRY_BATCH_SIZE", 1),
		TelemetryMaxRetries: getEnvInt("TELEMETRY_MAX_RETRIES", 3),
		TelemetryRatePerSec: getEnvInt("TELEMETRY_RATE_PER_SEC", 200),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.SenderKeyMode {
	case "email_id", "sender_address":
	default:
		return fmt.Errorf("SENDER_KEY_MODE must be email_id or sender_address, got %q", c.SenderKeyMode)
	}
	if c.TraceCapacity <= 0 {
		return fmt.Errorf("TRACE_CAPACITY must be positive, got %d", c.TraceCapacity)
	}
	if c.BatchPacing < 0 {
		return fmt.Errorf("BATCH_PACING_MS must not be negative")
	}
	if c.LatencyWindow <= 0 {
		return fmt.Errorf("LATENCY_WINDOW must be positive, got %d", c.LatencyWindow)
	}
	if c.TelemetryWorkers <= 0 {
		return fmt.Errorf("TELEMETRY_WORKERS must be positive, got %d", c.TelemetryWorkers)
	}
	if c.TelemetryBatchSize <= 0 {
		return fmt.Errorf("TELEMETRY_BATCH_SIZE must be positive, got %d", c.TelemetryBatchSize)
	}
	if c.TelemetryMaxRetries < 0 || c.BreakerFailures < 0 || c.InboxLimit < 0 {
		return fmt.Errorf("retry, breaker and inbox limits must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
