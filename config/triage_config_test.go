package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SENDER_KEY_MODE", "TRACE_CAPACITY", "BATCH_PACING_MS", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "email_id", cfg.SenderKeyMode)
	assert.Equal(t, 1000, cfg.TraceCapacity)
	assert.Equal(t, 1, cfg.TelemetryBatchSize)
	assert.Zero(t, cfg.BatchPacing)
	assert.Equal(t, "triage:feedback", cfg.FeedbackStream)
	assert.NotEmpty(t, cfg.ConsumerID)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SENDER_KEY_MODE", "sender_address")
	t.Setenv("BATCH_PACING_MS", "500")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sender_address", cfg.SenderKeyMode)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchPacing)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.MetricsEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown sender key mode", "SENDER_KEY_MODE", "domain"},
		{"zero trace capacity", "TRACE_CAPACITY", "0"},
		{"negative pacing", "BATCH_PACING_MS", "-1"},
		{"zero telemetry batch size", "TELEMETRY_BATCH_SIZE", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
