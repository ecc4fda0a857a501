package worker

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"triage_server/core/domain"
)

// JobType represents the type of a telemetry job.
type JobType = string

const (
	JobTraceShip     JobType = "telemetry.trace"
	JobAnalyticsShip JobType = "telemetry.analytics"
)

type Message struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`
}

// NewMessage encodes payload into a new job message.
func NewMessage(jobType JobType, userID string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		UserID:    userID,
		Payload:   data,
		CreatedAt: time.Now(),
	}, nil
}

// Telemetry payloads
type TracePayload struct {
	Trace domain.AgentTrace `json:"trace"`
}

type AnalyticsPayload struct {
	Analytics domain.AnalyticsData `json:"analytics"`
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
