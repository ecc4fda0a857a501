// Package messaging publishes and consumes triage events on Redis Streams.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// DefaultFeedbackStream is the stream feedback events are appended to.
const DefaultFeedbackStream = "triage:feedback"

// FeedbackEvent is the wire form of one feedback entry.
type FeedbackEvent struct {
	UserID      string              `json:"user_id"`
	Feedback    domain.UserFeedback `json:"feedback"`
	PublishedAt time.Time           `json:"published_at"`
}

func encodeFeedbackEvent(ev *FeedbackEvent) (map[string]any, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feedback event: %w", err)
	}
	return map[string]any{"data": string(data)}, nil
}

// DecodeFeedbackEvent parses the data field of a stream entry.
func DecodeFeedbackEvent(data []byte) (*FeedbackEvent, error) {
	var ev FeedbackEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid feedback event: %w", err)
	}
	if ev.UserID == "" {
		return nil, fmt.Errorf("invalid feedback event: missing user_id")
	}
	if err := ev.Feedback.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feedback event: %w", err)
	}
	return &ev, nil
}

// =============================================================================
// Producer
// =============================================================================

// FeedbackProducer implements out.FeedbackSink with XADD. Feedback counts as
// accepted once the entry is in the stream.
type FeedbackProducer struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ out.FeedbackSink = (*FeedbackProducer)(nil)

// NewFeedbackProducer creates a producer. maxLen > 0 trims the stream
// approximately to that length.
func NewFeedbackProducer(client *redis.Client, stream string, maxLen int64) *FeedbackProducer {
	if stream == "" {
		stream = DefaultFeedbackStream
	}
	return &FeedbackProducer{client: client, stream: stream, maxLen: maxLen}
}

func (p *FeedbackProducer) SubmitFeedback(ctx context.Context, userID string, fb *domain.UserFeedback) error {
	values, err := encodeFeedbackEvent(&FeedbackEvent{UserID: userID, Feedback: *fb, PublishedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{Stream: p.stream, ID: "*", Values: values}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return apperr.ExternalError("redis", err).WithDetail("stream", p.stream)
	}
	return nil
}

// =============================================================================
// Archiver (stream → durable store)
// =============================================================================

// FeedbackArchiver is a stream handler that copies feedback events into a
// durable FeedbackSink such as the Postgres adapter.
type FeedbackArchiver struct {
	store out.FeedbackSink
}

var _ StreamHandler = (*FeedbackArchiver)(nil)

func NewFeedbackArchiver(store out.FeedbackSink) *FeedbackArchiver {
	return &FeedbackArchiver{store: store}
}

func (a *FeedbackArchiver) Handle(ctx context.Context, _ string, data []byte) error {
	ev, err := DecodeFeedbackEvent(data)
	if err != nil {
		return err
	}
	return a.store.SubmitFeedback(ctx, ev.UserID, &ev.Feedback)
}
