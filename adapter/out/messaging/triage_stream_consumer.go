package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamHandler processes the data field of one stream entry.
type StreamHandler interface {
	Handle(ctx context.Context, stream string, data []byte) error
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  StreamHandler
	Logger   zerolog.Logger

	// Optional; zero values use the defaults below.
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
	Block                time.Duration
}

// Consumer reads streams through a consumer group, reclaims entries stuck
// in the pending list and moves entries that keep failing to dlq:<stream>.
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	log    zerolog.Logger
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.PendingCheckInterval <= 0 {
		cfg.PendingCheckInterval = 30 * time.Second
	}
	if cfg.PendingIdleTime <= 0 {
		cfg.PendingIdleTime = 2 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Consumer{
		client: client,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "stream_consumer").Str("group", cfg.Group).Logger(),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for _, stream := range c.cfg.Streams {
		c.ensureGroup(ctx, stream)
	}
	go c.reclaimLoop(ctx)

	c.log.Info().Strs("streams", c.cfg.Streams).Msg("consumer started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  readArgs(c.cfg.Streams),
			Count:    10,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handle(ctx, s.Stream, msg)
			}
		}
	}
}

// readArgs builds the XREADGROUP stream list: names, then one ">" per name.
func readArgs(streams []string) []string {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}
	return args
}

func (c *Consumer) handle(ctx context.Context, stream string, msg redis.XMessage) {
	data, err := messageData(msg)
	if err == nil {
		err = c.cfg.Handler.Handle(ctx, stream, data)
	}
	if err != nil {
		// left pending; the reclaim loop retries it
		c.log.Error().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("error processing message")
		return
	}
	if err := c.client.XAck(ctx, stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.log.Error().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("error acknowledging message")
	}
}

func messageData(msg redis.XMessage) ([]byte, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("invalid message format: missing data field")
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: data is not a string")
	}
	return []byte(s), nil
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range c.cfg.Streams {
				c.reclaim(ctx, stream)
			}
		}
	}
}

// reclaim claims idle pending entries and retries them, dead-lettering
// those past the retry limit.
func (c *Consumer) reclaim(ctx context.Context, stream string) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.PendingIdleTime,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
		}
		return
	}

	for _, p := range pending {
		if int(p.RetryCount) >= c.cfg.MaxRetries {
			if err := c.deadLetter(ctx, stream, p.ID); err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ")
				continue
			}
			c.client.XAck(ctx, stream, c.cfg.Group, p.ID)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.PendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
			continue
		}
		for _, msg := range claimed {
			c.handle(ctx, stream, msg)
		}
	}
}

// DeadLetterStream returns the DLQ stream name for stream.
func DeadLetterStream(stream string) string {
	return "dlq:" + stream
}

func (c *Consumer) deadLetter(ctx context.Context, stream, id string) error {
	entries, err := c.client.XRange(ctx, stream, id, id).Result()
	if err != nil {
		return fmt.Errorf("failed to read message for DLQ: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("message %s not found in stream %s", id, stream)
	}

	values := map[string]any{
		"original_stream": stream,
		"original_id":     id,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"group":           c.cfg.Group,
	}
	for k, v := range entries[0].Values {
		values["original_"+k] = v
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: DeadLetterStream(stream), Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to add message to DLQ: %w", err)
	}
	c.log.Warn().Str("stream", stream).Str("id", id).Msg("message moved to DLQ")
	return nil
}

func (c *Consumer) ensureGroup(ctx context.Context, stream string) {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		c.log.Warn().Err(err).Str("stream", stream).Msg("error creating consumer group")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
