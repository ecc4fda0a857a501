// Package cache keeps learning snapshots and fetched inboxes in Redis.
package cache

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/cache"
)

const (
	DefaultSnapshotTTL = 7 * 24 * time.Hour
	DefaultInboxTTL    = 2 * time.Minute
)

var (
	_ out.SessionSnapshotStore = (*SnapshotStore)(nil)
	_ out.EmailSource          = (*InboxCache)(nil)
)

// =============================================================================
// SnapshotStore
// =============================================================================

// SnapshotStore keeps the learned weights and sender history of a session.
// Every save refreshes the TTL, so an idle user eventually starts over from
// the default weights.
type SnapshotStore struct {
	redis *cache.RedisCache
	ttl   time.Duration
}

func NewSnapshotStore(redis *cache.RedisCache, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotStore{redis: redis, ttl: ttl}
}

func snapshotKey(c *cache.RedisCache, userID string) string {
	return c.Key("snapshot", userID)
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, userID string, snap *domain.LearningSnapshot) error {
	if err := s.redis.SetJSON(ctx, snapshotKey(s.redis, userID), snap, s.ttl); err != nil {
		return apperr.ExternalError("redis", err).WithDetail("operation", "save snapshot")
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, userID string) (*domain.LearningSnapshot, error) {
	var snap domain.LearningSnapshot
	found, err := s.redis.GetJSON(ctx, snapshotKey(s.redis, userID), &snap)
	if err != nil {
		return nil, apperr.ExternalError("redis", err).WithDetail("operation", "load snapshot")
	}
	if !found {
		return nil, nil
	}
	return &snap, nil
}

// =============================================================================
// InboxCache
// =============================================================================

// InboxCache serves repeated process-all requests from Redis for a short
// window instead of hitting the mail store each time.
type InboxCache struct {
	next  out.EmailSource
	redis *cache.RedisCache
	ttl   time.Duration
}

func NewInboxCache(next out.EmailSource, redis *cache.RedisCache, ttl time.Duration) *InboxCache {
	if ttl <= 0 {
		ttl = DefaultInboxTTL
	}
	return &InboxCache{next: next, redis: redis, ttl: ttl}
}

func inboxKey(c *cache.RedisCache, userID string) string {
	return c.Key("inbox", userID)
}

// FetchEmails falls through to the wrapped source on a miss or a cache error.
func (c *InboxCache) FetchEmails(ctx context.Context, userID string) ([]domain.Email, error) {
	key := inboxKey(c.redis, userID)

	var emails []domain.Email
	if found, err := c.redis.GetJSON(ctx, key, &emails); err == nil && found {
		return emails, nil
	}

	emails, err := c.next.FetchEmails(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = c.redis.SetJSON(ctx, key, emails, c.ttl)
	return emails, nil
}

// Invalidate drops the cached inbox of a user.
func (c *InboxCache) Invalidate(ctx context.Context, userID string) error {
	return c.redis.Delete(ctx, inboxKey(c.redis, userID))
}
