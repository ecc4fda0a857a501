package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/adapter/out/memory"
	"triage_server/core/domain"
	"triage_server/pkg/apperr"
	"triage_server/pkg/cache"
)

// unreachable points at a closed port so every Redis call fails fast.
func unreachable() *cache.RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	return cache.NewRedisCache(client, "triage")
}

func TestKeys(t *testing.T) {
	c := unreachable()
	assert.Equal(t, "triage:snapshot:u1", snapshotKey(c, "u1"))
	assert.Equal(t, "triage:inbox:u1", inboxKey(c, "u1"))
	assert.Equal(t, "snapshot:u1", snapshotKey(cache.NewRedisCache(nil, ""), "u1"))
}

func TestInboxCache_FallsThroughWhenRedisDown(t *testing.T) {
	inbox := memory.NewInbox()
	inbox.Put("u1", domain.Email{ID: "e1"})
	c := NewInboxCache(inbox, unreachable(), 0)

	got, err := c.FetchEmails(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, inbox.Calls())

	inbox.FailWith(errors.New("mail store down"))
	_, err = c.FetchEmails(context.Background(), "u1")
	assert.Error(t, err)
}

func TestSnapshotStore_ReportsRedisErrors(t *testing.T) {
	s := NewSnapshotStore(unreachable(), 0)
	assert.Equal(t, DefaultSnapshotTTL, s.ttl)

	_, err := s.LoadSnapshot(context.Background(), "u1")
	assert.True(t, apperr.HasCode(err, apperr.CodeExternalError), "%v", err)
	err = s.SaveSnapshot(context.Background(), "u1", &domain.LearningSnapshot{Weights: domain.DefaultWeights()})
	assert.True(t, apperr.HasCode(err, apperr.CodeExternalError), "%v", err)
}
