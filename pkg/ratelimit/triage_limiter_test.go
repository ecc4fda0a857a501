package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestAllow_WithoutRedis(t *testing.T) {
	l := NewSlidingWindowLimiter(nil, "batch", 1, time.Minute)
	for i := 0; i < 3; i++ {
		ok, wait := l.Allow(context.Background(), "u1")
		assert.True(t, ok)
		assert.Zero(t, wait)
	}
}

func TestAllow_FailsOpenOnRedisError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	l := NewSlidingWindowLimiter(client, "batch", 1, time.Minute)
	ok, _ := l.Allow(context.Background(), "u1")
	assert.True(t, ok)
}

func TestKey(t *testing.T) {
	l := NewSlidingWindowLimiter(nil, "batch", 1, time.Minute)
	assert.Equal(t, "ratelimit:batch:u1", l.key("u1"))
}
