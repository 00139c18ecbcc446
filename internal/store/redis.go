package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// streamLockTTL bounds how long a streaming placeholder stays claimed if
// the holder dies without releasing.
const streamLockTTL = 5 * time.Minute

// RedisStore handles Redis operations: rate-limit counters and streaming
// placeholder locks.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// streamLockKey returns the key guarding a streaming placeholder message.
func streamLockKey(messageID string) string {
	return fmt.Sprintf("stream:lock:%s", messageID)
}

// AcquireStreamLock claims exclusive write access to a placeholder
// message's content. Returns false if another writer holds it.
func (s *RedisStore) AcquireStreamLock(ctx context.Context, messageID string) (bool, error) {
	return s.client.SetNX(ctx, streamLockKey(messageID), "1", streamLockTTL).Result()
}

// ReleaseStreamLock releases a placeholder claim.
func (s *RedisStore) ReleaseStreamLock(ctx context.Context, messageID string) {
	s.client.Del(ctx, streamLockKey(messageID))
}

// RateLimitAllow records one request against key and reports whether it
// fits inside a sliding window of the given size. Remaining and resetAt
// feed the X-RateLimit response headers.
func (s *RedisStore) RateLimitAllow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	windowStart := now.Add(-window)

	windowKey := fmt.Sprintf("%s:%d", key, now.Unix()/int64(window.Seconds()))

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, windowKey, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, windowKey)
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, windowKey, window*2)
	_, _ = pipe.Exec(ctx)

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < int64(limit), remaining, now.Add(window)
}
