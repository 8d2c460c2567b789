package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding-window log kept in one sorted set per key, so
// every instance sharing the Redis server enforces the same limit.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisClient connects to addr and verifies the server answers.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	k := l.prefix + key
	member := uuid.NewString()
	windowStart := now.Add(-l.window).UnixMicro()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(windowStart, 10))
	card := pipe.ZCard(ctx, k)
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.PExpire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", k, err)
	}

	if card.Val() < int64(l.limit) {
		return true, 0, nil
	}

	// Over the limit: the rejected request must not occupy a slot.
	if err := l.client.ZRem(ctx, k, member).Err(); err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", k, err)
	}

	retryAfter := l.window
	oldest, err := l.client.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		expires := time.UnixMicro(int64(oldest[0].Score)).Add(l.window)
		if d := expires.Sub(now); d > 0 {
			retryAfter = d
		}
	}
	return false, retryAfter, nil
}
