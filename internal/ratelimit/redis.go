package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(redisURL string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisLimiter{client: client}, nil
}

func NewRedisLimiterWithClient(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Check(ctx context.Context, identifier string, limit Limit) (Result, error) {
	key := "ratelimit:" + identifier
	now := time.Now()
	windowStart := now.Add(-limit.Duration)
	reset := now.Add(limit.Duration)

	pipe := l.client.TxPipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", formatTime(windowStart))

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})

	countCmd := pipe.ZCard(ctx, key)

	pipe.Expire(ctx, key, limit.Duration)

	if _, err := pipe.Exec(ctx); err != nil {
		return failClosed(limit), fmt.Errorf("rate limit check: %w", err)
	}

	count := int(countCmd.Val())
	remaining := limit.Points - count
	if remaining < 0 {
		remaining = 0
	}

	if count > limit.Points {
		return Result{
			Allowed:    false,
			Limit:      limit.Points,
			Remaining:  remaining,
			Reset:      reset,
			RetryAfter: limit.Duration,
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     limit.Points,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixNano())
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
