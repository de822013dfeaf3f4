package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertDeduplicator suppresses repeated alerts for the same user and
// level, including across instances when backed by Redis.
type AlertDeduplicator interface {
	// ShouldAlert reports whether this alert is new and should be sent.
	ShouldAlert(ctx context.Context, userID string, level AlertLevel) bool

	// ClearAlert drops the alert state for a user, typically when spend
	// falls back under the warning threshold.
	ClearAlert(ctx context.Context, userID string)
}

// InMemoryDeduplicator holds alert state in process memory.
type InMemoryDeduplicator struct {
	mu         sync.RWMutex
	lastAlerts map[string]AlertLevel
}

func NewInMemoryDeduplicator() *InMemoryDeduplicator {
	return &InMemoryDeduplicator{
		lastAlerts: make(map[string]AlertLevel),
	}
}

func (d *InMemoryDeduplicator) ShouldAlert(ctx context.Context, userID string, level AlertLevel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	lastLevel, exists := d.lastAlerts[userID]
	if exists && lastLevel == level {
		return false
	}

	d.lastAlerts[userID] = level
	return true
}

func (d *InMemoryDeduplicator) ClearAlert(ctx context.Context, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastAlerts, userID)
}

// RedisDeduplicator shares alert state through Redis so only one
// instance dispatches a given alert.
type RedisDeduplicator struct {
	client  *redis.Client
	lockTTL time.Duration
}

// NewRedisDeduplicator connects to Redis. lockTTL bounds how long an
// alert stays suppressed; an hour works for monthly spend ceilings.
func NewRedisDeduplicator(redisURL string, lockTTL time.Duration) (*RedisDeduplicator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisDeduplicator{
		client:  client,
		lockTTL: lockTTL,
	}, nil
}

func NewRedisDeduplicatorWithClient(client *redis.Client, lockTTL time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{
		client:  client,
		lockTTL: lockTTL,
	}
}

func (d *RedisDeduplicator) alertKey(userID string, level AlertLevel) string {
	return fmt.Sprintf("spend:alert:%s:%s", userID, level)
}

// ShouldAlert uses SETNX so exactly one instance wins the alert.
func (d *RedisDeduplicator) ShouldAlert(ctx context.Context, userID string, level AlertLevel) bool {
	key := d.alertKey(userID, level)

	acquired, err := d.client.SetNX(ctx, key, time.Now().Unix(), d.lockTTL).Result()
	if err != nil {
		// Fail open when Redis is unreachable.
		return true
	}

	return acquired
}

func (d *RedisDeduplicator) ClearAlert(ctx context.Context, userID string) {
	pattern := fmt.Sprintf("spend:alert:%s:*", userID)
	keys, err := d.client.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}

	d.client.Del(ctx, keys...)
}

func (d *RedisDeduplicator) Close() error {
	return d.client.Close()
}
