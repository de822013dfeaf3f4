// Package kvstore wraps the shared key-value store used for the response
// cache, rate-limit counters, and settings persistence. It supports both
// in-memory (single instance) and Redis (distributed) backends; only
// get/set/increment/expire primitives with TTL support are required.
package kvstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store defines the primitives the core depends on. GetJSON treats a
// deserialization failure as a miss; SetJSON failures are returned so the
// caller can decide whether the write was load-bearing (for caching it
// never is).
type Store interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
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

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests running
// against miniredis.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt entries are treated as misses, never surfaced.
		return false, nil
	}

	return true, nil
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// IncrBy atomically increments the counter and sets its expiry in a single
// pipeline so concurrent instances never undercount.
func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incrCmd := pipe.IncrBy(ctx, key, delta)
	pipe.ExpireNX(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incrCmd.Val(), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type memoryItem struct {
	data      []byte
	counter   int64
	expiresAt time.Time
}

// InMemoryStore implements Store with a process-local map. Suitable for
// single-instance deployments and tests.
type InMemoryStore struct {
	mu    sync.Mutex
	items map[string]*memoryItem
	now   func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{
		items: make(map[string]*memoryItem),
		now:   time.Now,
	}
	go s.cleanup()
	return s
}

func (s *InMemoryStore) get(key string) *memoryItem {
	item, ok := s.items[key]
	if !ok {
		return nil
	}
	if !item.expiresAt.IsZero() && s.now().After(item.expiresAt) {
		delete(s.items, key)
		return nil
	}
	return item
}

func (s *InMemoryStore) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.get(key)
	if item == nil || item.data == nil {
		return false, nil
	}

	if err := json.Unmarshal(item.data, v); err != nil {
		return false, nil
	}

	return true, nil
}

func (s *InMemoryStore) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := &memoryItem{data: data}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = item

	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *InMemoryStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.get(key)
	if item == nil {
		item = &memoryItem{}
		if ttl > 0 {
			item.expiresAt = s.now().Add(ttl)
		}
		s.items[key] = item
	}

	item.counter += delta
	return item.counter, nil
}

func (s *InMemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := s.now()
		for key, item := range s.items {
			if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
				delete(s.items, key)
			}
		}
		s.mu.Unlock()
	}
}
