// Package cache stores completion responses for identical requests.
// It supports both in-memory (single instance) and Redis (distributed)
// backends. Caching avoids re-running identical prompts against a vendor.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resumeforge/resume-ai/internal/crypto"
	"github.com/resumeforge/resume-ai/internal/domain"
)

// Cache defines the interface for completion caching backends.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.CompletionResponse, bool)
	Set(ctx context.Context, key string, resp *domain.CompletionResponse, ttl time.Duration) error
}

// GenerateCacheKey creates a unique cache key from the resolved model id
// and the completion request. The key is a SHA-256 hash so arbitrary
// prompt content never appears in store keys.
func GenerateCacheKey(modelID string, req domain.CompletionRequest) string {
	data, _ := json.Marshal(struct {
		Model   string                   `json:"model"`
		Request domain.CompletionRequest `json:"request"`
	}{
		Model:   modelID,
		Request: req,
	})

	hash := sha256.Sum256(data)
	return "completion:" + hex.EncodeToString(hash[:])
}

type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
}

type cacheItem struct {
	response  *domain.CompletionResponse
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{
		items: make(map[string]*cacheItem),
	}
	go c.cleanup()
	return c
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (*domain.CompletionResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(item.expiresAt) {
		return nil, false
	}

	return item.response, true
}

func (c *InMemoryCache) Set(ctx context.Context, key string, resp *domain.CompletionResponse, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem{
		response:  resp,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (c *InMemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, item := range c.items {
			if now.After(item.expiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

type RedisCache struct {
	client *redis.Client
	enc    *crypto.Encryptor
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
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

	return &RedisCache{client: client}, nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// WithEncryptor makes the cache encrypt payloads before they reach
// Redis. Entries written without encryption become unreadable and are
// treated as misses.
func (c *RedisCache) WithEncryptor(enc *crypto.Encryptor) *RedisCache {
	c.enc = enc
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string) (*domain.CompletionResponse, bool) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}

	if c.enc != nil {
		data, err = c.enc.Decrypt(data)
		if err != nil {
			return nil, false
		}
	}

	var resp domain.CompletionResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return nil, false
	}

	return &resp, true
}

func (c *RedisCache) Set(ctx context.Context, key string, resp *domain.CompletionResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	payload := string(data)
	if c.enc != nil {
		payload, err = c.enc.Encrypt(payload)
		if err != nil {
			return err
		}
	}

	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
