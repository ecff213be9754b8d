package cipher

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// KeyCache stores derived conversation keys by conversation id.
// Implementations must be safe for concurrent use.
type KeyCache interface {
	// Get returns ErrMiss when no key is stored for id.
	Get(ctx context.Context, id string) (string, error)
	Set(ctx context.Context, id, key string) error
}

// ErrMiss signals a cache miss, distinct from backend failures.
var ErrMiss = errMiss{}

type errMiss struct{}

func (errMiss) Error() string { return "cipher: key cache miss" }

// MemoryCache keeps keys for the lifetime of the process. Nothing is evicted.
type MemoryCache struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{keys: make(map[string]string)}
}

var _ KeyCache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, id string) (string, error) {
	c.mu.RLock()
	key, ok := c.keys[id]
	c.mu.RUnlock()
	if !ok {
		return "", ErrMiss
	}
	return key, nil
}

func (c *MemoryCache) Set(_ context.Context, id, key string) error {
	c.mu.Lock()
	c.keys[id] = key
	c.mu.Unlock()
	return nil
}

// Len reports the number of cached keys.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

const redisKeyPrefix = "convkey:"

// RedisCache shares derived keys between server instances.
// Entries are written without a TTL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

var _ KeyCache = (*RedisCache)(nil)

func (c *RedisCache) Get(ctx context.Context, id string) (string, error) {
	key, err := c.client.Get(ctx, redisKeyPrefix+id).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", id, err)
	}
	return key, nil
}

func (c *RedisCache) Set(ctx context.Context, id, key string) error {
	if err := c.client.Set(ctx, redisKeyPrefix+id, key, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", id, err)
	}
	return nil
}
