package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache persists raw snapshots by key.
type Cache interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, raw []byte) error
	Invalidate(ctx context.Context, key string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (m *MemoryCache) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (m *MemoryCache) Store(_ context.Context, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), raw...)
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// RedisCache stores snapshots in Redis with a TTL so stale hints expire.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps client. An empty prefix defaults to "akwaba:kyc".
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "akwaba:kyc"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, prefix: p, ttl: ttl}
}

func (r *RedisCache) key(k string) string {
	return fmt.Sprintf("%s:%s", r.prefix, k)
}

func (r *RedisCache) Load(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *RedisCache) Store(ctx context.Context, key string, raw []byte) error {
	return r.client.Set(ctx, r.key(key), raw, r.ttl).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
