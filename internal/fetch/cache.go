package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores response bodies keyed by URL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// DefaultMemoryEntries is the capacity of a MemoryCache created without one.
const DefaultMemoryEntries = 4096

type memoryEntry struct {
	expires time.Time
	data    []byte
}

// MemoryCache is an in-process Cache holding a bounded number of entries.
// The least recently used entry is evicted when it is full; expired entries
// are removed when read.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache with DefaultMemoryEntries slots.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheSize(DefaultMemoryEntries)
}

// NewMemoryCacheSize creates an empty MemoryCache holding at most size entries.
func NewMemoryCacheSize(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	// lru.New only fails for a non-positive size
	entries, _ := lru.New[string, memoryEntry](size)
	return &MemoryCache{entries: entries, now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if m.now().After(e.expires) {
		m.entries.Remove(key)
		return nil, false
	}
	return e.data, true
}

func (m *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.entries.Add(key, memoryEntry{data: data, expires: m.now().Add(ttl)})
	return nil
}

// Len returns the number of stored entries. Expired entries count until
// they are read or evicted.
func (m *MemoryCache) Len() int {
	return m.entries.Len()
}

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Address   string
	Password  string
	KeyPrefix string
	DB        int
}

// RedisCache shares fetched datasets between processes through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "springmap:fetch:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed connecting to redis at %s: %w", cfg.Address, err)
	}

	return &RedisCache{client: client, prefix: cfg.KeyPrefix}, nil
}

func (r *RedisCache) Get(_ context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (r *RedisCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(r.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s in redis: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// key hashes URLs so arbitrary query strings stay valid Redis keys.
func (r *RedisCache) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return r.prefix + hex.EncodeToString(sum[:])
}
