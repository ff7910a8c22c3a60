package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache stores serialized profiles.
type Cache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	GenerateKey(operation, key string) string
}

type redisCache struct {
	client      *redis.Client
	serviceName string
}

func NewRedisCache(client *redis.Client, serviceName string) Cache {
	return &redisCache{client: client, serviceName: serviceName}
}

func (r *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *redisCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, operation, key)
}

// lruCache is the in-process fallback when no Redis is configured. Entries
// expire after the ttl given at construction.
type lruCache struct {
	lru         *expirable.LRU[string, string]
	serviceName string
}

func NewLRUCache(size int, ttl time.Duration, serviceName string) Cache {
	return &lruCache{
		lru:         expirable.NewLRU[string, string](size, nil, ttl),
		serviceName: serviceName,
	}
}

func (c *lruCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.lru.Add(key, value)
	return nil
}

func (c *lruCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *lruCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", c.serviceName, operation, key)
}

// CachedLookup serves profiles from the cache and falls back to the wrapped
// lookups on a miss. Cache errors are logged and bypassed.
type CachedLookup struct {
	users   UserLookup
	tenants TenantLookup
	cache   Cache
	ttl     time.Duration
}

func NewCachedLookup(users UserLookup, tenants TenantLookup, cache Cache, ttl time.Duration) *CachedLookup {
	return &CachedLookup{users: users, tenants: tenants, cache: cache, ttl: ttl}
}

func (c *CachedLookup) GetUserProfile(ctx context.Context, domain, email string) (*UserProfile, error) {
	key := c.cache.GenerateKey("user", domain+":"+email)
	return cached(ctx, c, key, func() (*UserProfile, error) {
		return c.users.GetUserProfile(ctx, domain, email)
	})
}

func (c *CachedLookup) FindByDomain(ctx context.Context, domain string) (*TenantProfile, error) {
	key := c.cache.GenerateKey("tenant", domain)
	return cached(ctx, c, key, func() (*TenantProfile, error) {
		return c.tenants.FindByDomain(ctx, domain)
	})
}

func cached[T any](ctx context.Context, c *CachedLookup, key string, load func() (*T, error)) (*T, error) {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Profile cache read failed", "key", key, "error", err)
	}
	if ok {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return &v, nil
		}
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(v); err == nil {
		if err := c.cache.Set(ctx, key, string(b), c.ttl); err != nil {
			slog.WarnContext(ctx, "Profile cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}
