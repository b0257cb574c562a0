package internal

import (
	"context"
	"errors"
	"time"

	gocache "github.com/eko/gocache/lib/v4/cache"
	gostore "github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"github.com/dgraph-io/ristretto"
	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
// It is the one sentinel every KV-backed component (quota ledger, rate
// limiter, dedup fast-path, provider response cache) checks for.
var ErrCacheMiss = errors.New("internal: cache miss")

// Cache is the §4.1/C2 shared KV store adapter: a TTL'd get/put/delete/incr
// contract that the quota ledger, rate limiter, and provider response cache
// all build on. It is intentionally narrower than a generic Redis client so
// that a NoOpCache or an in-memory fake can stand in during tests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr atomically increments the integer stored at key (creating it at 0
	// first if absent) and returns the new value. ttl is applied only on
	// creation, matching a day-bucketed or sliding-window counter.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisCache is the authoritative Cache implementation: the external
// shared KV store the spec requires so that quota and rate-limit state is
// visible across every process sharing a deployment.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisCache{client: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Incr leans on Redis's native atomic INCR; a small Lua script applies the
// TTL only when that INCR created the key, so the counter and its expiry
// are set atomically in one round trip and later increments keep the
// original expiry.
func (r *RedisCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	script := redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)
	return script.Run(ctx, r.client, []string{key}, ttl.Milliseconds()).Int64()
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }
func (r *RedisCache) Close() error                   { return r.client.Close() }

// NoOpCache stands in when no KV backend is configured (local development,
// unit tests). Reads always miss; writes and increments succeed silently,
// which is safe because every caller treats the cache as advisory.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache { return &NoOpCache{} }

func (n *NoOpCache) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrCacheMiss }
func (n *NoOpCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (n *NoOpCache) Delete(ctx context.Context, key string) error { return nil }
func (n *NoOpCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 1, nil
}
func (n *NoOpCache) Ping(ctx context.Context) error { return nil }
func (n *NoOpCache) Close() error                   { return nil }

// HotCache fronts a Cache with an in-process gocache/ristretto layer so
// repeated lookups of the same provider response within a single process
// don't round-trip to Redis. It mirrors the teacher's layeredcache
// composition of dgraph-io/ristretto behind eko/gocache's
// cache.SetterCacheInterface[[]byte] (hardcover_test.go's layeredcache),
// generalized from a test fake to the process's real hot tier.
type HotCache struct {
	backing Cache
	hot     *gocache.Cache[[]byte]
	metrics *CacheMetrics
}

func NewHotCache(backing Cache) (*HotCache, error) {
	return NewHotCacheWithMetrics(backing, nil)
}

// NewHotCacheWithMetrics is NewHotCache plus an optional CacheMetrics sink;
// passing nil behaves exactly like NewHotCache.
func NewHotCacheWithMetrics(backing Cache, metrics *CacheMetrics) (*HotCache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e7,
		MaxCost:     1 << 28, // 256MB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	hot := gocache.New[[]byte](ristretto_store.NewRistretto(rc))
	return &HotCache{backing: backing, hot: hot, metrics: metrics}, nil
}

func (h *HotCache) Get(ctx context.Context, key string) ([]byte, error) {
	if b, err := h.hot.Get(ctx, key); err == nil {
		h.metrics.cacheHitInc()
		return b, nil
	}
	b, err := h.backing.Get(ctx, key)
	if err != nil {
		h.metrics.cacheMissInc()
		return nil, err
	}
	h.metrics.cacheHitInc()
	_ = h.hot.Set(ctx, key, b, gostore.WithExpiration(time.Minute))
	return b, nil
}

func (h *HotCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = h.hot.Set(ctx, key, value, gostore.WithExpiration(ttl))
	return h.backing.Set(ctx, key, value, ttl)
}

func (h *HotCache) Delete(ctx context.Context, key string) error {
	_ = h.hot.Delete(ctx, key)
	return h.backing.Delete(ctx, key)
}

func (h *HotCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	// Counters are not cached locally: the whole point of routing them
	// through the shared store is that every process sees the same value.
	return h.backing.Incr(ctx, key, ttl)
}

func (h *HotCache) Ping(ctx context.Context) error { return h.backing.Ping(ctx) }
func (h *HotCache) Close() error {
	_ = h.hot.Clear(context.Background())
	return h.backing.Close()
}
