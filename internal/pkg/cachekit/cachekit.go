// Package cachekit is the read-through, write-invalidate cache coordinator.
// The cache is an optimization, never a dependency for correctness: every
// backend error is reported to the caller as a miss and the caller serves
// from the authoritative store. Bounded staleness is the contract: writers
// invalidate after commit, and the TTL is the safety net if invalidation
// itself fails.
package cachekit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/shareloom/core/internal/pkg/metrics"
	pkgredis "github.com/shareloom/core/internal/pkg/redis"
)

const (
	// Namespace prefixes every key this coordinator owns.
	Namespace = "sl:cache:"

	// DefaultTTL bounds staleness when invalidation is missed.
	DefaultTTL = 60 * time.Second

	scanBatch = 200
)

// Coordinator fronts expensive aggregate reads with Redis.
type Coordinator struct {
	rc  *pkgredis.Client
	log *zap.Logger
	ttl time.Duration
}

func New(rc *pkgredis.Client, log *zap.Logger) *Coordinator {
	return &Coordinator{rc: rc, log: log, ttl: DefaultTTL}
}

// TTL returns the staleness bound applied by Set when ttl <= 0.
func (c *Coordinator) TTL() time.Duration { return c.ttl }

// Get returns the cached value for key. ok is false on a miss or on any
// backend error; callers fall through to the authoritative store either way.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, found, err := c.rc.Get(ctx, Namespace+key)
	if err != nil {
		c.log.Warn("cache get degraded to miss", zap.String("key", key), zap.Error(err))
		metrics.CacheMisses.Inc()
		return nil, false
	}
	if !found {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return raw, true
}

// GetJSON unmarshals a cached value into dest.
func (c *Coordinator) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// poisoned entry, drop it
		c.Invalidate(ctx, key)
		return false
	}
	return true
}

// Set stores an opaque value under key. Errors are logged and swallowed.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.rc.Set(ctx, Namespace+key, value, ttl); err != nil {
		c.log.Warn("cache set skipped", zap.String("key", key), zap.Error(err))
	}
}

// SetJSON marshals value and stores it under key.
func (c *Coordinator) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache set skipped", zap.String("key", key), zap.Error(err))
		return
	}
	c.Set(ctx, key, raw, ttl)
}

// Invalidate removes exact keys. Fire-and-forget relative to the write
// transaction: a failure here only widens staleness up to the TTL.
func (c *Coordinator) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = Namespace + k
	}
	if err := c.rc.Del(ctx, namespaced...); err != nil {
		c.log.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
		return
	}
	metrics.CacheInvalidations.Add(float64(len(keys)))
}

// InvalidatePrefix removes every key under prefix via SCAN, returning the
// number of keys deleted.
func (c *Coordinator) InvalidatePrefix(ctx context.Context, prefix string) int64 {
	rdb := c.rc.Raw()
	pattern := Namespace + prefix + "*"

	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			c.log.Warn("cache prefix invalidate aborted", zap.String("prefix", prefix), zap.Error(err))
			return deleted
		}
		if len(keys) > 0 {
			n, err := rdb.Del(ctx, keys...).Result()
			if err != nil {
				c.log.Warn("cache prefix invalidate aborted", zap.String("prefix", prefix), zap.Error(err))
				return deleted
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		metrics.CacheInvalidations.Add(float64(deleted))
	}
	return deleted
}
