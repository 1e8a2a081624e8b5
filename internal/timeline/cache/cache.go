// Package cache stores computed layouts in Redis. Concurrent misses for the
// same request share one computation through singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "layout:"

// Pattern matches every layout key.
const Pattern = keyPrefix + "*"

// computeTimeout bounds a shared computation once it is detached from the
// caller that started it.
const computeTimeout = 30 * time.Second

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type LayoutCache struct {
	backend Backend
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a LayoutCache. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *LayoutCache {
	return &LayoutCache{
		backend: backend,
		ttl:     ttl,
		timeout: computeTimeout,
		metrics: m,
		logger:  slog.Default().With("component", "layout-cache"),
	}
}

func (c *LayoutCache) Get(ctx context.Context, req timeline.LayoutRequest) (lanes.KindResults, bool) {
	results, ok := c.lookup(ctx, Key(req))
	if !ok {
		c.miss()
		return nil, false
	}
	c.hit()
	return results, true
}

func (c *LayoutCache) lookup(ctx context.Context, key string) (lanes.KindResults, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var results lanes.KindResults
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key)
	return results, true
}

func (c *LayoutCache) Set(ctx context.Context, req timeline.LayoutRequest, results lanes.KindResults) {
	key := Key(req)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached layout for req, or runs compute and
// caches its result. The bool reports a cache hit.
//
// Concurrent misses for the same request share one compute call, detached
// from ctx and bounded by its own timeout. A caller whose ctx ends stops
// waiting and gets ctx.Err(); the others still receive the result.
func (c *LayoutCache) GetOrCompute(
	ctx context.Context,
	req timeline.LayoutRequest,
	compute func(ctx context.Context) (lanes.KindResults, error),
) (lanes.KindResults, bool, error) {
	if results, ok := c.Get(ctx, req); ok {
		return results, true, nil
	}
	key := Key(req)
	ch := c.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		if results, ok := c.lookup(cctx, key); ok {
			return results, nil
		}
		results, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		c.Set(cctx, req, results)
		return results, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(lanes.KindResults), false, nil
	}
}

// Invalidate drops every cached layout and returns how many keys were
// removed.
func (c *LayoutCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, Pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating layout cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *LayoutCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LayoutCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *LayoutCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Key derives the cache key from the request's normalized form.
func Key(req timeline.LayoutRequest) string {
	hash := sha256.Sum256([]byte(req.Normalized()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
