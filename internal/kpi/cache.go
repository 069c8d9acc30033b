package kpi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vantico/pulse/internal/channels"
	"github.com/vantico/pulse/internal/metrics"
	"go.uber.org/zap"
)

// SnapshotCache keeps recently computed aggregates in Redis for a
// short TTL so a dashboard re-rendering the same range does not re-fan
// the channel queries. A nil client disables it; lookups then always
// miss and stores are no-ops.
type SnapshotCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl, logger: logger, metrics: m}
}

func snapshotKey(tenantID string, rng channels.Range) string {
	return fmt.Sprintf("kpis:%s:%s:%s",
		tenantID,
		rng.Start.Format("2006-01-02"),
		rng.End.Format("2006-01-02"),
	)
}

// Get returns a cached result for the tenant and range, if present.
// Cache errors are treated as misses.
func (c *SnapshotCache) Get(ctx context.Context, tenantID string, rng channels.Range) (Result, bool) {
	if c == nil || c.client == nil {
		return Result{}, false
	}

	raw, err := c.client.Get(ctx, snapshotKey(tenantID, rng)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("kpi snapshot cache read failed", zap.Error(err))
		}
		if c.metrics != nil {
			c.metrics.KpiCacheMisses.Inc()
		}
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("kpi snapshot cache entry corrupt", zap.Error(err))
		if c.metrics != nil {
			c.metrics.KpiCacheMisses.Inc()
		}
		return Result{}, false
	}

	if c.metrics != nil {
		c.metrics.KpiCacheHits.Inc()
	}
	return res, true
}

// Set stores a computed result. Failures are logged and ignored; the
// cache is an optimization, not a dependency.
func (c *SnapshotCache) Set(ctx context.Context, tenantID string, rng channels.Range, res Result) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("kpi snapshot cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, snapshotKey(tenantID, rng), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("kpi snapshot cache write failed", zap.Error(err))
	}
}

// InvalidateTenant drops the tenant's cached snapshots. Called from
// the registry invalidation path so a tenant switch never serves a
// stale aggregate.
func (c *SnapshotCache) InvalidateTenant(ctx context.Context, tenantID string) {
	c.invalidatePattern(ctx, fmt.Sprintf("kpis:%s:*", tenantID))
}

// InvalidateAll drops every cached snapshot. Pairs with a whole-cache
// registry invalidation, which can repoint tables for any tenant.
func (c *SnapshotCache) InvalidateAll(ctx context.Context) {
	c.invalidatePattern(ctx, "kpis:*")
}

func (c *SnapshotCache) invalidatePattern(ctx context.Context, pattern string) {
	if c == nil || c.client == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("kpi snapshot cache delete failed", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("kpi snapshot cache scan failed", zap.Error(err))
	}
}
