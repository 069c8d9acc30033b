package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vantico/pulse/internal/metrics"
	"github.com/vantico/pulse/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache resolves (tenant, channel, table type) tuples to physical
// table names, minimizing repeated lookups against the registry table.
//
// It is an explicit object, constructed once per application instance
// and injected into the channel repositories. All writes are additive
// and idempotent; Invalidate is the only destructive operation and is
// tied to tenant-context switches.
type Cache struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	entries   map[string]string
	preloaded map[string]bool

	group singleflight.Group
}

// NewCache constructs a Cache over the given store. metrics may be nil.
func NewCache(store Store, logger *zap.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		store:     store,
		logger:    logger,
		metrics:   m,
		entries:   make(map[string]string),
		preloaded: make(map[string]bool),
	}
}

func cacheKey(tenantID string, channel models.Channel, tableType string) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, channel, tableType)
}

// Resolve returns the physical table name for the tuple, or "" when
// the tenant has no registry entry for it. An empty name with a nil
// error means the integration is not configured, which callers must
// treat as a valid state, not a failure.
//
// On a cache miss it awaits a (possibly already in-flight) whole-tenant
// preload, re-checks, and finally falls back to a single-row lookup.
func (c *Cache) Resolve(ctx context.Context, tenantID string, channel models.Channel, tableType string) (string, error) {
	key := cacheKey(tenantID, channel, tableType)

	c.mu.RLock()
	name, hit := c.entries[key]
	wasPreloaded := c.preloaded[tenantID]
	c.mu.RUnlock()

	if hit {
		if c.metrics != nil {
			c.metrics.RegistryCacheHits.Inc()
		}
		return name, nil
	}
	if c.metrics != nil {
		c.metrics.RegistryCacheMisses.Inc()
	}

	if !wasPreloaded {
		if err := c.Preload(ctx, tenantID); err != nil {
			return "", err
		}

		c.mu.RLock()
		name, hit = c.entries[key]
		c.mu.RUnlock()
		if hit {
			return name, nil
		}
	}

	// The preload did not surface the entry. One direct lookup covers
	// rows added after the preload ran.
	if c.metrics != nil {
		c.metrics.RegistryFallbacks.Inc()
	}
	name, ok, err := c.store.Lookup(ctx, tenantID, channel, tableType)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	c.mu.Lock()
	c.entries[key] = name
	c.mu.Unlock()

	return name, nil
}

// Preload fetches all registry rows for the tenant in one query and
// populates the cache. Concurrent calls for the same tenant coalesce
// onto a single in-flight query.
func (c *Cache) Preload(ctx context.Context, tenantID string) error {
	_, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		entries, err := c.store.ListByTenant(ctx, tenantID)
		if err != nil {
			if c.metrics != nil {
				c.metrics.RegistryPreloads.WithLabelValues("error").Inc()
			}
			return nil, fmt.Errorf("failed to preload registry for tenant %s: %w", tenantID, err)
		}

		c.mu.Lock()
		for _, e := range entries {
			c.entries[cacheKey(e.TenantID, e.Channel, e.TableType)] = e.TableName
		}
		c.preloaded[tenantID] = true
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.RegistryPreloads.WithLabelValues("ok").Inc()
		}
		c.logger.Debug("registry preloaded",
			zap.String("tenant_id", tenantID),
			zap.Int("entries", len(entries)),
		)
		return nil, nil
	})
	return err
}

// ListChannelTables returns the tableType→name mapping for one tenant
// channel, populating the cache as a side effect.
func (c *Cache) ListChannelTables(ctx context.Context, tenantID string, channel models.Channel) (map[string]string, error) {
	entries, err := c.store.ListByChannel(ctx, tenantID, channel)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(entries))
	c.mu.Lock()
	for _, e := range entries {
		c.entries[cacheKey(e.TenantID, e.Channel, e.TableType)] = e.TableName
		result[e.TableType] = e.TableName
	}
	c.mu.Unlock()

	return result, nil
}

// HasIntegration reports whether the tenant has any registry entry for
// the channel. It queries the store directly, independent of the name
// cache.
func (c *Cache) HasIntegration(ctx context.Context, tenantID string, channel models.Channel) (bool, error) {
	count, err := c.store.CountByChannel(ctx, tenantID, channel)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Invalidate clears all cached entries and preload state. Call it when
// the active tenant context changes so a stale table name is never
// served against the wrong tenant.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]string)
	for tenantID := range c.preloaded {
		c.group.Forget(tenantID)
	}
	c.preloaded = make(map[string]bool)
	c.mu.Unlock()
	c.logger.Debug("registry cache invalidated")
}

// InvalidateTenant evicts one tenant's entries and preload state.
func (c *Cache) InvalidateTenant(tenantID string) {
	prefix := tenantID + ":"
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	delete(c.preloaded, tenantID)
	c.group.Forget(tenantID)
	c.mu.Unlock()
	c.logger.Debug("registry cache invalidated", zap.String("tenant_id", tenantID))
}
