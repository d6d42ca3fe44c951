package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/satishbabariya/relq/dialect"
	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/mapping"
)

// flightCache is a string-keyed compute-if-absent cache. Reads take a
// read lock; concurrent misses for one key share a single computation.
// Failed computations are not stored, and neither are computations that
// an invalidate or reset overtook.
type flightCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	gen     uint64
	group   singleflight.Group
	builds  atomic.Int64
}

func newFlightCache[V any]() *flightCache[V] {
	return &flightCache[V]{entries: make(map[string]V)}
}

func (c *flightCache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// get returns the entry for key, computing it on a miss. The shared
// computation runs detached from the cancellation of whichever caller
// started it; each caller stops waiting when its own ctx is done.
func (c *flightCache[V]) get(ctx context.Context, key string, build func(context.Context) (V, error)) (V, bool, error) {
	var zero V
	if v, ok := c.lookup(key); ok {
		return v, true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.RLock()
		v, ok := c.entries[key]
		gen := c.gen
		c.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, err := build(detached)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = v
		}
		c.mu.Unlock()
		c.builds.Add(1)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

func (c *flightCache[V]) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.gen++
	c.group.Forget(key)
}

func (c *flightCache[V]) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.group.Forget(key)
	}
	c.entries = make(map[string]V)
	c.gen++
}

func (c *flightCache[V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ConfigurationInfo is the metadata bound to one configuration.
type ConfigurationInfo struct {
	ServiceInfo   *ServiceInfo
	MappingSchema *mapping.MappingSchema
}

// ConfigurationCache holds one ConfigurationInfo per configuration for
// the life of the cache.
type ConfigurationCache struct {
	cache  *flightCache[*ConfigurationInfo]
	logger *slog.Logger
}

// NewConfigurationCache creates an empty cache.
func NewConfigurationCache(logger *slog.Logger) *ConfigurationCache {
	return &ConfigurationCache{
		cache:  newFlightCache[*ConfigurationInfo](),
		logger: debug.Or(logger, "remote.configurations"),
	}
}

func configurationKey(prefix, configuration string) string {
	return prefix + "\x00" + configuration
}

// Get returns the cached info for configuration, fetching it on a miss.
// Concurrent misses share one fetch.
func (c *ConfigurationCache) Get(
	ctx context.Context,
	prefix, configuration string,
	fetch func(ctx context.Context) (*ConfigurationInfo, error),
) (*ConfigurationInfo, error) {
	info, hit, err := c.cache.get(ctx, configurationKey(prefix, configuration), func(ctx context.Context) (*ConfigurationInfo, error) {
		c.logger.Debug("fetching configuration", "configuration", configuration)
		return fetch(ctx)
	})
	if err != nil {
		c.logger.Warn("configuration fetch failed", "configuration", configuration, "error", err)
		return nil, err
	}
	if hit {
		c.logger.Debug("configuration cache hit", "configuration", configuration)
	}
	return info, nil
}

// Invalidate drops the entry for configuration.
func (c *ConfigurationCache) Invalidate(prefix, configuration string) {
	c.cache.invalidate(configurationKey(prefix, configuration))
}

// Reset drops every entry.
func (c *ConfigurationCache) Reset() {
	c.cache.reset()
}

// Len returns the number of cached configurations.
func (c *ConfigurationCache) Len() int {
	return c.cache.len()
}

// Fetches returns how many fetches have succeeded.
func (c *ConfigurationCache) Fetches() int64 {
	return c.cache.builds.Load()
}

// FactoryKey identifies a strategy factory.
type FactoryKey struct {
	TypeName string
	Flags    dialect.ProviderFlags
}

func (k FactoryKey) String() string {
	return fmt.Sprintf("%s|%+v", strings.ToLower(k.TypeName), k.Flags)
}

// FactoryCache holds zero-argument factories keyed by type name and
// provider flags. Each factory is constructed at most once per key.
type FactoryCache[T any] struct {
	kind   string
	cache  *flightCache[func() T]
	logger *slog.Logger
}

// NewFactoryCache creates an empty cache. kind names the product in logs.
func NewFactoryCache[T any](kind string, logger *slog.Logger) *FactoryCache[T] {
	return &FactoryCache[T]{
		kind:   kind,
		cache:  newFlightCache[func() T](),
		logger: debug.Or(logger, "remote.factories"),
	}
}

// Get returns the factory for key, constructing it with build on a miss.
// build receives a context that is not cancelled with ctx.
func (f *FactoryCache[T]) Get(ctx context.Context, key FactoryKey, build func(context.Context) (func() T, error)) (func() T, error) {
	fn, hit, err := f.cache.get(ctx, key.String(), func(ctx context.Context) (func() T, error) {
		f.logger.Debug("constructing factory", "kind", f.kind, "type", key.TypeName)
		return build(ctx)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		f.logger.Debug("factory cache hit", "kind", f.kind, "type", key.TypeName)
	}
	return fn, nil
}

// Invalidate drops the factory for key.
func (f *FactoryCache[T]) Invalidate(key FactoryKey) {
	f.cache.invalidate(key.String())
}

// Reset drops every factory.
func (f *FactoryCache[T]) Reset() {
	f.cache.reset()
}

// Len returns the number of cached factories.
func (f *FactoryCache[T]) Len() int {
	return f.cache.len()
}

// Constructions returns how many factories have been constructed.
func (f *FactoryCache[T]) Constructions() int64 {
	return f.cache.builds.Load()
}

// Caches bundles the caches shared by the contexts of one process or
// test. Contexts created with the same Caches share metadata and
// factories.
type Caches struct {
	Configurations *ConfigurationCache
	Builders       *FactoryCache[dialect.SqlBuilder]
	Optimizers     *FactoryCache[dialect.SqlOptimizer]
}

// NewCaches creates an empty set of caches.
func NewCaches(logger *slog.Logger) *Caches {
	return &Caches{
		Configurations: NewConfigurationCache(logger),
		Builders:       NewFactoryCache[dialect.SqlBuilder]("sql builder", logger),
		Optimizers:     NewFactoryCache[dialect.SqlOptimizer]("sql optimizer", logger),
	}
}

// Reset empties every cache.
func (c *Caches) Reset() {
	c.Configurations.Reset()
	c.Builders.Reset()
	c.Optimizers.Reset()
}
