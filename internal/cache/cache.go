// Package cache memoizes dataset loads for the life of the process.
//
// Entries are keyed by file path and populated on first access. Concurrent
// first accesses to the same path share a single load. Failed loads are not
// cached, so a corrected file is picked up by the next request. Entries leave
// the cache only through Invalidate or Clear, which the HTTP adapter and the
// dataset refresh listener call.
package cache

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/loader"
	"github.com/bdu-carp/risk-dashboard/internal/observability"
)

// Loader reads a dataset from its source.
type Loader interface {
	Load(ctx context.Context, spec loader.Spec) (*domain.Table, error)
}

// Info describes a cached dataset.
type Info struct {
	Path     string    `json:"path"`
	Rows     int       `json:"rows"`
	Columns  int       `json:"columns"`
	LoadedAt time.Time `json:"loaded_at"`
}

type entry struct {
	table    *domain.Table
	loadedAt time.Time
}

// Cache is a process-wide, read-only table cache.
type Cache struct {
	loader  Loader
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
	// epoch (bumped by Clear) and gen (bumped per path by Invalidate) stop
	// loads that started earlier from storing a stale table.
	epoch uint64
	gen   map[string]uint64
}

type stamp struct {
	epoch, gen uint64
}

// flightKey scopes a shared load to one stamp, so callers arriving after an
// Invalidate or Clear start a fresh load instead of joining an older one.
func (st stamp) flightKey(key string) string {
	return key + "\x00" + strconv.FormatUint(st.epoch, 10) + "." + strconv.FormatUint(st.gen, 10)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for load timestamps and durations.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// New creates an empty cache in front of l.
func New(l Loader, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Cache {
	c := &Cache{
		loader:  l,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]entry),
		gen:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the cached table for spec, loading it on first access.
// The returned table is shared and must not be modified.
func (c *Cache) Load(ctx context.Context, spec loader.Spec) (*domain.Table, error) {
	key := spec.Key()

	c.mu.RLock()
	e, ok := c.entries[key]
	st := stamp{epoch: c.epoch, gen: c.gen[key]}
	c.mu.RUnlock()
	if ok {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return e.table, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(st.flightKey(key), func() (any, error) {
		// Detached so one caller giving up does not fail the shared load.
		return c.load(context.WithoutCancel(ctx), spec, st)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Table), nil
	}
}

func (c *Cache) load(ctx context.Context, spec loader.Spec, st stamp) (*domain.Table, error) {
	key := spec.Key()
	start := c.clock.Now()
	t, err := c.loader.Load(ctx, spec)
	c.metrics.DatasetLoadDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.DatasetLoads.WithLabelValues("error").Inc()
		c.logger.Error("dataset load failed", "path", key, "error", err)
		return nil, err
	}
	c.metrics.DatasetLoads.WithLabelValues("success").Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if (stamp{epoch: c.epoch, gen: c.gen[key]}) != st {
		c.logger.Debug("dataset invalidated during load, not caching", "path", key)
		return t, nil
	}
	c.entries[key] = entry{table: t, loadedAt: c.clock.Now()}
	c.metrics.DatasetsCached.Set(float64(len(c.entries)))
	c.logger.Info("dataset cached", "path", key, "rows", t.Len())
	return t, nil
}

// Invalidate drops the entry for path. It reports whether an entry existed.
func (c *Cache) Invalidate(path string) bool {
	c.mu.Lock()
	_, ok := c.entries[path]
	delete(c.entries, path)
	c.gen[path]++
	c.metrics.DatasetsCached.Set(float64(len(c.entries)))
	c.mu.Unlock()

	if ok {
		c.logger.Info("dataset invalidated", "path", path)
	}
	return ok
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.epoch++
	c.metrics.DatasetsCached.Set(0)
	c.mu.Unlock()

	c.logger.Info("dataset cache cleared", "entries", n)
	return n
}

// Entries lists the cached datasets ordered by path.
func (c *Cache) Entries() []Info {
	c.mu.RLock()
	out := make([]Info, 0, len(c.entries))
	for k, e := range c.entries {
		out = append(out, Info{Path: k, Rows: e.table.Len(), Columns: len(e.table.Columns), LoadedAt: e.loadedAt})
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(a.Path, b.Path) })
	return out
}
