package mapbox

import (
	"container/list"
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache. Only matches
// are cached, so an empty answer is asked again next time.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRU(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, query string) (domain.Place, error) {
	key := "fwd:" + strings.ToLower(strings.TrimSpace(query))
	return c.lookup(methodForward, key, func() (domain.Place, error) {
		return c.inner.ForwardGeocode(ctx, query)
	})
}

// ReverseGeocode keys on coordinates rounded to 4 decimals (about 11 m), so
// repeated lookups of the same zone anchor share one entry.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Place, error) {
	key := "rev:" + strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
	return c.lookup(methodReverse, key, func() (domain.Place, error) {
		return c.inner.ReverseGeocode(ctx, lat, lon)
	})
}

func (c *CachedGeocoder) lookup(method, key string, fetch func() (domain.Place, error)) (domain.Place, error) {
	if place, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues(method, "hit").Inc()
		return place, nil
	}
	c.metrics.GeocodeCache.WithLabelValues(method, "miss").Inc()

	place, err := fetch()
	if err != nil {
		return place, err
	}
	if place.Found() {
		c.cache.put(key, place)
	}
	return place, nil
}

// Len returns the number of cached places.
func (c *CachedGeocoder) Len() int { return c.cache.len() }

// lru is a mutex-guarded least-recently-used map of places.
type lru struct {
	max   int
	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element
}

type lruItem struct {
	key   string
	place domain.Place
}

func newLRU(maxEntries int) *lru {
	return &lru{
		max:   max(maxEntries, 1),
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (l *lru) get(key string) (domain.Place, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.items[key]
	if !ok {
		return domain.Place{}, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*lruItem).place, true
}

func (l *lru) put(key string, place domain.Place) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.items[key]; ok {
		el.Value.(*lruItem).place = place
		l.order.MoveToFront(el)
		return
	}
	l.items[key] = l.order.PushFront(&lruItem{key: key, place: place})

	for l.order.Len() > l.max {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.items, oldest.Value.(*lruItem).key)
	}
}

func (l *lru) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
