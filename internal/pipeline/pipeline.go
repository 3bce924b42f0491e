// Package pipeline implements the selection pipeline behind both dashboards:
// load the static datasets through the cache, derive computed fields, filter
// by the user's selection and shape the result into ranked and grouped views.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/loader"
	"github.com/bdu-carp/risk-dashboard/internal/observability"
)

// Store returns loaded tables. Tables it returns are shared and read-only.
type Store interface {
	Load(ctx context.Context, spec loader.Spec) (*domain.Table, error)
}

// Datasets locates the input files. A spec with an empty path disables the
// dataset and the features that depend on it.
type Datasets struct {
	Zones      loader.Spec
	YearRank   loader.Spec
	CityRisk   loader.Spec
	Hazard     loader.Spec
	Eigen      loader.Spec
	Resilience loader.Spec
}

func (d Datasets) all() []loader.Spec {
	return []loader.Spec{d.Zones, d.YearRank, d.CityRisk, d.Hazard, d.Eigen, d.Resilience}
}

// Options tunes the pipeline.
type Options struct {
	Columns domain.ZoneColumns
	// YearZoneColumn holds the insurance-zone code in the year-rank table.
	YearZoneColumn string
	MaxZoneCode    int
	// KebeleColumn identifies kebeles in the city tables.
	KebeleColumn string
}

// DefaultOptions returns the column names produced by the offline pipeline.
func DefaultOptions() Options {
	return Options{
		Columns:        domain.DefaultZoneColumns(),
		YearZoneColumn: "zone",
		MaxZoneCode:    14,
		KebeleColumn:   "kebele",
	}
}

// Pipeline runs selections over the cached datasets.
type Pipeline struct {
	store    Store
	geocoder domain.Geocoder
	datasets Datasets
	variants *Variants
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics

	ready atomic.Bool

	indexMu sync.Mutex
	index   *zoneIndex
}

// New creates a Pipeline. Pass a nil geocoder to disable place names.
func New(store Store, geocoder domain.Geocoder, datasets Datasets, variants *Variants, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		store:    store,
		geocoder: geocoder,
		datasets: datasets,
		variants: variants,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Variants returns the configured dashboard variants.
func (p *Pipeline) Variants() []Variant { return p.variants.All() }

// Variant returns one variant by key.
func (p *Pipeline) Variant(key string) (Variant, error) { return p.variants.Get(key) }

// Warm loads every configured dataset so the first requests do not pay for
// file decoding. All datasets are attempted; the errors are joined.
func (p *Pipeline) Warm(ctx context.Context) error {
	var errs []error
	for _, spec := range p.datasets.all() {
		if spec.Path == "" {
			continue
		}
		if _, err := p.store.Load(ctx, spec); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.MarkReady()
	p.logger.Info("datasets warmed")
	return nil
}

// MarkReady flags the pipeline as ready without preloading.
func (p *Pipeline) MarkReady() { p.ready.Store(true) }

// CheckReadiness returns nil once the datasets have been loaded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("datasets not loaded yet")
	}
	return nil
}

// load fetches a dataset, failing with ErrNotFound when it is not configured.
func (p *Pipeline) load(ctx context.Context, name string, spec loader.Spec) (*domain.Table, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%s dataset is not configured: %w", name, domain.ErrNotFound)
	}
	return p.store.Load(ctx, spec)
}

// zones loads the zone table with exposure and yield_loss_pct derived.
func (p *Pipeline) zones(ctx context.Context) (*domain.Table, error) {
	t, err := p.load(ctx, "zones", p.datasets.Zones)
	if err != nil {
		return nil, err
	}
	if err := t.Require(p.opts.Columns.Names()...); err != nil {
		return nil, err
	}
	return domain.DeriveExposure(t, p.opts.Columns)
}

// count records one selection and whether it came back empty.
func (p *Pipeline) count(view string, rows int) {
	p.metrics.Selections.WithLabelValues(view).Inc()
	if rows == 0 {
		p.metrics.EmptySelections.WithLabelValues(view).Inc()
	}
}

func requireSelection(level, metric string) error {
	if level == "" {
		return fmt.Errorf("%w: level is required", domain.ErrInvalidSelection)
	}
	if metric == "" {
		return fmt.Errorf("%w: metric is required", domain.ErrInvalidSelection)
	}
	return nil
}
