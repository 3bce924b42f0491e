package pipeline

import (
	"context"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// ZoneLayer is a filtered zone table ready for a choropleth feed. Color
// names the column that drives the fill and Range its bounds.
type ZoneLayer struct {
	Table *domain.Table
	IDCol string
	Color string
	Range domain.Range
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ZoneDetail describes one zone of a selection.
type ZoneDetail struct {
	ZoneRow
	Anchor      *Point        `json:"anchor,omitempty"`
	Place       *domain.Place `json:"place,omitempty"`
	PlaceSource string        `json:"place_source,omitempty"`
}

// Location is the result of a point lookup.
type Location struct {
	Point Point         `json:"point"`
	Place *domain.Place `json:"place,omitempty"`
	Level string        `json:"level"`
	Zone  string        `json:"zone_id"`
	Rows  []ZoneRow     `json:"rows"`
}

// colorColumn maps a colour choice onto a zone table column.
func (p *Pipeline) colorColumn(color string) (string, error) {
	switch color {
	case "", domain.ColYieldLossPct:
		return domain.ColYieldLossPct, nil
	case "loss_abs":
		return p.opts.Columns.LossAbs, nil
	case domain.ColExposure:
		return domain.ColExposure, nil
	default:
		return "", fmt.Errorf("%w: unknown colour property %q", domain.ErrInvalidSelection, color)
	}
}

// ZoneFeatures returns the selected zones with the colour column and range
// for a choropleth map.
func (p *Pipeline) ZoneFeatures(ctx context.Context, level, metric, color string) (*ZoneLayer, error) {
	if err := requireSelection(level, metric); err != nil {
		return nil, err
	}
	col, err := p.colorColumn(color)
	if err != nil {
		return nil, err
	}
	zones, err := p.zones(ctx)
	if err != nil {
		return nil, err
	}
	selected, err := domain.FilterByLevelAndMetric(zones, p.opts.Columns, level, metric)
	if err != nil {
		return nil, err
	}
	p.count("zone_features", selected.Len())
	return &ZoneLayer{Table: selected, IDCol: p.opts.Columns.ID, Color: col, Range: domain.RangeOf(selected, col)}, nil
}

// ZoneDetail returns one zone of a selection with its anchor point and,
// when a geocoder is configured, the nearest place name.
func (p *Pipeline) ZoneDetail(ctx context.Context, level, metric, zoneID string) (*ZoneDetail, error) {
	if err := requireSelection(level, metric); err != nil {
		return nil, err
	}
	zones, err := p.zones(ctx)
	if err != nil {
		return nil, err
	}
	selected, err := domain.FilterByLevelAndMetric(zones, p.opts.Columns, level, metric)
	if err != nil {
		return nil, err
	}
	match := domain.FilterEq(selected, p.opts.Columns.ID, zoneID)
	if match.Len() == 0 {
		return nil, fmt.Errorf("zone %q in %s/%s: %w", zoneID, level, metric, domain.ErrNotFound)
	}

	row := match.Rows[0]
	detail := &ZoneDetail{ZoneRow: p.zoneRows(match)[0]}
	if a, ok := domain.Anchor(row.Geometry); ok {
		detail.Anchor = &Point{Lat: a.Y, Lon: a.X}
		p.enrichPlace(ctx, detail)
	}
	return detail, nil
}

// enrichPlace reverse geocodes the anchor. Failures are logged and leave the
// detail without a place.
func (p *Pipeline) enrichPlace(ctx context.Context, d *ZoneDetail) {
	if p.geocoder == nil {
		return
	}
	place, err := p.geocoder.ReverseGeocode(ctx, d.Anchor.Lat, d.Anchor.Lon)
	if err != nil {
		p.logger.Warn("reverse geocoding failed",
			"zone_id", d.ZoneID,
			"lat", d.Anchor.Lat,
			"lon", d.Anchor.Lon,
			"error", err,
		)
		d.PlaceSource = "failed"
		return
	}
	if place.Found() {
		d.Place = &place
		d.PlaceSource = "reverse"
	}
}

// Locate finds the zone of level containing the coordinate.
func (p *Pipeline) Locate(ctx context.Context, level string, pt Point) (*Location, error) {
	if level == "" {
		return nil, fmt.Errorf("%w: level is required", domain.ErrInvalidSelection)
	}
	if pt.Lat < -90 || pt.Lat > 90 || pt.Lon < -180 || pt.Lon > 180 {
		return nil, fmt.Errorf("%w: coordinate %.6f,%.6f out of range", domain.ErrInvalidSelection, pt.Lat, pt.Lon)
	}
	raw, err := p.load(ctx, "zones", p.datasets.Zones)
	if err != nil {
		return nil, err
	}
	if err := raw.Require(p.opts.Columns.Names()...); err != nil {
		return nil, err
	}

	zoneID, ok := p.zoneAt(raw, level, geom.Point{X: pt.Lon, Y: pt.Lat})
	p.metrics.Selections.WithLabelValues("locate").Inc()
	if !ok {
		p.metrics.EmptySelections.WithLabelValues("locate").Inc()
		return nil, fmt.Errorf("no zone of level %q contains %.6f,%.6f: %w", level, pt.Lat, pt.Lon, domain.ErrNotFound)
	}

	cols := p.opts.Columns
	rows := domain.Filter(raw, func(r domain.Row) bool {
		return r.Text(cols.Level) == level && r.Text(cols.ID) == zoneID
	})
	derived, err := domain.DeriveExposure(rows, cols)
	if err != nil {
		return nil, err
	}
	return &Location{Point: pt, Level: level, Zone: zoneID, Rows: p.zoneRows(derived)}, nil
}

// LocatePlace forward geocodes query and looks up the zone containing the
// result.
func (p *Pipeline) LocatePlace(ctx context.Context, level, query string) (*Location, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: place is required", domain.ErrInvalidSelection)
	}
	if p.geocoder == nil {
		return nil, fmt.Errorf("%w: place search needs geocoding, which is disabled", domain.ErrInvalidSelection)
	}
	place, err := p.geocoder.ForwardGeocode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("forward geocode %q: %w", query, err)
	}
	if !place.Found() {
		return nil, fmt.Errorf("place %q: %w", query, domain.ErrNotFound)
	}
	loc, err := p.Locate(ctx, level, Point{Lat: place.Lat, Lon: place.Lon})
	if err != nil {
		return nil, err
	}
	loc.Place = &place
	return loc, nil
}

// indexedZone is a zone geometry stored in the spatial index.
type indexedZone struct {
	geom.Polygonal
	zoneID string
}

// zoneIndex holds one bounds index per reporting level, built lazily for a
// specific zone table. A reloaded table gets a fresh index.
type zoneIndex struct {
	table  *domain.Table
	levels map[string]*rtree.Rtree
}

func (p *Pipeline) levelIndex(raw *domain.Table, level string) *rtree.Rtree {
	p.indexMu.Lock()
	defer p.indexMu.Unlock()

	if p.index == nil || p.index.table != raw {
		p.index = &zoneIndex{table: raw, levels: make(map[string]*rtree.Rtree)}
	}
	if tree, ok := p.index.levels[level]; ok {
		return tree
	}

	cols := p.opts.Columns
	tree := rtree.NewTree(25, 50)
	seen := make(map[string]struct{})
	for _, r := range raw.Rows {
		if r.Geometry == nil || r.Text(cols.Level) != level {
			continue
		}
		id := r.Text(cols.ID)
		// Rows of the same zone under different metrics share one boundary.
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		tree.Insert(&indexedZone{Polygonal: r.Geometry, zoneID: id})
	}
	p.index.levels[level] = tree
	return tree
}

// zoneAt returns the first zone, in table order, whose polygon contains pt.
func (p *Pipeline) zoneAt(raw *domain.Table, level string, pt geom.Point) (string, bool) {
	tree := p.levelIndex(raw, level)
	var candidates []*indexedZone
	for _, g := range tree.SearchIntersect(searchBounds(pt)) {
		z, ok := g.(*indexedZone)
		if !ok {
			continue
		}
		// Boundary points belong to every zone sharing that edge.
		if w := pt.Within(z.Polygonal); w == geom.Inside || w == geom.OnEdge {
			candidates = append(candidates, z)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0].zoneID, true
	}
	// Shared edges can match more than one zone; prefer source order.
	for _, r := range raw.Rows {
		id := r.Text(p.opts.Columns.ID)
		for _, c := range candidates {
			if c.zoneID == id {
				return id, true
			}
		}
	}
	return candidates[0].zoneID, true
}

// searchBounds pads pt slightly so zones whose bounds only touch it are
// still returned by the index.
func searchBounds(pt geom.Point) *geom.Bounds {
	const pad = 1e-9
	return &geom.Bounds{
		Min: geom.Point{X: pt.X - pad, Y: pt.Y - pad},
		Max: geom.Point{X: pt.X + pad, Y: pt.Y + pad},
	}
}
