package pipeline

import (
	"context"
	"fmt"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// DroughtOptions lists the values offered in the level and metric pickers,
// in order of first appearance in the zone table.
type DroughtOptions struct {
	Levels  []string `json:"levels"`
	Metrics []string `json:"metrics"`
}

// ZoneRow is one zone of a drought selection.
type ZoneRow struct {
	ZoneID       string       `json:"zone_id"`
	Level        string       `json:"level"`
	Metric       string       `json:"metric"`
	LossAbs      domain.Value `json:"loss_abs"`
	LossRel      domain.Value `json:"loss_rel"`
	Exposure     domain.Value `json:"exposure"`
	YieldLossPct domain.Value `json:"yield_loss_pct"`
}

// RankedZones is a sorted zone table with the upper bound of its progress
// column. ProgressMax is 0 when no row has a value.
type RankedZones struct {
	Rows        []ZoneRow `json:"rows"`
	ProgressMax float64   `json:"progress_max"`
}

// HeatCell is the largest yield loss of one zone under one metric.
type HeatCell struct {
	Metric       string       `json:"metric"`
	ZoneID       string       `json:"zone_id"`
	YieldLossPct domain.Value `json:"yield_loss_pct"`
}

// LossBar is one segment of the relative loss bar chart.
type LossBar struct {
	ZoneID  string       `json:"zone_id"`
	Metric  string       `json:"metric"`
	LossAbs domain.Value `json:"loss_abs"`
}

// ZonePeak is the worst yield loss of a zone across all metrics.
type ZonePeak struct {
	ZoneID       string       `json:"zone_id"`
	YieldLossPct domain.Value `json:"yield_loss_pct"`
}

// Overview summarizes a whole reporting level for the sidebar map.
type Overview struct {
	Zones []ZonePeak   `json:"zones"`
	Range domain.Range `json:"range"`
}

// DroughtView is everything the drought page shows for one selection.
type DroughtView struct {
	Variant        Variant             `json:"variant"`
	Level          string              `json:"level"`
	Metric         string              `json:"metric"`
	Exposure       RankedZones         `json:"exposure"`
	TopZones       RankedZones         `json:"top_zones"`
	YieldLossRange domain.Range        `json:"yield_loss_range"`
	LossAbsRange   domain.Range        `json:"loss_abs_range"`
	Heatmap        []HeatCell          `json:"heatmap"`
	LossBars       []LossBar           `json:"loss_bars"`
	Years          *domain.YearRanking `json:"years,omitempty"`
	Overview       *Overview           `json:"overview,omitempty"`
}

// DroughtOptions returns the distinct reporting levels and metric types.
func (p *Pipeline) DroughtOptions(ctx context.Context) (DroughtOptions, error) {
	t, err := p.load(ctx, "zones", p.datasets.Zones)
	if err != nil {
		return DroughtOptions{}, err
	}
	if err := t.Require(p.opts.Columns.Level, p.opts.Columns.Metric); err != nil {
		return DroughtOptions{}, err
	}
	return DroughtOptions{
		Levels:  domain.Distinct(t, p.opts.Columns.Level),
		Metrics: domain.Distinct(t, p.opts.Columns.Metric),
	}, nil
}

// DroughtView runs the drought selection for a variant.
func (p *Pipeline) DroughtView(ctx context.Context, variantKey, level, metric string) (*DroughtView, error) {
	v, err := p.variants.Get(variantKey)
	if err != nil {
		return nil, err
	}
	if v.App != AppDrought {
		return nil, fmt.Errorf("%w: variant %q is not a drought dashboard", domain.ErrInvalidSelection, v.Key)
	}
	if err := requireSelection(level, metric); err != nil {
		return nil, err
	}

	zones, err := p.zones(ctx)
	if err != nil {
		return nil, err
	}
	cols := p.opts.Columns

	selected, err := domain.FilterByLevelAndMetric(zones, cols, level, metric)
	if err != nil {
		return nil, err
	}
	p.count("drought", selected.Len())

	byExposure, err := domain.TopN(selected, domain.ColExposure, false, 0)
	if err != nil {
		return nil, err
	}
	byYieldLoss, err := domain.TopN(selected, domain.ColYieldLossPct, false, 0)
	if err != nil {
		return nil, err
	}

	levelRows := domain.FilterEq(zones, cols.Level, level)
	heatmap, err := p.heatmap(levelRows)
	if err != nil {
		return nil, err
	}

	view := &DroughtView{
		Variant:        v,
		Level:          level,
		Metric:         metric,
		Exposure:       p.ranked(byExposure, domain.ColExposure),
		TopZones:       p.ranked(byYieldLoss, domain.ColYieldLossPct),
		YieldLossRange: domain.RangeOf(selected, domain.ColYieldLossPct),
		LossAbsRange:   domain.RangeOf(selected, cols.LossAbs),
		Heatmap:        heatmap,
		LossBars:       p.lossBars(levelRows),
	}

	if v.YearRanking {
		if p.datasets.YearRank.Path == "" {
			p.logger.Debug("year ranking enabled but no year-rank file configured", "variant", v.Key)
		} else {
			years, err := p.YearRanking(ctx, nil)
			if err != nil {
				return nil, err
			}
			view.Years = &years
		}
	}
	if v.SidebarMap {
		overview, err := p.overview(levelRows)
		if err != nil {
			return nil, err
		}
		view.Overview = overview
	}
	return view, nil
}

// YearRanking ranks years for one insurance zone, or across all zones when
// zone is nil.
func (p *Pipeline) YearRanking(ctx context.Context, zone *int) (domain.YearRanking, error) {
	if zone != nil && (*zone < 0 || *zone > p.opts.MaxZoneCode) {
		return domain.YearRanking{}, fmt.Errorf("%w: zone code %d outside 0-%d", domain.ErrInvalidSelection, *zone, p.opts.MaxZoneCode)
	}
	t, err := p.load(ctx, "year-rank", p.datasets.YearRank)
	if err != nil {
		return domain.YearRanking{}, err
	}
	ranking, err := domain.RankYears(t, p.opts.YearZoneColumn, zone, nil)
	if err != nil {
		return domain.YearRanking{}, err
	}
	p.metrics.Selections.WithLabelValues("years").Inc()
	return ranking, nil
}

// LossBars returns loss_abs per zone and metric over a whole reporting level.
func (p *Pipeline) LossBars(ctx context.Context, level string) ([]LossBar, error) {
	if level == "" {
		return nil, fmt.Errorf("%w: level is required", domain.ErrInvalidSelection)
	}
	zones, err := p.zones(ctx)
	if err != nil {
		return nil, err
	}
	rows := domain.FilterEq(zones, p.opts.Columns.Level, level)
	p.count("loss_bars", rows.Len())
	return p.lossBars(rows), nil
}

func (p *Pipeline) ranked(t *domain.Table, progressCol string) RankedZones {
	out := RankedZones{Rows: p.zoneRows(t)}
	if r := domain.RangeOf(t, progressCol); !r.Empty {
		out.ProgressMax = r.Max
	}
	return out
}

func (p *Pipeline) zoneRows(t *domain.Table) []ZoneRow {
	cols := p.opts.Columns
	out := make([]ZoneRow, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = ZoneRow{
			ZoneID:       r.Text(cols.ID),
			Level:        r.Text(cols.Level),
			Metric:       r.Text(cols.Metric),
			LossAbs:      r.Get(cols.LossAbs),
			LossRel:      r.Get(cols.LossRel),
			Exposure:     r.Get(domain.ColExposure),
			YieldLossPct: r.Get(domain.ColYieldLossPct),
		}
	}
	return out
}

func (p *Pipeline) heatmap(levelRows *domain.Table) ([]HeatCell, error) {
	cols := p.opts.Columns
	peaks, err := domain.MaxBy(levelRows, []string{cols.Metric, cols.ID}, []string{domain.ColYieldLossPct})
	if err != nil {
		return nil, err
	}
	out := make([]HeatCell, len(peaks.Rows))
	for i, r := range peaks.Rows {
		out[i] = HeatCell{
			Metric:       r.Text(cols.Metric),
			ZoneID:       r.Text(cols.ID),
			YieldLossPct: r.Get(domain.ColYieldLossPct),
		}
	}
	return out, nil
}

func (p *Pipeline) lossBars(levelRows *domain.Table) []LossBar {
	cols := p.opts.Columns
	out := make([]LossBar, len(levelRows.Rows))
	for i, r := range levelRows.Rows {
		out[i] = LossBar{ZoneID: r.Text(cols.ID), Metric: r.Text(cols.Metric), LossAbs: r.Get(cols.LossAbs)}
	}
	return out
}

func (p *Pipeline) overview(levelRows *domain.Table) (*Overview, error) {
	id := p.opts.Columns.ID
	peaks, err := domain.MaxBy(levelRows, []string{id}, []string{domain.ColYieldLossPct})
	if err != nil {
		return nil, err
	}
	out := &Overview{Zones: make([]ZonePeak, len(peaks.Rows)), Range: domain.RangeOf(peaks, domain.ColYieldLossPct)}
	for i, r := range peaks.Rows {
		out.Zones[i] = ZonePeak{ZoneID: r.Text(id), YieldLossPct: r.Get(domain.ColYieldLossPct)}
	}
	return out, nil
}
