package domain

import (
	"cmp"
	"slices"
)

// Derived column names added by DeriveExposure.
const (
	ColExposure     = "exposure"
	ColYieldLossPct = "yield_loss_pct"
)

// ZoneColumns maps the drought zone table's source columns.
type ZoneColumns struct {
	ID      string `yaml:"id" json:"id"`
	Level   string `yaml:"level" json:"level"`
	Metric  string `yaml:"metric" json:"metric"`
	LossAbs string `yaml:"loss_abs" json:"loss_abs"`
	LossRel string `yaml:"loss_rel" json:"loss_rel"`
}

// DefaultZoneColumns matches the attribute names written by the offline
// pipeline into the zone shapefile.
func DefaultZoneColumns() ZoneColumns {
	return ZoneColumns{
		ID:      "Zone-ID",
		Level:   "LReport",
		Metric:  "l_metric",
		LossAbs: "loss_abs",
		LossRel: "loss_rel",
	}
}

// Names lists the mapped columns in a fixed order.
func (c ZoneColumns) Names() []string {
	return []string{c.ID, c.Level, c.Metric, c.LossAbs, c.LossRel}
}

// DeriveExposure adds the exposure and yield_loss_pct columns.
//
//   - exposure = loss_abs / loss_rel; null when either input is null or
//     loss_rel is zero (the division has no meaningful value there)
//   - yield_loss_pct = loss_rel clipped to [0, 1]
//
// Both columns are recomputed from the source columns, so applying the
// derivation twice yields the same result as applying it once.
func DeriveExposure(t *Table, cols ZoneColumns) (*Table, error) {
	if err := t.Require(cols.LossAbs, cols.LossRel); err != nil {
		return nil, err
	}

	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		abs, okAbs := r.Float(cols.LossAbs)
		rel, okRel := r.Float(cols.LossRel)

		exposure := Null()
		if okAbs && okRel && rel != 0 {
			exposure = Number(abs / rel)
		}
		yieldLoss := Null()
		if okRel {
			yieldLoss = Number(Clip(rel, 0, 1))
		}

		rows[i] = r.with(map[string]Value{
			ColExposure:     exposure,
			ColYieldLossPct: yieldLoss,
		})
	}
	return t.derive(rows, ColExposure, ColYieldLossPct), nil
}

// FilterByLevelAndMetric returns the rows whose reporting level equals level
// and whose metric type equals metric. An empty result is a valid outcome.
func FilterByLevelAndMetric(t *Table, cols ZoneColumns, level, metric string) (*Table, error) {
	if err := t.Require(cols.Level, cols.Metric); err != nil {
		return nil, err
	}
	return Filter(t, func(r Row) bool {
		return r.Text(cols.Level) == level && r.Text(cols.Metric) == metric
	}), nil
}

// TopN sorts t by key and keeps the first n rows (all rows when n <= 0).
// The sort is stable: rows with equal keys keep their relative order.
// Null keys sort last in both directions.
func TopN(t *Table, key string, ascending bool, n int) (*Table, error) {
	if err := t.Require(key); err != nil {
		return nil, err
	}
	rows := slices.Clone(t.Rows)
	slices.SortStableFunc(rows, func(a, b Row) int {
		return compareNullLast(a.Get(key), b.Get(key), ascending)
	})
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return t.derive(rows), nil
}

// compareNullLast orders numbers numerically and everything else by text,
// always placing nulls after non-null values.
func compareNullLast(a, b Value, ascending bool) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}

	var c int
	fa, okA := a.Float()
	fb, okB := b.Float()
	if okA && okB {
		c = cmp.Compare(fa, fb)
	} else {
		c = cmp.Compare(a.Text(), b.Text())
	}
	if !ascending {
		c = -c
	}
	return c
}

// Range is a closed numeric interval used for colour scales and progress
// columns. Empty is set when no finite value was available; Min and Max are
// then zero and must not be used as divisors.
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Empty bool    `json:"empty"`
}

// RangeOf returns the bounds of col ignoring nulls.
func RangeOf(t *Table, col string) Range {
	vals := t.Floats(col)
	if len(vals) == 0 {
		return Range{Empty: true}
	}
	return Range{Min: slices.Min(vals), Max: slices.Max(vals)}
}

// Normalize maps f into [0, 1] relative to r. Degenerate and empty ranges map
// everything to 0 instead of dividing by zero.
func (r Range) Normalize(f float64) float64 {
	span := r.Max - r.Min
	if r.Empty || span == 0 {
		return 0
	}
	return Clip((f-r.Min)/span, 0, 1)
}
