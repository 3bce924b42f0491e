package domain

import (
	"slices"
	"strings"
)

// GroupStat is the mean of a value column within one group.
type GroupStat struct {
	Key   string  `json:"key"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// GroupMean averages valueCol per distinct groupCol and sorts the groups by
// mean, highest first. Ties keep the order in which groups first appear.
// Groups without any numeric value are omitted.
func GroupMean(t *Table, groupCol, valueCol string) ([]GroupStat, error) {
	if err := t.Require(groupCol, valueCol); err != nil {
		return nil, err
	}

	type acc struct {
		sum   float64
		count int
	}
	order := make([]string, 0)
	sums := make(map[string]*acc)
	for _, r := range t.Rows {
		key := r.Text(groupCol)
		if key == "" {
			continue
		}
		f, ok := r.Float(valueCol)
		if !ok {
			continue
		}
		a, seen := sums[key]
		if !seen {
			a = &acc{}
			sums[key] = a
			order = append(order, key)
		}
		a.sum += f
		a.count++
	}

	stats := make([]GroupStat, 0, len(order))
	for _, k := range order {
		a := sums[k]
		stats = append(stats, GroupStat{Key: k, Mean: a.sum / float64(a.count), Count: a.count})
	}
	slices.SortStableFunc(stats, func(a, b GroupStat) int {
		switch {
		case a.Mean > b.Mean:
			return -1
		case a.Mean < b.Mean:
			return 1
		default:
			return 0
		}
	})
	return stats, nil
}

// Head returns at most n group stats (all when n <= 0).
func Head(stats []GroupStat, n int) []GroupStat {
	if n <= 0 || n >= len(stats) {
		return stats
	}
	return stats[:n]
}

// ColumnMean returns the mean of the numeric values of col.
func ColumnMean(t *Table, col string) (float64, bool) {
	vals := t.Floats(col)
	if len(vals) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals)), true
}

// Melt reshapes t from wide to long: each row yields one output row per
// value column with columns idCol, varName and valueName.
func Melt(t *Table, idCol string, valueCols []string, varName, valueName string) (*Table, error) {
	if err := t.Require(append([]string{idCol}, valueCols...)...); err != nil {
		return nil, err
	}
	out := NewTable(t.Source, []string{idCol, varName, valueName})
	for _, c := range valueCols {
		for _, r := range t.Rows {
			out.Append(map[string]Value{
				idCol:     r.Get(idCol),
				varName:   String(c),
				valueName: r.Get(c),
			}, nil)
		}
	}
	return out, nil
}

// ShareWithinGroup adds outCol = valueCol / sum(valueCol within groupCol).
// Groups summing to zero produce null shares.
func ShareWithinGroup(t *Table, groupCol, valueCol, outCol string) (*Table, error) {
	if err := t.Require(groupCol, valueCol); err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	for _, r := range t.Rows {
		if f, ok := r.Float(valueCol); ok {
			totals[r.Text(groupCol)] += f
		}
	}
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		share := Null()
		if f, ok := r.Float(valueCol); ok {
			if total := totals[r.Text(groupCol)]; total != 0 {
				share = Number(f / total)
			}
		}
		rows[i] = r.with(map[string]Value{outCol: share})
	}
	return t.derive(rows, outCol), nil
}

// ScaleColumn adds outCol = round(col × factor, places).
func ScaleColumn(t *Table, col, outCol string, factor float64, places int) (*Table, error) {
	if err := t.Require(col); err != nil {
		return nil, err
	}
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		v := Null()
		if f, ok := r.Float(col); ok {
			v = Number(Round(f*factor, places))
		}
		rows[i] = r.with(map[string]Value{outCol: v})
	}
	return t.derive(rows, outCol), nil
}

// MeanBy averages valueCols per distinct combination of keyCols. Output rows
// follow the order in which combinations first appear.
func MeanBy(t *Table, keyCols, valueCols []string) (*Table, error) {
	return reduceBy(t, keyCols, valueCols, func(vals []float64) float64 {
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	})
}

// MaxBy keeps the largest value of each valueCol per distinct combination of
// keyCols, in order of first appearance.
func MaxBy(t *Table, keyCols, valueCols []string) (*Table, error) {
	return reduceBy(t, keyCols, valueCols, slices.Max[[]float64])
}

// reduceBy groups rows by keyCols and folds the numeric values of each
// valueCol with fn. Groups with no numeric value for a column get null.
func reduceBy(t *Table, keyCols, valueCols []string, fn func([]float64) float64) (*Table, error) {
	if err := t.Require(append(slices.Clone(keyCols), valueCols...)...); err != nil {
		return nil, err
	}

	type group struct {
		keys map[string]Value
		vals map[string][]float64
	}
	var order []string
	groups := make(map[string]*group)
	for _, r := range t.Rows {
		parts := make([]string, len(keyCols))
		for i, k := range keyCols {
			parts[i] = r.Text(k)
		}
		id := strings.Join(parts, "\x1f")
		g, ok := groups[id]
		if !ok {
			g = &group{keys: make(map[string]Value), vals: make(map[string][]float64)}
			for _, k := range keyCols {
				g.keys[k] = r.Get(k)
			}
			groups[id] = g
			order = append(order, id)
		}
		for _, c := range valueCols {
			if f, ok := r.Float(c); ok {
				g.vals[c] = append(g.vals[c], f)
			}
		}
	}

	out := NewTable(t.Source, append(slices.Clone(keyCols), valueCols...))
	for _, id := range order {
		g := groups[id]
		values := make(map[string]Value, len(keyCols)+len(valueCols))
		for k, v := range g.keys {
			values[k] = v
		}
		for _, c := range valueCols {
			if vals := g.vals[c]; len(vals) > 0 {
				values[c] = Number(fn(vals))
			} else {
				values[c] = Null()
			}
		}
		out.Append(values, nil)
	}
	return out, nil
}
