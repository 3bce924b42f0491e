package domain

import (
	"maps"
	"slices"

	"github.com/ctessum/geom"
)

// Row is one record of a Table. Pos is the row's position in the table it
// was loaded from and is preserved by every derivation, so stable orderings
// can always be traced back to source order.
type Row struct {
	Pos      int
	Values   map[string]Value
	Geometry geom.Polygonal
}

// Get returns the value of col, null when absent.
func (r Row) Get(col string) Value { return r.Values[col] }

// Float returns the numeric value of col.
func (r Row) Float(col string) (float64, bool) { return r.Values[col].Float() }

// Text returns the textual value of col.
func (r Row) Text(col string) string { return r.Values[col].Text() }

// with returns a copy of r with col set to v. The receiver's map is never
// modified because rows are shared with cached tables.
func (r Row) with(updates map[string]Value) Row {
	values := make(map[string]Value, len(r.Values)+len(updates))
	maps.Copy(values, r.Values)
	maps.Copy(values, updates)
	r.Values = values
	return r
}

// Table is an ordered, read-only collection of rows sharing a column set.
// Operations never mutate a Table; they return new tables that may share
// rows with their input.
type Table struct {
	Source  string
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given columns.
func NewTable(source string, columns []string) *Table {
	return &Table{Source: source, Columns: slices.Clone(columns)}
}

// Append adds a row at the end of the table. It is intended for loaders
// building a table; do not call it on a table that has been shared.
func (t *Table) Append(values map[string]Value, g geom.Polygonal) {
	t.Rows = append(t.Rows, Row{Pos: len(t.Rows), Values: values, Geometry: g})
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether col is part of the table schema.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Columns, col)
}

// Require returns a SchemaError for the first missing column.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return &SchemaError{Path: t.Source, Column: c}
		}
	}
	return nil
}

// Column returns the values of col in row order.
func (t *Table) Column(col string) []Value {
	out := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Get(col)
	}
	return out
}

// Floats returns the finite numeric values of col, skipping nulls.
func (t *Table) Floats(col string) []float64 {
	out := make([]float64, 0, len(t.Rows))
	for _, r := range t.Rows {
		if f, ok := r.Float(col); ok {
			out = append(out, f)
		}
	}
	return out
}

// derive returns a table with t's schema (plus extra columns) and rows.
func (t *Table) derive(rows []Row, extra ...string) *Table {
	cols := slices.Clone(t.Columns)
	for _, c := range extra {
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return &Table{Source: t.Source, Columns: cols, Rows: rows}
}

// Filter returns the rows for which keep returns true, in order.
func Filter(t *Table, keep func(Row) bool) *Table {
	rows := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return t.derive(rows)
}

// FilterEq returns the rows whose col renders as value.
func FilterEq(t *Table, col, value string) *Table {
	return Filter(t, func(r Row) bool { return r.Text(col) == value })
}

// Distinct returns the non-null values of col in order of first appearance.
func Distinct(t *Table, col string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range t.Rows {
		v := r.Get(col)
		if v.IsNull() {
			continue
		}
		s := v.Text()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Select projects t onto cols, keeping geometry and row positions.
func Select(t *Table, cols ...string) (*Table, error) {
	if err := t.Require(cols...); err != nil {
		return nil, err
	}
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		values := make(map[string]Value, len(cols))
		for _, c := range cols {
			values[c] = r.Get(c)
		}
		rows[i] = Row{Pos: r.Pos, Values: values, Geometry: r.Geometry}
	}
	return &Table{Source: t.Source, Columns: slices.Clone(cols), Rows: rows}, nil
}
