package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cityTable(rows ...map[string]any) *Table {
	cols := []string{"kebele", "risk_com", "shock_type", "imp_sev_norm_l", "fscore_norm"}
	t := NewTable("city.shp", cols)
	for _, r := range rows {
		values := make(map[string]Value, len(cols))
		for _, c := range cols {
			values[c] = FromAny(r[c])
		}
		t.Append(values, nil)
	}
	return t
}

func TestGroupMean_SortedDescendingStable(t *testing.T) {
	table := cityTable(
		map[string]any{"kebele": "K1", "fscore_norm": 0.2},
		map[string]any{"kebele": "K2", "fscore_norm": 0.6},
		map[string]any{"kebele": "K1", "fscore_norm": 0.4},
		map[string]any{"kebele": "K3", "fscore_norm": 0.3},
		map[string]any{"kebele": "K2", "fscore_norm": nil},
		map[string]any{"kebele": "", "fscore_norm": 0.9},
	)

	stats, err := GroupMean(table, "kebele", "fscore_norm")
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, "K2", stats[0].Key)
	assert.Equal(t, 1, stats[0].Count)
	assert.InDelta(t, 0.6, stats[0].Mean, 1e-9)

	// K1 and K3 tie at 0.3; K1 appears first in the source.
	assert.Equal(t, "K1", stats[1].Key)
	assert.Equal(t, "K3", stats[2].Key)

	assert.Len(t, Head(stats, 2), 2)
	assert.Len(t, Head(stats, 0), 3)
	assert.Len(t, Head(stats, 10), 3)
}

func TestGroupMean_MissingColumn(t *testing.T) {
	_, err := GroupMean(cityTable(), "subcity_name", "fscore_norm")
	assert.ErrorIs(t, err, ErrSchema)
}

func TestColumnMean(t *testing.T) {
	table := cityTable(
		map[string]any{"fscore_norm": 1.0},
		map[string]any{"fscore_norm": nil},
		map[string]any{"fscore_norm": 3.0},
	)
	mean, ok := ColumnMean(table, "fscore_norm")
	require.True(t, ok)
	assert.InDelta(t, 2.0, mean, 1e-12)

	_, ok = ColumnMean(cityTable(), "fscore_norm")
	assert.False(t, ok)
}

func TestMelt(t *testing.T) {
	table := NewTable("cri.shp", []string{"kebele", "HRF", "CRF"})
	table.Append(map[string]Value{"kebele": String("K1"), "HRF": Number(0.1), "CRF": Number(0.2)}, nil)
	table.Append(map[string]Value{"kebele": String("K2"), "HRF": Number(0.3), "CRF": Null()}, nil)

	long, err := Melt(table, "kebele", []string{"HRF", "CRF"}, "index", "value")
	require.NoError(t, err)
	require.Equal(t, 4, long.Len())
	assert.Equal(t, []string{"kebele", "index", "value"}, long.Columns)

	assert.Equal(t, "K1", long.Rows[0].Text("kebele"))
	assert.Equal(t, "HRF", long.Rows[0].Text("index"))
	assert.Equal(t, "CRF", long.Rows[3].Text("index"))
	assert.True(t, long.Rows[3].Get("value").IsNull())
}

func TestShareWithinGroup(t *testing.T) {
	table := cityTable(
		map[string]any{"kebele": "K1", "imp_sev_norm_l": 1.0},
		map[string]any{"kebele": "K1", "imp_sev_norm_l": 3.0},
		map[string]any{"kebele": "K2", "imp_sev_norm_l": 0.0},
		map[string]any{"kebele": "K2", "imp_sev_norm_l": nil},
	)

	got, err := ShareWithinGroup(table, "kebele", "imp_sev_norm_l", "keb_share")
	require.NoError(t, err)
	assert.True(t, got.HasColumn("keb_share"))

	s0, _ := got.Rows[0].Float("keb_share")
	s1, _ := got.Rows[1].Float("keb_share")
	assert.InDelta(t, 0.25, s0, 1e-12)
	assert.InDelta(t, 0.75, s1, 1e-12)
	assert.True(t, got.Rows[2].Get("keb_share").IsNull(), "zero group total yields null")
	assert.True(t, got.Rows[3].Get("keb_share").IsNull())
}

func TestScaleColumn(t *testing.T) {
	table := cityTable(
		map[string]any{"fscore_norm": 0.123456},
		map[string]any{"fscore_norm": nil},
	)

	got, err := ScaleColumn(table, "fscore_norm", "fscore_pct", 100, 2)
	require.NoError(t, err)
	f, ok := got.Rows[0].Float("fscore_pct")
	require.True(t, ok)
	assert.InDelta(t, 12.35, f, 1e-9)
	assert.True(t, got.Rows[1].Get("fscore_pct").IsNull())
}

func TestMeanBy(t *testing.T) {
	table := cityTable(
		map[string]any{"kebele": "K1", "risk_com": "Natural Hazard", "fscore_norm": 0.2},
		map[string]any{"kebele": "K1", "risk_com": "Natural Hazard", "fscore_norm": 0.4},
		map[string]any{"kebele": "K1", "risk_com": "Stressor", "fscore_norm": 0.9},
		map[string]any{"kebele": "K2", "risk_com": "Natural Hazard", "fscore_norm": nil},
	)

	got, err := MeanBy(table, []string{"kebele", "risk_com"}, []string{"fscore_norm"})
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	assert.Equal(t, "K1", got.Rows[0].Text("kebele"))
	assert.Equal(t, "Natural Hazard", got.Rows[0].Text("risk_com"))
	m, _ := got.Rows[0].Float("fscore_norm")
	assert.InDelta(t, 0.3, m, 1e-9)

	assert.Equal(t, "Stressor", got.Rows[1].Text("risk_com"))
	assert.True(t, got.Rows[2].Get("fscore_norm").IsNull())
}

func TestMaxBy(t *testing.T) {
	table := cityTable(
		map[string]any{"risk_com": "PML", "kebele": "Z1", "fscore_norm": 0.2},
		map[string]any{"risk_com": "AAL", "kebele": "Z1", "fscore_norm": 0.1},
		map[string]any{"risk_com": "PML", "kebele": "Z1", "fscore_norm": 0.7},
		map[string]any{"risk_com": "PML", "kebele": "Z2", "fscore_norm": nil},
	)

	got, err := MaxBy(table, []string{"risk_com", "kebele"}, []string{"fscore_norm"})
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	m, _ := got.Rows[0].Float("fscore_norm")
	assert.InDelta(t, 0.7, m, 1e-9)
	assert.Equal(t, "AAL", got.Rows[1].Text("risk_com"))
	assert.True(t, got.Rows[2].Get("fscore_norm").IsNull())

	_, err = MaxBy(table, []string{"missing"}, []string{"fscore_norm"})
	require.ErrorIs(t, err, ErrSchema)
}
