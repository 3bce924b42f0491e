package render_test

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/pipeline"
	"github.com/bdu-carp/risk-dashboard/internal/render"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func zoneTable() *domain.Table {
	t := domain.NewTable("zones.shp", []string{"Zone-ID", "loss_abs"})
	t.Append(map[string]domain.Value{
		"Zone-ID":  domain.String("Z1"),
		"loss_abs": domain.Number(100),
	}, geom.Polygon{{{X: 37, Y: 11}, {X: 38, Y: 11}, {X: 38, Y: 12}, {X: 37, Y: 12}}})
	t.Append(map[string]domain.Value{
		"Zone-ID":  domain.String("Z2"),
		"loss_abs": domain.Number(300),
	}, geom.MultiPolygon{
		{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}},
		{{{X: 2, Y: 2}, {X: 3, Y: 2}, {X: 3, Y: 3}, {X: 2, Y: 2}}},
	})
	t.Append(map[string]domain.Value{
		"Zone-ID":  domain.String("Z3"),
		"loss_abs": domain.Null(),
	}, nil)
	return t
}

// roundTrip decodes the collection into generic JSON so assertions see what
// a map client sees.
func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestFeatures(t *testing.T) {
	tbl := zoneTable()
	fc, err := render.Features(tbl, "Zone-ID", "loss_abs", domain.RangeOf(tbl, "loss_abs"))
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	doc := roundTrip(t, fc)
	assert.Equal(t, "FeatureCollection", doc["type"])
	features := doc["features"].([]any)

	z1 := features[0].(map[string]any)
	assert.Equal(t, "Z1", z1["id"])
	props := z1["properties"].(map[string]any)
	assert.Equal(t, 100.0, props["loss_abs"])
	assert.Equal(t, 0.0, props[render.FillProperty])

	g := z1["geometry"].(map[string]any)
	assert.Equal(t, "Polygon", g["type"])
	want := []any{[]any{
		[]any{37.0, 11.0}, []any{38.0, 11.0}, []any{38.0, 12.0}, []any{37.0, 12.0}, []any{37.0, 11.0},
	}}
	if diff := cmp.Diff(want, g["coordinates"]); diff != "" {
		t.Errorf("open ring should be closed (-want +got):\n%s", diff)
	}

	z2 := features[1].(map[string]any)
	assert.Equal(t, "MultiPolygon", z2["geometry"].(map[string]any)["type"])
	assert.Len(t, z2["geometry"].(map[string]any)["coordinates"], 2)
	assert.Equal(t, 1.0, z2["properties"].(map[string]any)[render.FillProperty])

	z3 := features[2].(map[string]any)
	assert.Nil(t, z3["geometry"])
	assert.Nil(t, z3["properties"].(map[string]any)[render.FillProperty], "null colour value has no fill")
}

func TestFeatures_EmptyRangeHasNoFill(t *testing.T) {
	tbl := zoneTable()
	fc, err := render.Features(tbl, "Zone-ID", "loss_abs", domain.Range{Empty: true})
	require.NoError(t, err)
	for _, f := range fc.Features {
		assert.True(t, f.Properties[render.FillProperty].IsNull())
	}
}

func TestFeatures_EmptyTable(t *testing.T) {
	fc, err := render.Features(domain.NewTable("x", []string{"Zone-ID"}), "Zone-ID", "loss_abs", domain.Range{Empty: true})
	require.NoError(t, err)

	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(raw))
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "1,234.50", render.Number(1234.5, 2))
	assert.Equal(t, "1,234,568", render.Number(1234567.8, 0))
	assert.Equal(t, "–", render.Number(math.NaN(), 2))
	assert.Equal(t, "12.5%", render.Percent(0.125))
}

func TestParseFormat(t *testing.T) {
	f, err := render.ParseFormat("svg")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", f.ContentType())

	f, err = render.ParseFormat("png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.ContentType())

	_, err = render.ParseFormat("gif")
	require.ErrorIs(t, err, domain.ErrInvalidSelection)
}

func lossBars() []pipeline.LossBar {
	return []pipeline.LossBar{
		{ZoneID: "Z1", Metric: "PML", LossAbs: domain.Number(100)},
		{ZoneID: "Z2", Metric: "PML", LossAbs: domain.Number(300)},
		{ZoneID: "Z1", Metric: "AAL", LossAbs: domain.Number(40)},
		{ZoneID: "Z3", Metric: "AAL", LossAbs: domain.Null()},
	}
}

func TestLossChart_DefaultsToFirstMetric(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.LossChart(&buf, render.FormatSVG, "Insurance Zone", "", false, lossBars()))
	out := buf.String()
	assert.Contains(t, out, "PML loss by Insurance Zone")
	assert.Contains(t, out, "Z2")
	assert.NotContains(t, out, "Z3")
}

func TestLossChart_SingleMetricSVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.LossChart(&buf, render.FormatSVG, "Insurance Zone", "AAL", false, lossBars()))
	out := buf.String()
	assert.Contains(t, out, "<svg")
	assert.Contains(t, out, "Z1")
	assert.NotContains(t, out, "Z2")
}

func TestLossChart_SharesLabelPercentages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.LossChart(&buf, render.FormatSVG, "Insurance Zone", "", true, lossBars()))
	out := buf.String()
	// Z1: PML 100 and AAL 40 of 140.
	assert.Contains(t, out, "71.4%")
	assert.Contains(t, out, "28.6%")
	assert.Contains(t, out, "100.0%")

	buf.Reset()
	require.NoError(t, render.LossChart(&buf, render.FormatPNG, "Insurance Zone", "", true, lossBars()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestLossChart_NothingToDraw(t *testing.T) {
	var buf bytes.Buffer
	err := render.LossChart(&buf, render.FormatPNG, "Insurance Zone", "EL", false, lossBars())
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = render.LossChart(&buf, render.FormatPNG, "Insurance Zone", "", false, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = render.LossChart(&buf, render.FormatPNG, "Insurance Zone", "", true, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, buf.Len())
}

func TestBarChart_FlatValues(t *testing.T) {
	var buf bytes.Buffer
	err := render.BarChart(&buf, render.FormatPNG, "flat", []render.Bar{{Label: "a"}, {Label: "b"}}, 1)
	require.NoError(t, err, "all-zero bars still render")
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestIndexChart(t *testing.T) {
	panel := &pipeline.IndexPanel{
		Column: "CRI",
		Title:  "City Risk Index",
		Bars: []pipeline.KebeleScore{
			{Kebele: "K3", Score: domain.Number(50)},
			{Kebele: "K1", Score: domain.Number(30)},
			{Kebele: "K2", Score: domain.Null()},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, render.IndexChart(&buf, render.FormatSVG, panel))
	assert.Contains(t, buf.String(), "K3")
	assert.NotContains(t, buf.String(), "K2")
}
