package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/bdu-carp/risk-dashboard/internal/adapter/http"
	"github.com/bdu-carp/risk-dashboard/internal/cache"
	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/loader"
	"github.com/bdu-carp/risk-dashboard/internal/observability"
	"github.com/bdu-carp/risk-dashboard/internal/pipeline"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type tableStore map[string]*domain.Table

func (s tableStore) Load(_ context.Context, spec loader.Spec) (*domain.Table, error) {
	t, ok := s[spec.Path]
	if !ok {
		return nil, &domain.LoadError{Path: spec.Path, Err: os.ErrNotExist}
	}
	return t, nil
}

type mockCache struct {
	mu      sync.Mutex
	cleared int
}

func (c *mockCache) Entries() []cache.Info {
	return []cache.Info{{Path: "data/rmetric_gdf.shp", Rows: 3, Columns: 5}}
}

func (c *mockCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
	return 2
}

type stubGeocoder struct{}

func (stubGeocoder) ForwardGeocode(_ context.Context, query string) (domain.Place, error) {
	if query == "Kobo" {
		return domain.Place{Name: "Kobo", Address: "Kobo, Amhara, Ethiopia", Lat: 0.5, Lon: 1.5}, nil
	}
	return domain.Place{}, nil
}

func (stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.Place, error) {
	return domain.Place{}, errors.New("offline")
}

// --- fixtures ---

const (
	zonesPath = "data/rmetric_gdf.shp"
	yearsPath = "data/year_rank.csv"
	riskPath  = "data/df_risk_merged_gdf.shp"
)

func square(x, y float64) geom.Polygonal {
	return geom.Polygon{{{X: x, Y: y}, {X: x + 1, Y: y}, {X: x + 1, Y: y + 1}, {X: x, Y: y + 1}, {X: x, Y: y}}}
}

func table(source string, cols []string, rows [][]any, geoms ...geom.Polygonal) *domain.Table {
	t := domain.NewTable(source, cols)
	for i, r := range rows {
		values := make(map[string]domain.Value, len(cols))
		for j, c := range cols {
			values[c] = domain.FromAny(r[j])
		}
		var g geom.Polygonal
		if i < len(geoms) {
			g = geoms[i]
		}
		t.Append(values, g)
	}
	return t
}

func fixtures() tableStore {
	return tableStore{
		zonesPath: table(zonesPath,
			[]string{"Zone-ID", "LReport", "l_metric", "loss_abs", "loss_rel"},
			[][]any{
				{"Z1", "Insurance Zone", "PML", 100.0, 0.5},
				{"Z2", "Insurance Zone", "PML", 300.0, 0.25},
				{"Z1", "Insurance Zone", "AAL", 40.0, 0.2},
			},
			square(0, 0), square(1, 0), square(0, 0),
		),
		yearsPath: table(yearsPath,
			[]string{"zone", "2001", "2002"},
			[][]any{{1, 0.2, 0.9}, {2, 0.4, 0.1}},
		),
		riskPath: table(riskPath,
			[]string{"kebele", "HRF", "CRF", "CRI", "Social Vul", "Community", "zones_3"},
			[][]any{
				{"K1", 10.0, 20.0, 30.0, 5.0, 7.0, "Zone A"},
				{"K2", 40.0, 10.0, 25.0, 8.0, 3.0, "Zone B"},
			},
			square(0, 0), square(1, 0),
		),
	}
}

func newTestServer(t *testing.T, readyErr error) (*httpadapter.Server, *mockCache) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(fixtures(), stubGeocoder{}, pipeline.Datasets{
		Zones:    loader.Spec{Path: zonesPath},
		YearRank: loader.Spec{Path: yearsPath},
		CityRisk: loader.Spec{Path: riskPath},
	}, pipeline.NewVariants(pipeline.DefaultVariants()...), pipeline.DefaultOptions(), logger, observability.NewMetricsForTesting())

	c := &mockCache{}
	srv := httpadapter.NewServer(":0", p, c, &mockReadiness{err: readyErr},
		httpadapter.Options{DefaultVariant: "amhara", RequestTimeout: 5 * time.Second}, logger)
	return srv, c
}

func do(t *testing.T, srv http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// --- operational routes ---

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz").Code)
}

func TestReadyz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/readyz").Code)

	srv, _ = newTestServer(t, errors.New("datasets not loaded"))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAllReady(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, httpadapter.AllReady(&mockReadiness{}, nil).CheckReadiness(ctx))

	err := httpadapter.AllReady(&mockReadiness{}, &mockReadiness{err: errors.New("listener down")}).CheckReadiness(ctx)
	require.EqualError(t, err, "listener down")
}

// --- drought routes ---

func TestVariants(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/variants")
	require.Equal(t, http.StatusOK, rec.Code)
	var variants []pipeline.Variant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &variants))
	assert.Len(t, variants, len(pipeline.DefaultVariants()))

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/variants/hawassa").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/variants/tigray").Code)
}

func TestDroughtOptions(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/drought/options")
	require.Equal(t, http.StatusOK, rec.Code)
	var opts pipeline.DroughtOptions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	assert.Equal(t, []string{"Insurance Zone"}, opts.Levels)
	assert.Equal(t, []string{"PML", "AAL"}, opts.Metrics)
}

func TestDroughtView(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/drought/view?level=Insurance+Zone&metric=PML")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "amhara", body["variant"].(map[string]any)["key"], "default variant applies")
	assert.Len(t, body["top_zones"].(map[string]any)["rows"], 2)

	tests := []struct {
		target string
		status int
	}{
		{"/api/drought/view?level=Insurance+Zone", http.StatusBadRequest},
		{"/api/drought/view?metric=PML", http.StatusBadRequest},
		{"/api/drought/view?variant=nope&level=Insurance+Zone&metric=PML", http.StatusNotFound},
		{"/api/drought/view?variant=hawassa&level=Insurance+Zone&metric=PML", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, srv, http.MethodGet, tt.target)
		assert.Equal(t, tt.status, rec.Code, tt.target)
		assert.NotEmpty(t, decode(t, rec)["error"])
	}
}

func TestYearRanking(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/drought/years?zone=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var ranking domain.YearRanking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ranking))
	require.NotNil(t, ranking.Zone)
	assert.Equal(t, 2, *ranking.Zone)
	assert.Equal(t, "2001", ranking.BadYears[0].Year)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/drought/years").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/drought/years?zone=15").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/drought/years?zone=-1").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/drought/years?zone=two").Code)
}

func TestZoneFeatures(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/drought/zones.geojson?level=Insurance+Zone&metric=PML&color=loss_abs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "loss_abs", rec.Header().Get("X-Color-Property"))

	body := decode(t, rec)
	assert.Equal(t, "FeatureCollection", body["type"])
	features := body["features"].([]any)
	require.Len(t, features, 2)
	assert.Equal(t, "Z2", features[1].(map[string]any)["id"])
	assert.Equal(t, 1.0, features[1].(map[string]any)["properties"].(map[string]any)["fill"])

	assert.Equal(t, http.StatusBadRequest,
		do(t, srv, http.MethodGet, "/api/drought/zones.geojson?level=Insurance+Zone&metric=PML&color=red").Code)
}

func TestZoneDetail(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/drought/zones/Z2?level=Insurance+Zone&metric=PML")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Z2", body["zone_id"])
	assert.Equal(t, "failed", body["place_source"], "geocoder errors degrade to no place")

	assert.Equal(t, http.StatusNotFound,
		do(t, srv, http.MethodGet, "/api/drought/zones/Z9?level=Insurance+Zone&metric=PML").Code)
}

func TestLocate(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/drought/locate?level=Insurance+Zone&lat=0.5&lon=0.5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Z1", decode(t, rec)["zone_id"])

	rec = do(t, srv, http.MethodGet, "/api/drought/locate?level=Insurance+Zone&place=Kobo")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Z2", body["zone_id"])
	assert.Equal(t, "Kobo", body["place"].(map[string]any)["name"])

	assert.Equal(t, http.StatusNotFound,
		do(t, srv, http.MethodGet, "/api/drought/locate?level=Insurance+Zone&lat=5&lon=5").Code)
	assert.Equal(t, http.StatusNotFound,
		do(t, srv, http.MethodGet, "/api/drought/locate?level=Insurance+Zone&place=Atlantis").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, srv, http.MethodGet, "/api/drought/locate?level=Insurance+Zone&lat=north").Code)
}

func TestLossChart(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/drought/charts/loss.png?level=Insurance+Zone")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	rec = do(t, srv, http.MethodGet, "/api/drought/charts/loss.svg?level=Insurance+Zone&metric=PML")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	rec = do(t, srv, http.MethodGet, "/api/drought/charts/loss.svg?level=Insurance+Zone&mode=share")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Loss share by Insurance Zone")

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/drought/charts/loss.gif?level=Insurance+Zone").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/drought/charts/loss.png?level=Livelihood+Zone").Code)
}

// --- city routes ---

func TestCityRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/city/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	var cats []pipeline.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	assert.Len(t, cats, 4)

	rec = do(t, srv, http.MethodGet, "/api/city/social-vulnerability")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "hawassa", body["variant"].(map[string]any)["key"], "first city variant is the default")

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/city/contact").Code)

	rec = do(t, srv, http.MethodGet, "/api/city/city-risk-index/chart.svg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "K1")

	rec = do(t, srv, http.MethodGet, "/api/city/features.geojson?column=HRF")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["features"], 2)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/city/features.geojson?column=kebele").Code)
}

// --- cache routes ---

func TestCacheRoutes(t *testing.T) {
	srv, c := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []cache.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, zonesPath, entries[0].Path)

	rec = do(t, srv, http.MethodDelete, "/api/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decode(t, rec)["removed"])
	assert.Equal(t, 1, c.cleared)
}

func TestLoadErrorIs500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(tableStore{}, nil, pipeline.Datasets{Zones: loader.Spec{Path: zonesPath}},
		pipeline.NewVariants(pipeline.DefaultVariants()...), pipeline.DefaultOptions(), logger, observability.NewMetricsForTesting())
	srv := httpadapter.NewServer(":0", p, &mockCache{}, &mockReadiness{}, httpadapter.Options{DefaultVariant: "amhara"}, logger)

	rec := do(t, srv, http.MethodGet, "/api/drought/options")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], zonesPath)
}
