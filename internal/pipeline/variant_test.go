package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/pipeline"
)

func writeVariants(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "variants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultVariants(t *testing.T) {
	vs := pipeline.NewVariants(pipeline.DefaultVariants()...)

	all := vs.All()
	require.Len(t, all, 6)
	assert.Equal(t, "amhara", all[0].Key)

	v, err := vs.Get("amhara-extended")
	require.NoError(t, err)
	assert.True(t, v.YearRanking)
	assert.True(t, v.SidebarMap)

	city, err := vs.Get("hawassa")
	require.NoError(t, err)
	assert.Equal(t, pipeline.AppCity, city.App)

	_, err = vs.Get("tigray")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadVariants_EmptyPathUsesDefaults(t *testing.T) {
	vs, err := pipeline.LoadVariants("")
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultVariants(), vs.All())
}

func TestLoadVariants_MergesOverDefaults(t *testing.T) {
	path := writeVariants(t, `
variants:
  - key: amhara
    title: BDU-CARP
    header: Amhara drought yield loss
    logo: custom.png
    year_ranking: true
  - key: oromia
    header: Oromia drought yield loss
    sidebar_map: true
`)

	vs, err := pipeline.LoadVariants(path)
	require.NoError(t, err)

	all := vs.All()
	require.Len(t, all, 7)
	assert.Equal(t, "amhara", all[0].Key, "replaced variants keep their position")
	assert.Equal(t, "custom.png", all[0].Logo)
	assert.True(t, all[0].YearRanking)
	assert.Equal(t, pipeline.AppDrought, all[0].App, "app defaults to drought")

	oromia := all[6]
	assert.Equal(t, "oromia", oromia.Key)
	assert.Equal(t, pipeline.AppDrought, oromia.App)
	assert.True(t, oromia.SidebarMap)
}

func TestLoadVariants_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing key", body: "variants:\n  - header: x\n", want: "has no key"},
		{name: "unknown app", body: "variants:\n  - key: x\n    app: weather\n", want: "unknown app"},
		{name: "bad yaml", body: "variants: [", want: "parse variants file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.LoadVariants(writeVariants(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := pipeline.LoadVariants(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
