package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatasetNotice(t *testing.T) {
	msgTime := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		value     string
		wantPath  string
		wantAll   bool
		wantTime  time.Time
		wantError bool
	}{
		{
			name:     "explicit path and timestamp",
			value:    `{"path":" data/zones.shp ","dataset":"zones","published_at":"2026-03-01T12:00:00Z"}`,
			wantPath: "data/zones.shp",
			wantTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "timestamp falls back to message time",
			value:    `{"path":"data/year_rank.parquet"}`,
			wantPath: "data/year_rank.parquet",
			wantTime: msgTime,
		},
		{
			name:     "empty path clears everything",
			value:    `{}`,
			wantAll:  true,
			wantTime: msgTime,
		},
		{
			name:      "malformed payload",
			value:     `{"path":`,
			wantError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := ParseDatasetNotice(RawNotice{Value: []byte(tc.value), Timestamp: msgTime})
			if tc.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "parse dataset notice")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantPath, n.Path)
			assert.Equal(t, tc.wantAll, n.ClearsAll())
			assert.True(t, tc.wantTime.Equal(n.PublishedAt))
		})
	}
}
