// Package render turns pipeline results into presentation feeds: GeoJSON
// feature collections, bar chart images and formatted numbers.
package render

import (
	"encoding/json"
	"fmt"

	"github.com/ctessum/geom"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// FillProperty is the feature property holding the colour position in
// [0, 1], or null when the colour column has no number.
const FillProperty = "fill"

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string                  `json:"type"`
	ID         string                  `json:"id,omitempty"`
	Geometry   *Geometry               `json:"geometry"`
	Properties map[string]domain.Value `json:"properties"`
}

type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Features converts every row of t into a GeoJSON feature. All columns are
// carried as properties; FillProperty is the colour column normalized
// against r. Rows without a geometry get a null geometry.
func Features(t *domain.Table, idCol, colorCol string, r domain.Range) (*FeatureCollection, error) {
	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, t.Len())}
	for _, row := range t.Rows {
		props := make(map[string]domain.Value, len(t.Columns)+1)
		for _, c := range t.Columns {
			props[c] = row.Get(c)
		}
		props[FillProperty] = domain.Null()
		if f, ok := row.Float(colorCol); ok && !r.Empty {
			props[FillProperty] = domain.Number(r.Normalize(f))
		}

		g, err := encodeGeometry(row.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode geometry of row %d: %w", row.Pos, err)
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			ID:         row.Text(idCol),
			Geometry:   g,
			Properties: props,
		})
	}
	return fc, nil
}

func encodeGeometry(g geom.Polygonal) (*Geometry, error) {
	if g == nil {
		return nil, nil
	}
	polys := g.Polygons()
	if len(polys) == 0 {
		return nil, nil
	}

	var (
		typ    string
		coords any
	)
	if len(polys) == 1 {
		typ, coords = "Polygon", polygonCoords(polys[0])
	} else {
		multi := make([][][][2]float64, len(polys))
		for i, p := range polys {
			multi[i] = polygonCoords(p)
		}
		typ, coords = "MultiPolygon", multi
	}

	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	return &Geometry{Type: typ, Coordinates: raw}, nil
}

// polygonCoords returns the rings of p as [lon, lat] pairs. GeoJSON rings
// are closed, so an open ring gets its first point repeated.
func polygonCoords(p geom.Polygon) [][][2]float64 {
	rings := make([][][2]float64, 0, len(p))
	for _, path := range p {
		if len(path) == 0 {
			continue
		}
		ring := make([][2]float64, 0, len(path)+1)
		for _, pt := range path {
			ring = append(ring, [2]float64{pt.X, pt.Y})
		}
		if path[0] != path[len(path)-1] {
			ring = append(ring, [2]float64{path[0].X, path[0].Y})
		}
		rings = append(rings, ring)
	}
	return rings
}
