package loader

import (
	"context"
	"errors"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// readShapefile decodes every record of a shapefile. Non-polygonal shapes
// keep their attributes but carry no geometry.
func readShapefile(ctx context.Context, path string, fields []string) (*domain.Table, error) {
	if len(fields) == 0 {
		return nil, errors.New("shapefile requires attribute field names")
	}
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, err
	}

	t := domain.NewTable(path, fields)
	for {
		if err := ctx.Err(); err != nil {
			d.Close()
			return nil, err
		}
		g, attrs, more := d.DecodeRowFields(fields...)
		if !more {
			break
		}
		values := make(map[string]domain.Value, len(fields))
		for _, f := range fields {
			values[f] = domain.ParseValue(attrs[f])
		}
		poly, _ := g.(geom.Polygonal)
		t.Append(values, poly)
	}
	d.Close()
	if err := d.Error(); err != nil {
		return nil, err
	}
	return t, nil
}
