package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

const parquetBatch = 256

// readParquet reads a flat Parquet file row group by row group. Nested
// columns are addressed by their dotted path.
func readParquet(ctx context.Context, path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, err
	}

	leaves := pf.Schema().Columns()
	cols := make([]string, len(leaves))
	for i, p := range leaves {
		cols[i] = strings.Join(p, ".")
	}

	t := domain.NewTable(path, cols)
	buf := make([]parquet.Row, parquetBatch)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(ctx, rg, cols, buf, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func readRowGroup(ctx context.Context, rg parquet.RowGroup, cols []string, buf []parquet.Row, t *domain.Table) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			values := make(map[string]domain.Value, len(cols))
			for _, c := range cols {
				values[c] = domain.Null()
			}
			for _, v := range row {
				idx := v.Column()
				if idx < 0 || idx >= len(cols) {
					continue
				}
				values[cols[idx]] = parquetValue(v)
			}
			t.Append(values, nil)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read row group: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func parquetValue(v parquet.Value) domain.Value {
	if v.IsNull() {
		return domain.Null()
	}
	switch v.Kind() {
	case parquet.Boolean:
		return domain.FromAny(v.Boolean())
	case parquet.Int32:
		return domain.Number(float64(v.Int32()))
	case parquet.Int64:
		return domain.Number(float64(v.Int64()))
	case parquet.Float:
		return domain.Number(float64(v.Float()))
	case parquet.Double:
		return domain.Number(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return domain.String(string(v.ByteArray()))
	default:
		return domain.String(v.String())
	}
}
