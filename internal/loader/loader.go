// Package loader reads the static dataset files produced by the offline
// modelling pipeline into domain tables.
//
// The format is chosen from the file extension:
//
//	.shp                      ESRI shapefile (attributes + polygon geometry)
//	.csv                      comma separated, header row required
//	.xlsx                     first worksheet, header row required
//	.xls                      first worksheet of a legacy BIFF workbook
//	.parquet, .parquet.gzip   flat Parquet schema
//	.json                     array of flat objects
//
// Every failure is reported as a *domain.LoadError carrying the path.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// Format identifies a supported file format.
type Format string

const (
	FormatShapefile Format = "shapefile"
	FormatCSV       Format = "csv"
	FormatXLSX      Format = "xlsx"
	FormatXLS       Format = "xls"
	FormatParquet   Format = "parquet"
	FormatJSON      Format = "json"
)

// ErrUnsupportedFormat is returned for file extensions the loader cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Spec names a dataset file. Fields lists the attribute names to decode from
// a shapefile (dBASE attributes cannot be enumerated without them); for the
// other formats a non-empty Fields projects the table onto those columns.
type Spec struct {
	Path   string
	Fields []string
}

// Key identifies the spec in the load cache.
func (s Spec) Key() string { return s.Path }

// DetectFormat maps a file name to its format.
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".parquet.gzip"), strings.HasSuffix(lower, ".parquet.gz"):
		return FormatParquet, nil
	}
	switch filepath.Ext(lower) {
	case ".shp":
		return FormatShapefile, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".parquet":
		return FormatParquet, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Loader reads dataset files from disk.
type Loader struct {
	logger *slog.Logger
}

// New creates a Loader.
func New(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads the file named by spec into a table.
func (l *Loader) Load(ctx context.Context, spec Spec) (*domain.Table, error) {
	start := time.Now()
	t, err := l.load(ctx, spec)
	if err != nil {
		var le *domain.LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &domain.LoadError{Path: spec.Path, Err: err}
	}
	l.logger.Debug("dataset loaded",
		"path", spec.Path,
		"rows", t.Len(),
		"columns", len(t.Columns),
		"duration", time.Since(start),
	)
	return t, nil
}

func (l *Loader) load(ctx context.Context, spec Spec) (*domain.Table, error) {
	if spec.Path == "" {
		return nil, errors.New("empty path")
	}
	format, err := DetectFormat(spec.Path)
	if err != nil {
		return nil, err
	}

	var t *domain.Table
	switch format {
	case FormatShapefile:
		return readShapefile(ctx, spec.Path, spec.Fields)
	case FormatCSV:
		t, err = readCSV(ctx, spec.Path)
	case FormatXLSX:
		t, err = readXLSX(spec.Path)
	case FormatXLS:
		t, err = readXLS(spec.Path)
	case FormatParquet:
		t, err = readParquet(ctx, spec.Path)
	case FormatJSON:
		t, err = readJSON(ctx, spec.Path)
	}
	if err != nil {
		return nil, err
	}
	if len(spec.Fields) == 0 {
		return t, nil
	}
	return domain.Select(t, spec.Fields...)
}

// fromRecords builds a table from a header row and string records, the
// common shape of CSV and spreadsheet input. Short records are padded with
// nulls; blank header cells get positional names.
func fromRecords(path string, header []string, records [][]string) (*domain.Table, error) {
	if len(header) == 0 {
		return nil, errors.New("missing header row")
	}
	cols := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		cols[i] = name
	}

	t := domain.NewTable(path, cols)
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		values := make(map[string]domain.Value, len(cols))
		for i, c := range cols {
			if i < len(rec) {
				values[c] = domain.ParseValue(rec[i])
			} else {
				values[c] = domain.Null()
			}
		}
		t.Append(values, nil)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
