package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// readJSON reads an array of flat objects. Columns follow the order in
// which keys first appear, which a map-based decode would lose.
func readJSON(ctx context.Context, path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	var cols []string
	known := make(map[string]bool)
	var records []map[string]domain.Value
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		rec := make(map[string]domain.Value)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected token %v", tok)
			}
			var raw any
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("column %q: %w", key, err)
			}
			rec[key] = jsonValue(raw)
			if !known[key] {
				known[key] = true
				cols = append(cols, key)
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}

	t := domain.NewTable(path, cols)
	for _, rec := range records {
		for _, c := range cols {
			if _, ok := rec[c]; !ok {
				rec[c] = domain.Null()
			}
		}
		t.Append(rec, nil)
	}
	return t, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.New("expected " + want.String())
	}
	return nil
}

func jsonValue(raw any) domain.Value {
	if n, ok := raw.(json.Number); ok {
		return domain.ParseValue(n.String())
	}
	return domain.FromAny(raw)
}
