package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
)

// Value is a single table cell: null, a finite number, or a string.
// Numbers parsed from text keep their source spelling so identifiers such
// as "01" survive a round trip.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Number wraps f. Non-finite inputs (NaN, ±Inf) become null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

// String wraps s. An empty string is a string value, not null.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// ParseValue interprets a raw cell. Shapefile attribute cells are padded with
// spaces or NUL bytes, so both are trimmed before parsing.
func ParseValue(raw string) Value {
	s := strings.Trim(raw, " \t\r\n\x00")
	if s == "" {
		return Value{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		v := Number(f)
		if v.kind == KindNumber {
			v.str = s
		}
		return v
	}
	return String(s)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the numeric content of v. Strings that parse as finite
// numbers are accepted.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text renders v for comparisons and labels. Null renders as "".
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		if v.str != "" {
			return v.str
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts a decoded scalar (JSON, spreadsheet or columnar cell) into
// a Value. Unsupported types become null.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		if t {
			return Number(1)
		}
		return Number(0)
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	default:
		return Value{}
	}
}

// Clip bounds f to [lo, hi].
func Clip(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}

// Round rounds f to the given number of decimal places, half away from zero.
func Round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
