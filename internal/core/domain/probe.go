package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// CoercionProbe checks whether a column can be reinterpreted as a target
// semantic type. A nil error means every non-missing cell coerced.
type CoercionProbe interface {
	Name() string
	Probe(col Column) error
}

// NumericProbe coerces columns to float64.
type NumericProbe struct{}

func (NumericProbe) Name() string { return "numeric" }

func (p NumericProbe) Probe(col Column) error {
	_, err := p.Coerce(col)
	return err
}

// Coerce converts the column to float64. Missing cells become NaN. Native
// numeric columns always succeed; text columns succeed only when every cell
// is a number, a bool or a parseable numeric string.
func (p NumericProbe) Coerce(col Column) ([]float64, error) {
	switch {
	case col.Type.IsNumeric(), col.Type.IsText():
	default:
		return nil, &CoercionError{Probe: p.Name(), Column: col.Name, Row: -1, Reason: "dtype " + string(col.Type) + " is not coercible"}
	}

	out := make([]float64, len(col.Values))
	for i, v := range col.Values {
		f, ok := toFloat(v)
		if !ok {
			return nil, &CoercionError{Probe: p.Name(), Column: col.Name, Row: i, Value: v, Reason: "not a number"}
		}
		out[i] = f
	}
	return out, nil
}

// toFloat converts a single cell. nil maps to NaN.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// DefaultDateLayouts are tried in order by DatetimeProbe.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"02.01.2006",
	"02.01.2006 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Datetime values must fit a signed 64-bit nanosecond count since the epoch.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// DatetimeProbe coerces columns to timestamps using a fixed layout list.
type DatetimeProbe struct {
	Layouts []string
}

func NewDatetimeProbe() DatetimeProbe {
	return DatetimeProbe{Layouts: DefaultDateLayouts}
}

func (DatetimeProbe) Name() string { return "datetime" }

func (p DatetimeProbe) Probe(col Column) error {
	_, err := p.Coerce(col)
	return err
}

// Coerce parses every non-missing cell. Missing cells map to the zero time.
// Digit-only strings are refused: they are far more often codes or counts
// than compact dates.
func (p DatetimeProbe) Coerce(col Column) ([]time.Time, error) {
	switch {
	case col.Type == TypeDatetime, col.Type.IsText():
	default:
		return nil, &CoercionError{Probe: p.Name(), Column: col.Name, Row: -1, Reason: "dtype " + string(col.Type) + " is not coercible"}
	}

	layouts := p.Layouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}

	out := make([]time.Time, len(col.Values))
	for i, v := range col.Values {
		var ts time.Time
		switch x := v.(type) {
		case nil:
			continue
		case time.Time:
			ts = x
		case string:
			s := strings.TrimSpace(x)
			if s == "" || isDigits(s) {
				return nil, &CoercionError{Probe: p.Name(), Column: col.Name, Row: i, Value: v, Reason: "not a timestamp"}
			}
			parsed, ok := parseTimestamp(s, layouts)
			if !ok {
				return nil, &CoercionError{Probe: p.Name(), Column: col.Name, Row: i, Value: v, Reason: "no layout matched"}
			}
			ts = parsed
		default:
			return nil, &CoercionError{Probe: p.Name(), Column: col.Name, Row: i, Value: v, Reason: "unsupported cell type " + RuntimeTypeName(v)}
		}
		if ts.Before(minTimestamp) || ts.After(maxTimestamp) {
			return nil, &CoercionError{Probe: p.Name(), Column: col.Name, Row: i, Value: v, Reason: "timestamp out of range"}
		}
		out[i] = ts
	}
	return out, nil
}

func parseTimestamp(s string, layouts []string) (time.Time, bool) {
	for _, lay := range layouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
