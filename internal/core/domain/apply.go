package domain

import (
	"fmt"
	"math"
	"time"
)

// NumericCoercer converts a column to float64 cells, NaN for missing.
type NumericCoercer interface {
	Coerce(col Column) ([]float64, error)
}

// TimeCoercer converts a column to timestamps, zero for missing.
type TimeCoercer interface {
	Coerce(col Column) ([]time.Time, error)
}

// ApplySchema returns a copy of t with each column cast to the type its
// category implies, using the default probes. A column listed in several
// categories takes the first of datetime, id, numeric, category, object.
// Columns the schema does not mention, not_used included, pass through
// untouched.
func ApplySchema(t *Table, schema *Schema) (*Table, error) {
	return applySchema(t, schema, NumericProbe{}, NewDatetimeProbe())
}

// Apply casts t like ApplySchema but with the classifier's own probes, so
// a column accepted by a custom probe casts with the same rules. Probes
// that cannot coerce fall back to the defaults.
func (c *ColumnClassifier) Apply(t *Table, schema *Schema) (*Table, error) {
	var numeric NumericCoercer = NumericProbe{}
	if nc, ok := c.numeric.(NumericCoercer); ok {
		numeric = nc
	}
	var datetime TimeCoercer = NewDatetimeProbe()
	if tc, ok := c.datetime.(TimeCoercer); ok {
		datetime = tc
	}
	return applySchema(t, schema, numeric, datetime)
}

func applySchema(t *Table, schema *Schema, numeric NumericCoercer, datetime TimeCoercer) (*Table, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: no schema computed for table", ErrConfiguration)
	}

	target := make(map[string]Category)
	for _, group := range []struct {
		cat  Category
		cols []string
	}{
		{CategoryObject, schema.Object},
		{CategoryCategory, schema.Category},
		{CategoryNumeric, schema.Numeric},
		{CategoryID, schema.ID},
		{CategoryDatetime, schema.Datetime},
	} {
		for _, name := range group.cols {
			if !t.Has(name) {
				return nil, fmt.Errorf("%w: schema column %q not in table", ErrInvalidInput, name)
			}
			target[name] = group.cat
		}
	}

	out := make([]Column, 0, t.Width())
	for _, col := range t.Columns() {
		cat, ok := target[col.Name]
		if !ok {
			out = append(out, col)
			continue
		}
		cast, err := castColumn(col, cat, numeric, datetime)
		if err != nil {
			return nil, err
		}
		out = append(out, cast)
	}
	return NewTable(out...)
}

func castColumn(col Column, cat Category, numeric NumericCoercer, datetime TimeCoercer) (Column, error) {
	switch cat {
	case CategoryNumeric, CategoryID:
		if col.Type == TypeInt {
			return col, nil
		}
		floats, err := numeric.Coerce(col)
		if err != nil {
			return Column{}, fmt.Errorf("cast %q to numeric: %w", col.Name, err)
		}
		values := make([]any, len(floats))
		for i, f := range floats {
			if !math.IsNaN(f) {
				values[i] = f
			}
		}
		return Column{Name: col.Name, Type: TypeFloat, Values: values}, nil

	case CategoryDatetime:
		times, err := datetime.Coerce(col)
		if err != nil {
			return Column{}, fmt.Errorf("cast %q to datetime: %w", col.Name, err)
		}
		values := make([]any, len(times))
		for i, ts := range times {
			if col.Values[i] != nil {
				values[i] = ts
			}
		}
		return Column{Name: col.Name, Type: TypeDatetime, Values: values}, nil

	case CategoryCategory:
		return Column{Name: col.Name, Type: TypeCategory, Values: col.Values}, nil

	default:
		values := make([]any, len(col.Values))
		for i, v := range col.Values {
			values[i] = renderText(v)
		}
		return Column{Name: col.Name, Type: TypeObject, Values: values}, nil
	}
}

func renderText(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
