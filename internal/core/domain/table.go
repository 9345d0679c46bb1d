package domain

import (
	"fmt"
	"reflect"
	"time"
)

// ElementType is the declared dtype of a column. The string values are the
// dtype names persisted in snapshots.
type ElementType string

const (
	TypeInt      ElementType = "int64"
	TypeFloat    ElementType = "float64"
	TypeBool     ElementType = "bool"
	TypeObject   ElementType = "object"
	TypeCategory ElementType = "category"
	TypeDatetime ElementType = "datetime64[ns]"
)

// IsNumeric reports whether the dtype is natively numeric. Booleans are not.
func (t ElementType) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// IsText reports whether values of this dtype are free-form and may hide
// another semantic type.
func (t ElementType) IsText() bool {
	return t == TypeObject || t == TypeCategory
}

// Column is a named, typed value sequence. Missing cells are nil.
type Column struct {
	Name   string
	Type   ElementType
	Values []any
}

// Len returns the number of cells, missing ones included.
func (c Column) Len() int { return len(c.Values) }

// Table is an ordered set of equally long columns.
type Table struct {
	columns []Column
	index   map[string]int
	rows    int
}

// NewTable validates and assembles columns into a table.
func NewTable(cols ...Column) (*Table, error) {
	t := &Table{
		columns: make([]Column, 0, len(cols)),
		index:   make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: column %d has no name", ErrInvalidInput, i)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidInput, c.Name)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrInvalidInput, c.Name, c.Len(), t.rows)
		}
		t.index[c.Name] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// Rows returns the uniform row count.
func (t *Table) Rows() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Shape returns [rows, columns].
func (t *Table) Shape() [2]int { return [2]int{t.rows, len(t.columns)} }

// Columns returns the columns in table order. The slice is a copy; the
// value slices are shared.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Has reports whether the table has a column with this name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// SelectColumns returns, in table order, the names of columns whose dtype
// satisfies pred.
func (t *Table) SelectColumns(pred func(ElementType) bool) []string {
	var names []string
	for _, c := range t.columns {
		if pred(c.Type) {
			names = append(names, c.Name)
		}
	}
	return names
}

// Drop returns a new table without the named columns. Unknown names are an
// error so typos in drop lists surface.
func (t *Table) Drop(names ...string) (*Table, error) {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		if !t.Has(n) {
			return nil, fmt.Errorf("%w: cannot drop unknown column %q", ErrInvalidInput, n)
		}
		skip[n] = true
	}
	kept := make([]Column, 0, len(t.columns))
	for _, c := range t.columns {
		if !skip[c.Name] {
			kept = append(kept, c)
		}
	}
	return NewTable(kept...)
}

// Project returns a new table holding only the named columns, in the
// requested order.
func (t *Table) Project(names ...string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidInput, n)
		}
		cols = append(cols, c)
	}
	out, err := NewTable(cols...)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		out.rows = t.rows
	}
	return out, nil
}

// RuntimeTypeName names the dynamic type of a cell the way data-quality
// reports spell it.
func RuntimeTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "str"
	case bool:
		return "bool"
	case time.Time:
		return "datetime"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// distinctKey maps a cell to a comparable key, or reports false for missing
// cells.
func distinctKey(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case time.Time:
		return timeKey(x.UnixNano()), true
	case float64:
		if x != x {
			return nil, false
		}
		return x, true
	default:
		if !reflect.TypeOf(v).Comparable() {
			return fmt.Sprint(v), true
		}
		return v, true
	}
}

type timeKey int64

// DistinctCount counts distinct non-missing cells.
func DistinctCount(c Column) int {
	seen := make(map[any]struct{}, len(c.Values))
	for _, v := range c.Values {
		if k, ok := distinctKey(v); ok {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}
