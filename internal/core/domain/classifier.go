package domain

import (
	"fmt"
	"math"
	"slices"
)

// Category is a semantic column role.
type Category string

const (
	CategoryNumeric  Category = "numeric"
	CategoryDatetime Category = "datetime"
	CategoryID       Category = "id"
	CategoryCategory Category = "category"
	CategoryObject   Category = "object"
	CategoryNotUsed  Category = "not_used"
)

// idTolerance bounds the deviation of a consecutive difference from 1.
const idTolerance = 1e-7

// Schema partitions a table's columns into semantic categories. Every
// post-drop column lands in at least one of the first five lists; datetime
// may overlap numeric-derived lists unless exclusive datetime is enabled.
type Schema struct {
	Numeric  []string `json:"numeric"`
	Datetime []string `json:"datetime"`
	ID       []string `json:"id"`
	Category []string `json:"category"`
	Object   []string `json:"object"`
	NotUsed  []string `json:"not_used"`
}

// Lists returns the category lists keyed by category name.
func (s *Schema) Lists() map[Category][]string {
	return map[Category][]string{
		CategoryNumeric:  s.Numeric,
		CategoryDatetime: s.Datetime,
		CategoryID:       s.ID,
		CategoryCategory: s.Category,
		CategoryObject:   s.Object,
		CategoryNotUsed:  s.NotUsed,
	}
}

// CategoryOf returns every category holding column, in declaration order.
func (s *Schema) CategoryOf(column string) []Category {
	var out []Category
	for _, pair := range []struct {
		cat  Category
		cols []string
	}{
		{CategoryNumeric, s.Numeric},
		{CategoryDatetime, s.Datetime},
		{CategoryID, s.ID},
		{CategoryCategory, s.Category},
		{CategoryObject, s.Object},
		{CategoryNotUsed, s.NotUsed},
	} {
		if slices.Contains(pair.cols, column) {
			out = append(out, pair.cat)
		}
	}
	return out
}

// ClassifierOption configures a ColumnClassifier.
type ClassifierOption func(*ColumnClassifier)

// WithCategoryThreshold sets the distinct/rows ratio at or below which a
// column is categorical. Non-positive values keep the default.
func WithCategoryThreshold(threshold float64) ClassifierOption {
	return func(c *ColumnClassifier) {
		if threshold > 0 {
			c.threshold = threshold
		}
	}
}

// WithExclusiveDatetime removes datetime columns from the numeric, id and
// category candidates before those stages run.
func WithExclusiveDatetime(exclusive bool) ClassifierOption {
	return func(c *ColumnClassifier) { c.exclusiveDatetime = exclusive }
}

// WithProbes replaces the coercion probes.
func WithProbes(numeric, datetime CoercionProbe) ClassifierOption {
	return func(c *ColumnClassifier) {
		if numeric != nil {
			c.numeric = numeric
		}
		if datetime != nil {
			c.datetime = datetime
		}
	}
}

// ColumnClassifier infers semantic column roles by progressive elimination.
// It holds no per-call state and is safe for concurrent use.
type ColumnClassifier struct {
	threshold         float64
	exclusiveDatetime bool
	numeric           CoercionProbe
	datetime          CoercionProbe
}

func NewColumnClassifier(opts ...ClassifierOption) *ColumnClassifier {
	c := &ColumnClassifier{
		threshold: DefaultCategoryThreshold,
		numeric:   NumericProbe{},
		datetime:  NewDatetimeProbe(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the configured category threshold.
func (c *ColumnClassifier) Threshold() float64 { return c.threshold }

// Classify runs the full pipeline on t after removing drop.
func (c *ColumnClassifier) Classify(t *Table, drop []string) (*Schema, error) {
	cut, err := t.Drop(drop...)
	if err != nil {
		return nil, err
	}
	if cut.Rows() == 0 {
		return nil, fmt.Errorf("%w: table has no rows", ErrInvalidInput)
	}

	numeric := c.ExtractNumeric(cut)
	datetime := c.ExtractDatetime(cut)

	candidates := numeric
	if c.exclusiveDatetime {
		candidates = without(numeric, datetime)
	}

	id, candidates, err := c.ExtractID(cut, candidates)
	if err != nil {
		return nil, err
	}

	scope := cut
	if c.exclusiveDatetime {
		if scope, err = cut.Drop(datetime...); err != nil {
			return nil, err
		}
	}
	category, candidates, err := c.ExtractCategory(scope, candidates)
	if err != nil {
		return nil, err
	}

	claimed := make(map[string]bool)
	for _, list := range [][]string{id, datetime, category, candidates} {
		for _, name := range list {
			claimed[name] = true
		}
	}
	var object []string
	for _, name := range cut.ColumnNames() {
		if !claimed[name] {
			object = append(object, name)
		}
	}

	return &Schema{
		Numeric:  nonNil(candidates),
		Datetime: nonNil(datetime),
		ID:       nonNil(id),
		Category: nonNil(category),
		Object:   nonNil(object),
		NotUsed:  nonNil(slices.Clone(drop)),
	}, nil
}

// ExtractNumeric returns natively numeric columns plus text columns whose
// every cell coerces to a number.
func (c *ColumnClassifier) ExtractNumeric(t *Table) []string {
	return c.probeColumns(t, c.numeric, func(et ElementType) bool { return et.IsNumeric() })
}

// ExtractDatetime returns native datetime columns plus text columns whose
// every cell parses as a timestamp.
func (c *ColumnClassifier) ExtractDatetime(t *Table) []string {
	return c.probeColumns(t, c.datetime, func(et ElementType) bool { return et == TypeDatetime })
}

// probeColumns keeps native columns as-is and tries the probe on text
// columns. Coercion failures only exclude the column.
func (c *ColumnClassifier) probeColumns(t *Table, probe CoercionProbe, native func(ElementType) bool) []string {
	var out []string
	for _, col := range t.Columns() {
		switch {
		case native(col.Type):
			out = append(out, col.Name)
		case col.Type.IsText():
			if err := probe.Probe(col); err == nil {
				out = append(out, col.Name)
			}
		}
	}
	return out
}

// ExtractID moves dense +1 runs out of numeric. A column qualifies when
// every consecutive difference is 1 within tolerance and all values are
// distinct. Integer columns compare exactly. Single-row columns are never
// identifiers.
func (c *ColumnClassifier) ExtractID(t *Table, numeric []string) (id, rest []string, err error) {
	var coerce NumericProbe
	for _, name := range numeric {
		col, ok := t.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown numeric column %q", ErrInvalidInput, name)
		}
		var dense bool
		if col.Type == TypeInt {
			dense = isDenseIntRun(col.Values)
		} else {
			values, cerr := coerce.Coerce(col)
			dense = cerr == nil && isDenseRun(values)
		}
		if dense {
			id = append(id, name)
			continue
		}
		rest = append(rest, name)
	}
	return id, rest, nil
}

// isDenseIntRun checks for a strictly +1 run without leaving int64, so runs
// above 2^53 keep their exact deltas.
func isDenseIntRun(values []any) bool {
	if len(values) < 2 {
		return false
	}
	var prev int64
	for i, v := range values {
		cur, ok := toInt64(v)
		if !ok {
			return false
		}
		if i > 0 && (cur <= prev || cur-prev != 1) {
			return false
		}
		prev = cur
	}
	return true
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func isDenseRun(values []float64) bool {
	if len(values) < 2 {
		return false
	}
	seen := make(map[float64]struct{}, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			return false
		}
		seen[v] = struct{}{}
		if i > 0 && !(math.Abs(v-values[i-1]-1) < idTolerance) {
			return false
		}
	}
	return len(seen) == len(values)
}

// ExtractCategory flags every column of t whose cardinality ratio is at or
// below the threshold and removes those columns from numeric.
func (c *ColumnClassifier) ExtractCategory(t *Table, numeric []string) (category, rest []string, err error) {
	if t.Rows() == 0 {
		return nil, nil, fmt.Errorf("%w: table has no rows", ErrInvalidInput)
	}
	flagged := make(map[string]bool)
	for _, col := range t.Columns() {
		ratio, err := CardinalityRatio(col)
		if err != nil {
			return nil, nil, err
		}
		if ratio <= c.threshold {
			category = append(category, col.Name)
			flagged[col.Name] = true
		}
	}
	for _, name := range numeric {
		if !flagged[name] {
			rest = append(rest, name)
		}
	}
	return category, rest, nil
}

func without(list, remove []string) []string {
	var out []string
	for _, name := range list {
		if !slices.Contains(remove, name) {
			out = append(out, name)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
