package domain

import "fmt"

// CardinalityClass describes the distribution shape of a column's values.
type CardinalityClass string

const (
	CardinalityUnique          CardinalityClass = "unique"
	CardinalityNearUnique      CardinalityClass = "near_unique"
	CardinalityHighCardinality CardinalityClass = "high_cardinality"
	CardinalityLowCardinality  CardinalityClass = "low_cardinality"
	CardinalityEnumLike        CardinalityClass = "enum_like"
)

// DefaultCategoryThreshold is the distinct/rows ratio at or below which a
// column is treated as categorical.
const DefaultCategoryThreshold = 0.2

// ClassifyByDistinctCount determines the cardinality class from absolute
// distinct and total row counts.
func ClassifyByDistinctCount(distinctCount int64, totalRows int64) CardinalityClass {
	if totalRows > 0 && distinctCount == totalRows {
		return CardinalityUnique
	}

	if totalRows > 0 {
		ratio := float64(distinctCount) / float64(totalRows)
		if ratio >= 0.9 {
			return CardinalityNearUnique
		}
	}

	if distinctCount <= 20 {
		return CardinalityEnumLike
	}
	if distinctCount <= 200 {
		return CardinalityLowCardinality
	}
	return CardinalityHighCardinality
}

// CardinalityRatio returns distinct/rows for a column. The row count
// includes missing cells; the distinct count does not. A column without rows
// has no meaningful ratio and is rejected.
func CardinalityRatio(col Column) (float64, error) {
	if col.Len() == 0 {
		return 0, fmt.Errorf("%w: column %q has no rows", ErrInvalidInput, col.Name)
	}
	return float64(DistinctCount(col)) / float64(col.Len()), nil
}

// ColumnCardinality pairs a column with its cardinality class.
type ColumnCardinality struct {
	Column        string           `json:"column"`
	DistinctCount int64            `json:"distinct_count"`
	Ratio         float64          `json:"ratio"`
	Class         CardinalityClass `json:"class"`
}

// TableCardinality classifies every column of t.
func TableCardinality(t *Table) ([]ColumnCardinality, error) {
	out := make([]ColumnCardinality, 0, t.Width())
	for _, c := range t.Columns() {
		ratio, err := CardinalityRatio(c)
		if err != nil {
			return nil, err
		}
		distinct := int64(DistinctCount(c))
		out = append(out, ColumnCardinality{
			Column:        c.Name,
			DistinctCount: distinct,
			Ratio:         ratio,
			Class:         ClassifyByDistinctCount(distinct, int64(c.Len())),
		})
	}
	return out, nil
}
