package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyByDistinctCount(t *testing.T) {
	tests := []struct {
		name          string
		distinctCount int64
		totalRows     int64
		want          CardinalityClass
	}{
		{"all unique", 1000, 1000, CardinalityUnique},
		{"near unique at 90%", 900, 1000, CardinalityNearUnique},
		{"enum-like (20 distinct)", 20, 1000, CardinalityEnumLike},
		{"low cardinality (200 distinct)", 200, 1000, CardinalityLowCardinality},
		{"high cardinality (500 distinct)", 500, 1000, CardinalityHighCardinality},
		{"single row", 1, 1, CardinalityUnique},
		{"no rows", 0, 0, CardinalityEnumLike},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyByDistinctCount(tt.distinctCount, tt.totalRows))
		})
	}
}

func TestCardinalityRatio(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   float64
	}{
		{"missing cells count as rows only", []any{"a", nil, "a", "b"}, 0.5},
		{"all distinct", []any{int64(1), int64(2), int64(3), int64(4)}, 1},
		{"float and int keys differ by value", []any{1.0, 1.0, 2.5, 2.5, 2.5}, 0.4},
		{"all missing", []any{nil, nil}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CardinalityRatio(Column{Name: "c", Type: TypeObject, Values: tt.values})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, err := CardinalityRatio(Column{Name: "empty", Type: TypeObject})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTableCardinality(t *testing.T) {
	tbl, err := NewTable(
		Column{Name: "id", Type: TypeInt, Values: []any{int64(1), int64(2), int64(3), int64(4), int64(5)}},
		Column{Name: "status", Type: TypeObject, Values: []any{"open", "open", "closed", "open", nil}},
	)
	require.NoError(t, err)

	got, err := TableCardinality(tbl)
	require.NoError(t, err)
	assert.Equal(t, []ColumnCardinality{
		{Column: "id", DistinctCount: 5, Ratio: 1, Class: CardinalityUnique},
		{Column: "status", DistinctCount: 2, Ratio: 0.4, Class: CardinalityEnumLike},
	}, got)
}
