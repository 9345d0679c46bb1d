package csvsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_InfersDtypes(t *testing.T) {
	input := `id,price,qty,active,flag,name,day
1,1.5,3,True,true,alice,2024-01-01
2,2,,False,,bob,2024-01-02
3,NaN,5,True,false,carol,2024-01-03
`
	tbl, err := NewLoader().Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, [2]int{3, 7}, tbl.Shape())

	tests := []struct {
		column string
		dtype  domain.ElementType
		values []any
	}{
		{"id", domain.TypeInt, []any{int64(1), int64(2), int64(3)}},
		{"price", domain.TypeFloat, []any{1.5, 2.0, nil}},
		{"qty", domain.TypeFloat, []any{3.0, nil, 5.0}},
		{"active", domain.TypeBool, []any{true, false, true}},
		{"flag", domain.TypeObject, []any{"true", nil, "false"}},
		{"name", domain.TypeObject, []any{"alice", "bob", "carol"}},
		{"day", domain.TypeObject, []any{"2024-01-01", "2024-01-02", "2024-01-03"}},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			col, ok := tbl.Column(tt.column)
			require.True(t, ok)
			assert.Equal(t, tt.dtype, col.Type)
			assert.Equal(t, tt.values, col.Values)
		})
	}
}

func TestLoader_AllMissingColumnIsObject(t *testing.T) {
	tbl, err := NewLoader().Read(context.Background(), strings.NewReader("a,b\n1,\n2,NA\n"))
	require.NoError(t, err)
	col, _ := tbl.Column("b")
	assert.Equal(t, domain.TypeObject, col.Type)
	assert.Equal(t, []any{nil, nil}, col.Values)
}

func TestLoader_MaxRows(t *testing.T) {
	tbl, err := NewLoader(WithMaxRows(2)).Read(context.Background(), strings.NewReader("a\n1\n2\n3\n4\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Rows())
}

func TestLoader_Semicolon(t *testing.T) {
	tbl, err := NewLoader(WithComma(';')).Read(context.Background(), strings.NewReader("a;b\n1;x\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.ColumnNames())
}

func TestLoader_Errors(t *testing.T) {
	_, err := NewLoader().Read(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewLoader().Read(context.Background(), strings.NewReader("a,b\n1\n"))
	require.Error(t, err)

	_, err = NewLoader().Read(context.Background(), strings.NewReader("a,a\n1,2\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "none.csv"))
	require.Error(t, err)
}

func TestLoader_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y\n0,a\n1,b\n"), 0o644))
	tbl, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 2}, tbl.Shape())
}
