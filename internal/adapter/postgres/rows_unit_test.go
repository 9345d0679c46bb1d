package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestElementTypeForOID(t *testing.T) {
	tests := []struct {
		oid  uint32
		want domain.ElementType
	}{
		{pgtype.Int4OID, domain.TypeInt},
		{pgtype.Int8OID, domain.TypeInt},
		{pgtype.NumericOID, domain.TypeFloat},
		{pgtype.Float8OID, domain.TypeFloat},
		{pgtype.BoolOID, domain.TypeBool},
		{pgtype.DateOID, domain.TypeDatetime},
		{pgtype.TimestamptzOID, domain.TypeDatetime},
		{pgtype.TextOID, domain.TypeObject},
		{pgtype.UUIDOID, domain.TypeObject},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, elementTypeForOID(tt.oid))
	}
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 7200))
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"int32", int32(7), int64(7)},
		{"float32", float32(0.5), 0.5},
		{"numeric", pgtype.Numeric{Int: big.NewInt(125), Exp: -2, Valid: true}, 1.25},
		{"numeric nan", pgtype.Numeric{NaN: true, Valid: true}, nil},
		{"uuid", [16]byte{1}, "01000000-0000-0000-0000-000000000000"},
		{"time to utc", ts, ts.UTC()},
		{"bytes", []byte("abc"), "abc"},
		{"string", "x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestWidenForNulls(t *testing.T) {
	ints := domain.Column{Name: "a", Type: domain.TypeInt, Values: []any{int64(1), nil}}
	widenForNulls(&ints)
	assert.Equal(t, domain.TypeFloat, ints.Type)
	assert.Equal(t, []any{1.0, nil}, ints.Values)

	bools := domain.Column{Name: "b", Type: domain.TypeBool, Values: []any{true, nil}}
	widenForNulls(&bools)
	assert.Equal(t, domain.TypeObject, bools.Type)

	full := domain.Column{Name: "c", Type: domain.TypeInt, Values: []any{int64(1)}}
	widenForNulls(&full)
	assert.Equal(t, domain.TypeInt, full.Type)
}

func TestTableQuery(t *testing.T) {
	assert.Equal(t, `SELECT * FROM "orders"`, TableQuery("", "orders"))
	assert.Equal(t, `SELECT * FROM "app"."we""ird"`, TableQuery("app", `we"ird`))
}
