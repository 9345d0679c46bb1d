package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsToTable converts pgx.Rows into a column-major table. Column dtypes
// follow the result OIDs; integer and boolean columns holding NULLs widen
// to float64 and object the way a dataframe reader would.
func rowsToTable(rows pgx.Rows) (*domain.Table, error) {
	fields := rows.FieldDescriptions()
	cols := make([]domain.Column, len(fields))
	for i, fd := range fields {
		cols[i] = domain.Column{Name: fd.Name, Type: elementTypeForOID(fd.DataTypeOID)}
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		for i, v := range vals {
			cols[i].Values = append(cols[i].Values, normalizeValue(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	for i := range cols {
		widenForNulls(&cols[i])
	}
	return domain.NewTable(cols...)
}

func elementTypeForOID(oid uint32) domain.ElementType {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return domain.TypeInt
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return domain.TypeFloat
	case pgtype.BoolOID:
		return domain.TypeBool
	case pgtype.DateOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		return domain.TypeDatetime
	default:
		return domain.TypeObject
	}
}

// normalizeValue maps driver values onto the cell types the domain knows.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case pgtype.Numeric:
		if !x.Valid || x.NaN {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case time.Time:
		return x.UTC()
	case []byte:
		return string(x)
	default:
		return v
	}
}

func widenForNulls(col *domain.Column) {
	hasNull := false
	for _, v := range col.Values {
		if v == nil {
			hasNull = true
			break
		}
	}
	if !hasNull {
		return
	}
	switch col.Type {
	case domain.TypeInt:
		for i, v := range col.Values {
			if n, ok := v.(int64); ok {
				col.Values[i] = float64(n)
			}
		}
		col.Type = domain.TypeFloat
	case domain.TypeBool:
		col.Type = domain.TypeObject
	}
}
