package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
)

// missingTokens are read as missing cells.
var missingTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true,
	"NULL": true, "null": true, "None": true, "#N/A": true,
}

// Loader reads CSV files into tables, inferring int64, float64, bool or
// object per column from the cell text.
type Loader struct {
	maxRows int
	comma   rune
}

type Option func(*Loader)

// WithMaxRows caps the number of data rows read. Zero means unlimited.
func WithMaxRows(n int) Option {
	return func(l *Loader) { l.maxRows = n }
}

func WithComma(r rune) Option {
	return func(l *Loader) { l.comma = r }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{comma: ','}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load opens path and reads it as CSV with a header row.
func (l *Loader) Load(ctx context.Context, path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()
	return l.Read(ctx, f)
}

func (l *Loader) Read(ctx context.Context, r io.Reader) (*domain.Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = l.comma
	cr.ReuseRecord = false

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv has no header row", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	var rows [][]string
	for l.maxRows <= 0 || len(rows) < l.maxRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
	}

	cols := make([]domain.Column, len(headers))
	for c, name := range headers {
		raw := make([]string, len(rows))
		for i, rec := range rows {
			raw[i] = rec[c]
		}
		cols[c] = inferColumn(name, raw)
	}
	return domain.NewTable(cols...)
}

// inferColumn picks the narrowest dtype every non-missing cell satisfies.
// Integer columns with missing cells widen to float64 and boolean columns
// with missing cells fall back to object.
func inferColumn(name string, raw []string) domain.Column {
	allInt, allFloat, allBool := true, true, true
	hasMissing := false
	for _, s := range raw {
		v := strings.TrimSpace(s)
		if missingTokens[v] {
			hasMissing = true
			continue
		}
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
	}

	nonMissing := 0
	for _, s := range raw {
		if !missingTokens[strings.TrimSpace(s)] {
			nonMissing++
		}
	}

	values := make([]any, len(raw))
	switch {
	case nonMissing > 0 && allInt && !hasMissing:
		for i, s := range raw {
			n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			values[i] = n
		}
		return domain.Column{Name: name, Type: domain.TypeInt, Values: values}
	case nonMissing > 0 && allFloat:
		for i, s := range raw {
			v := strings.TrimSpace(s)
			if missingTokens[v] {
				continue
			}
			f, _ := strconv.ParseFloat(v, 64)
			values[i] = f
		}
		return domain.Column{Name: name, Type: domain.TypeFloat, Values: values}
	case nonMissing > 0 && allBool && !hasMissing:
		for i, s := range raw {
			b, _ := parseBool(strings.TrimSpace(s))
			values[i] = b
		}
		return domain.Column{Name: name, Type: domain.TypeBool, Values: values}
	default:
		for i, s := range raw {
			if missingTokens[strings.TrimSpace(s)] {
				continue
			}
			values[i] = s
		}
		return domain.Column{Name: name, Type: domain.TypeObject, Values: values}
	}
}

func parseBool(v string) (bool, bool) {
	switch v {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}
