package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/service"
)

// Table source arguments shared by every tool that reads data.
const (
	argCSVPath = "csv_path"
	argSQL     = "sql"
	argPGTable = "pg_table"
)

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// intArg reads a whole number. JSON numbers arrive as float64.
func intArg(args map[string]any, key string) (int, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false, fmt.Errorf("%s must be a whole number", key)
	}
	return int(f), true, nil
}

func floatArg(args map[string]any, key string) (float64, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
	return f, true, nil
}

func seedArg(args map[string]any) (*uint64, error) {
	n, ok, err := intArg(args, "seed")
	if err != nil || !ok {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("seed must be non-negative")
	}
	seed := uint64(n)
	return &seed, nil
}

// listArg splits a comma-separated argument, dropping blanks.
func listArg(args map[string]any, key string) []string {
	raw := stringArg(args, key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadTable materializes the table named by exactly one source argument.
func loadTable(ctx context.Context, sources *service.SourceService, args map[string]any) (*domain.Table, error) {
	csvPath := stringArg(args, argCSVPath)
	sql := stringArg(args, argSQL)
	pgTable := stringArg(args, argPGTable)

	set := 0
	for _, v := range []string{csvPath, sql, pgTable} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of %s, %s or %s is required", argCSVPath, argSQL, argPGTable)
	}

	switch {
	case csvPath != "":
		return sources.LoadFile(ctx, csvPath)
	case sql != "":
		return sources.LoadQuery(ctx, sql)
	default:
		schema, table, found := strings.Cut(pgTable, ".")
		if !found {
			schema, table = "", pgTable
		}
		return sources.LoadTable(ctx, schema, table)
	}
}
