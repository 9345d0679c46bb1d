package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrEmptyQuery     = errors.New("empty query")
	ErrNotAllowed     = errors.New("only plain SELECT queries are allowed")
	ErrMultiStatement = errors.New("multiple statements are not allowed")
	ErrParseFailed    = errors.New("failed to parse SQL")
)

// SourceQueryValidator checks table-source queries with PostgreSQL's own
// parser. A source must be one SELECT that neither writes (SELECT INTO) nor
// takes row locks (FOR UPDATE and friends).
type SourceQueryValidator struct{}

func NewSourceQueryValidator() *SourceQueryValidator {
	return &SourceQueryValidator{}
}

func (v *SourceQueryValidator) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	switch len(tree.Stmts) {
	case 0:
		return ErrEmptyQuery
	case 1:
	default:
		return ErrMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return ErrEmptyQuery
	}
	sel := stmt.GetSelectStmt()
	if sel == nil {
		return ErrNotAllowed
	}
	if sel.GetIntoClause() != nil {
		return fmt.Errorf("%w: SELECT INTO", ErrNotAllowed)
	}
	if len(sel.GetLockingClause()) > 0 {
		return fmt.Errorf("%w: locking clause", ErrNotAllowed)
	}
	return nil
}
