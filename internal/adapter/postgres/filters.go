package postgres

import "strings"

// quoteIdent quotes a SQL identifier to prevent injection.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableQuery builds a SELECT over a whole relation. schema may be empty.
func TableQuery(schema, table string) string {
	if schema == "" {
		return "SELECT * FROM " + quoteIdent(table)
	}
	return "SELECT * FROM " + quoteIdent(schema) + "." + quoteIdent(table)
}
