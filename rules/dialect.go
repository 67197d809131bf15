package rules

import (
	"fmt"
	"strings"
)

// Dialect renders the parts of a predicate that differ between SQL engines.
// Placeholders are always @name, which pgx named arguments and go-mssqldb
// sql.Named parameters both bind.
type Dialect interface {
	Name() string
	QuoteIdent(ident string) string
	// Like renders a case-insensitive pattern match with backslash escaping.
	Like(column, placeholder string) string
	ArrayContains(column, placeholder string) string
	ArrayOverlaps(column string, placeholders []string) string
	ArrayEmpty(column string) string
}

var (
	Postgres Dialect = postgresDialect{}
	MSSQL    Dialect = mssqlDialect{}
)

// DialectByName resolves "postgres" or "mssql".
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", name)
	}
}

func placeholder(name string) string {
	return "@" + name
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (postgresDialect) Like(column, ph string) string {
	return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, column, ph)
}

func (postgresDialect) ArrayContains(column, ph string) string {
	return fmt.Sprintf("%s = ANY(%s)", ph, column)
}

func (postgresDialect) ArrayOverlaps(column string, phs []string) string {
	return fmt.Sprintf("%s && ARRAY[%s]::text[]", column, strings.Join(phs, ", "))
}

func (postgresDialect) ArrayEmpty(column string) string {
	return fmt.Sprintf("(%s IS NULL OR cardinality(%s) = 0)", column, column)
}

// mssqlDialect stores array fields as JSON arrays of strings.
type mssqlDialect struct{}

func (mssqlDialect) Name() string { return "mssql" }

func (mssqlDialect) QuoteIdent(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (mssqlDialect) Like(column, ph string) string {
	return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, column, ph)
}

func (mssqlDialect) ArrayContains(column, ph string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM OPENJSON(%s) WHERE [value] = %s)", column, ph)
}

func (mssqlDialect) ArrayOverlaps(column string, phs []string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM OPENJSON(%s) WHERE [value] IN (%s))", column, strings.Join(phs, ", "))
}

func (mssqlDialect) ArrayEmpty(column string) string {
	return fmt.Sprintf("(%s IS NULL OR NOT EXISTS (SELECT 1 FROM OPENJSON(%s)))", column, column)
}

// escapeLike escapes the LIKE wildcards of a user supplied string.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `[`, `\[`)
	return r.Replace(s)
}
