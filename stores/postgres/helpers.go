package postgres

import (
	"strings"

	"github.com/gabisonia/go-rulefilter/rules"
)

func quoteIdent(ident string) string {
	return rules.Postgres.QuoteIdent(ident)
}

func qualifiedTable(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

// compatibleTypes lists the information_schema data types a column of each
// filter type may have.
var compatibleTypes = map[rules.FilterType][]string{
	rules.TypeText:    {"text", "character varying", "character", "uuid", "citext"},
	rules.TypeEnum:    {"text", "character varying", "character", "USER-DEFINED"},
	rules.TypeNumber:  {"numeric", "double precision", "real", "integer", "bigint", "smallint"},
	rules.TypeDate:    {"timestamp with time zone", "timestamp without time zone", "date"},
	rules.TypeBoolean: {"boolean"},
	rules.TypeArray:   {"ARRAY"},
}

func typeCompatible(t rules.FilterType, dataType string) bool {
	for _, candidate := range compatibleTypes[t] {
		if strings.EqualFold(candidate, dataType) {
			return true
		}
	}
	return false
}
