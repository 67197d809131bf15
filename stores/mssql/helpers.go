package mssql

import (
	"strings"

	"github.com/gabisonia/go-rulefilter/rules"
)

func quoteIdent(ident string) string {
	return rules.MSSQL.QuoteIdent(ident)
}

func qualifiedTable(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func escapeSQLString(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

func isStringType(dataType string) bool {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "varchar", "nvarchar", "char", "nchar", "text", "ntext", "uniqueidentifier":
		return true
	default:
		return false
	}
}

func typeCompatible(t rules.FilterType, dataType string) bool {
	dataType = strings.ToLower(strings.TrimSpace(dataType))
	switch t {
	case rules.TypeText, rules.TypeEnum, rules.TypeArray:
		return isStringType(dataType)
	case rules.TypeNumber:
		switch dataType {
		case "int", "bigint", "smallint", "tinyint", "decimal", "numeric", "float", "real", "money":
			return true
		}
	case rules.TypeDate:
		switch dataType {
		case "date", "datetime", "datetime2", "datetimeoffset", "smalldatetime":
			return true
		}
	case rules.TypeBoolean:
		return dataType == "bit"
	}
	return false
}
