package mssql

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/gabisonia/go-rulefilter/rules"
)

const limitParam = "limit"

type queryPlan struct {
	query string
	args  []any
}

func (s *MSSQLStore) countPlan(entity string, group rules.ValidatedRuleGroup) (queryPlan, error) {
	e, clause, err := s.where(entity, group)
	if err != nil {
		return queryPlan{}, err
	}
	query := fmt.Sprintf(`SELECT COUNT_BIG(*) FROM %s AS %s WHERE %s`,
		qualifiedTable(s.opts.Schema, e.Table),
		quoteIdent(e.Alias),
		clause.SQL,
	)
	return queryPlan{query: query, args: namedArgs(clause.Params)}, nil
}

func (s *MSSQLStore) idsPlan(entity string, group rules.ValidatedRuleGroup, limit int) (queryPlan, error) {
	if limit <= 0 {
		return queryPlan{}, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	e, clause, err := s.where(entity, group)
	if err != nil {
		return queryPlan{}, err
	}
	key := quoteIdent(e.Alias) + "." + quoteIdent(e.Key)
	query := fmt.Sprintf(`SELECT CAST(%s AS NVARCHAR(450)) FROM %s AS %s WHERE %s ORDER BY %s OFFSET 0 ROWS FETCH NEXT @%s ROWS ONLY`,
		key,
		qualifiedTable(s.opts.Schema, e.Table),
		quoteIdent(e.Alias),
		clause.SQL,
		key,
		limitParam,
	)

	args := append(namedArgs(clause.Params), sql.Named(limitParam, limit))
	return queryPlan{query: query, args: args}, nil
}

func (s *MSSQLStore) where(entity string, group rules.ValidatedRuleGroup) (rules.Entity, rules.Clause, error) {
	e, ok := s.registry.Entity(entity)
	if !ok {
		return rules.Entity{}, rules.Clause{}, &rules.ContractViolationError{Entity: entity, Err: rules.ErrUnknownEntity}
	}
	if e.Table == "" {
		return rules.Entity{}, rules.Clause{}, fmt.Errorf("%w: entity %q has no table", rules.ErrSchemaMismatch, entity)
	}
	clause, err := s.builder.Build(entity, group)
	if err != nil {
		return rules.Entity{}, rules.Clause{}, err
	}
	return e, clause, nil
}

// namedArgs converts clause parameters to sql.Named arguments in name order.
func namedArgs(params map[string]any) []any {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		args = append(args, sql.Named(name, params[name]))
	}
	return args
}
