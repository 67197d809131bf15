package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gabisonia/go-rulefilter/rules"
)

const limitParam = "limit"

type queryPlan struct {
	query string
	args  pgx.NamedArgs
}

func (s *PostgresStore) countPlan(entity string, group rules.ValidatedRuleGroup) (queryPlan, error) {
	e, clause, err := s.where(entity, group)
	if err != nil {
		return queryPlan{}, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s WHERE %s`,
		qualifiedTable(s.opts.Schema, e.Table),
		quoteIdent(e.Alias),
		clause.SQL,
	)
	return queryPlan{query: query, args: pgx.NamedArgs(clause.Params)}, nil
}

func (s *PostgresStore) idsPlan(entity string, group rules.ValidatedRuleGroup, limit int) (queryPlan, error) {
	if limit <= 0 {
		return queryPlan{}, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	e, clause, err := s.where(entity, group)
	if err != nil {
		return queryPlan{}, err
	}
	key := quoteIdent(e.Alias) + "." + quoteIdent(e.Key)
	query := fmt.Sprintf(`SELECT %s::text FROM %s %s WHERE %s ORDER BY %s LIMIT @%s`,
		key,
		qualifiedTable(s.opts.Schema, e.Table),
		quoteIdent(e.Alias),
		clause.SQL,
		key,
		limitParam,
	)

	args := pgx.NamedArgs(clause.Params)
	args[limitParam] = limit
	return queryPlan{query: query, args: args}, nil
}

func (s *PostgresStore) where(entity string, group rules.ValidatedRuleGroup) (rules.Entity, rules.Clause, error) {
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
