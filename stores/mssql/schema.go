package mssql

import (
	"context"
	"fmt"

	"github.com/gabisonia/go-rulefilter/rules"
)

// Verify checks that the table of every registered entity exists and has a
// column of a compatible type for each field without a filter handler.
func (s *MSSQLStore) Verify(ctx context.Context) error {
	for _, name := range s.registry.Entities() {
		if err := s.VerifyEntity(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// VerifyEntity is Verify for a single entity.
func (s *MSSQLStore) VerifyEntity(ctx context.Context, entity string) error {
	e, ok := s.registry.Entity(entity)
	if !ok {
		return &rules.ContractViolationError{Entity: entity, Err: rules.ErrUnknownEntity}
	}

	exists, err := s.tableExists(ctx, e.Table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: table %s.%s of %q does not exist", rules.ErrSchemaMismatch, s.opts.Schema, e.Table, entity)
	}

	cols, err := s.readColumns(ctx, e.Table)
	if err != nil {
		return err
	}
	if _, ok := cols[e.Key]; !ok {
		return fmt.Errorf("%w: %q is missing key column %q", rules.ErrSchemaMismatch, entity, e.Key)
	}

	for _, field := range e.Filters.Names() {
		if _, handled := e.Handlers[field]; handled {
			continue
		}
		schema := e.Filters[field]
		column := rules.ColumnName(field, schema)
		dataType, ok := cols[column]
		if !ok {
			return fmt.Errorf("%w: %q field %q: missing column %q", rules.ErrSchemaMismatch, entity, field, column)
		}
		if !typeCompatible(schema.Type, dataType) {
			return fmt.Errorf("%w: %q field %q: column %q has type %s, not usable as %s",
				rules.ErrSchemaMismatch, entity, field, column, dataType, schema.Type)
		}
	}
	return nil
}

func (s *MSSQLStore) tableExists(ctx context.Context, table string) (bool, error) {
	query := fmt.Sprintf("SELECT CASE WHEN OBJECT_ID(N'%s', N'U') IS NULL THEN 0 ELSE 1 END",
		escapeSQLString(qualifiedTable(s.opts.Schema, table)))

	var exists int
	if err := s.db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists == 1, nil
}

func (s *MSSQLStore) readColumns(ctx context.Context, table string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
	`, s.opts.Schema, table)
	if err != nil {
		return nil, fmt.Errorf("read schema columns: %w", err)
	}
	defer rows.Close()

	cols := map[string]string{}
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("scan schema columns: %w", err)
		}
		cols[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema columns: %w", err)
	}
	return cols, nil
}
