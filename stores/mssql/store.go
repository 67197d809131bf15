package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gabisonia/go-rulefilter/rules"
)

// StoreOptions configures MSSQLStore behavior.
type StoreOptions struct {
	Schema string
	// ParamPrefix names the parameters of rendered clauses.
	ParamPrefix string
}

// DefaultStoreOptions returns production-safe defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		Schema:      "dbo",
		ParamPrefix: "p",
	}
}

// MSSQLStore implements rules.Store using database/sql. Array fields are
// expected to hold JSON arrays of strings.
type MSSQLStore struct {
	db       *sql.DB
	registry *rules.Registry
	builder  *rules.Builder
	opts     StoreOptions
}

var _ rules.Store = (*MSSQLStore)(nil)

// NewStore creates a SQL Server-backed rule store.
func NewStore(db *sql.DB, registry *rules.Registry, opts StoreOptions) (*MSSQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil sql db")
	}

	normalized := opts.withDefaults()
	if err := normalized.validate(); err != nil {
		return nil, err
	}
	builder, err := rules.NewBuilder(registry, rules.BuilderOptions{
		Dialect:     rules.MSSQL,
		ParamPrefix: normalized.ParamPrefix,
	})
	if err != nil {
		return nil, err
	}

	return &MSSQLStore{db: db, registry: registry, builder: builder, opts: normalized}, nil
}

// Count returns the number of records of entity matching group.
func (s *MSSQLStore) Count(ctx context.Context, entity string, group rules.ValidatedRuleGroup) (int64, error) {
	plan, err := s.countPlan(entity, group)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, plan.query, plan.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return count, nil
}

// IDs returns the keys of up to limit matching records ordered by key.
func (s *MSSQLStore) IDs(ctx context.Context, entity string, group rules.ValidatedRuleGroup, limit int) ([]string, error) {
	plan, err := s.idsPlan(entity, group, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, plan.query, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("select %s ids: %w", entity, err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s ids: %w", entity, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s ids: %w", entity, err)
	}
	return ids, nil
}

func (s StoreOptions) withDefaults() StoreOptions {
	if strings.TrimSpace(s.Schema) == "" {
		s.Schema = "dbo"
	}
	if strings.TrimSpace(s.ParamPrefix) == "" {
		s.ParamPrefix = "p"
	}
	return s
}

func (s StoreOptions) validate() error {
	if strings.TrimSpace(s.Schema) == "" {
		return fmt.Errorf("%w: schema is empty", rules.ErrSchemaMismatch)
	}
	if s.ParamPrefix == limitParam {
		return fmt.Errorf("parameter prefix %q is reserved", s.ParamPrefix)
	}
	return nil
}
