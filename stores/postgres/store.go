package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gabisonia/go-rulefilter/rules"
)

// StoreOptions configures PostgresStore behavior.
type StoreOptions struct {
	Schema string
	// ParamPrefix names the parameters of rendered clauses.
	ParamPrefix string
}

// DefaultStoreOptions returns production-safe defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		Schema:      "public",
		ParamPrefix: "p",
	}
}

// PostgresStore implements rules.Store using pgxpool. Entity tables live in
// Schema; tables referenced by filter handlers resolve through search_path.
type PostgresStore struct {
	pool     *pgxpool.Pool
	registry *rules.Registry
	builder  *rules.Builder
	opts     StoreOptions
}

var _ rules.Store = (*PostgresStore)(nil)

// NewStore creates a Postgres-backed rule store.
func NewStore(pool *pgxpool.Pool, registry *rules.Registry, opts StoreOptions) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("nil pgx pool")
	}
	normalized := opts.withDefaults()
	if err := normalized.validate(); err != nil {
		return nil, err
	}
	builder, err := rules.NewBuilder(registry, rules.BuilderOptions{
		Dialect:     rules.Postgres,
		ParamPrefix: normalized.ParamPrefix,
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, registry: registry, builder: builder, opts: normalized}, nil
}

// Count returns the number of records of entity matching group.
func (s *PostgresStore) Count(ctx context.Context, entity string, group rules.ValidatedRuleGroup) (int64, error) {
	plan, err := s.countPlan(entity, group)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.pool.QueryRow(ctx, plan.query, plan.args).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return count, nil
}

// IDs returns the keys of up to limit matching records ordered by key.
func (s *PostgresStore) IDs(ctx context.Context, entity string, group rules.ValidatedRuleGroup, limit int) ([]string, error) {
	plan, err := s.idsPlan(entity, group, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, plan.query, plan.args)
	if err != nil {
		return nil, fmt.Errorf("select %s ids: %w", entity, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s ids: %w", entity, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (o StoreOptions) withDefaults() StoreOptions {
	if strings.TrimSpace(o.Schema) == "" {
		o.Schema = "public"
	}
	if strings.TrimSpace(o.ParamPrefix) == "" {
		o.ParamPrefix = "p"
	}
	return o
}

func (o StoreOptions) validate() error {
	if strings.TrimSpace(o.Schema) == "" {
		return fmt.Errorf("%w: schema is empty", rules.ErrSchemaMismatch)
	}
	if o.ParamPrefix == limitParam {
		return fmt.Errorf("parameter prefix %q is reserved", o.ParamPrefix)
	}
	return nil
}
