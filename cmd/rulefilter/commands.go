package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/spf13/cobra"

	"github.com/gabisonia/go-rulefilter/rules"
	"github.com/gabisonia/go-rulefilter/stores/memory"
	"github.com/gabisonia/go-rulefilter/stores/mssql"
	"github.com/gabisonia/go-rulefilter/stores/postgres"
)

func (a *app) validateCmd() *cobra.Command {
	var entity, rulesPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a rule tree and print it with coerced values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := a.validated(cmd, entity, rulesPath)
			if err != nil {
				return reject(cmd.OutOrStdout(), err)
			}
			return writeJSON(cmd.OutOrStdout(), group.Raw())
		},
	}
	entityFlag(cmd, &entity)
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "-", "rule tree JSON file, - for stdin")
	requireFlags(cmd, "entity")
	return cmd
}

type clauseOutput struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params"`
}

func (a *app) buildCmd() *cobra.Command {
	var entity, rulesPath string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render a rule tree as a parameterized SQL predicate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readRules(cmd.InOrStdin(), rulesPath)
			if err != nil {
				return err
			}
			clause, err := a.engine.ParseAndBuild(entity, data)
			if err != nil {
				return reject(cmd.OutOrStdout(), err)
			}
			return writeJSON(cmd.OutOrStdout(), clauseOutput{SQL: clause.SQL, Params: clause.Params})
		},
	}
	entityFlag(cmd, &entity)
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "-", "rule tree JSON file, - for stdin")
	requireFlags(cmd, "entity")
	return cmd
}

type countOutput struct {
	Entity string   `json:"entity"`
	Count  int64    `json:"count"`
	IDs    []string `json:"ids,omitempty"`
}

func (a *app) countCmd() *cobra.Command {
	var (
		entity, rulesPath string
		limit             int
		verify            bool
		timeout           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the records of an entity matching a rule tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := a.validated(cmd, entity, rulesPath)
			if err != nil {
				return reject(cmd.OutOrStdout(), err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if verify {
				if err := store.VerifyEntity(ctx, entity); err != nil {
					return err
				}
			}

			started := time.Now()
			out := countOutput{Entity: entity}
			if out.Count, err = store.Count(ctx, entity, group); err != nil {
				return err
			}
			if limit > 0 {
				if out.IDs, err = store.IDs(ctx, entity, group, limit); err != nil {
					return err
				}
			}
			a.log.Info("rules executed", "entity", entity, "dialect", a.engine.Dialect().Name(),
				"count", out.Count, "duration", time.Since(started))
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	entityFlag(cmd, &entity)
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "-", "rule tree JSON file, - for stdin")
	cmd.Flags().IntVar(&limit, "limit", 0, "also print up to limit matching ids")
	cmd.Flags().BoolVar(&verify, "verify", false, "check the entity table against its schema first")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "query timeout")
	requireFlags(cmd, "entity")
	return cmd
}

// sqlStore is implemented by the Postgres and SQL Server stores.
type sqlStore interface {
	rules.Store
	VerifyEntity(ctx context.Context, entity string) error
}

func (a *app) openStore(ctx context.Context) (sqlStore, func(), error) {
	dsn := a.cfg.Database.DSN
	if dsn == "" {
		return nil, nil, errors.New("database.dsn is not configured; pass --dsn or set RULEFILTER_DATABASE_DSN")
	}

	switch a.engine.Dialect() {
	case rules.MSSQL:
		db, err := sql.Open("sqlserver", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sql server: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping sql server: %w", err)
		}
		store, err := mssql.NewStore(db, a.registry, mssql.StoreOptions{
			Schema:      a.cfg.Database.Schema,
			ParamPrefix: a.cfg.SQL.ParamPrefix,
		})
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	default:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store, err := postgres.NewStore(pool, a.registry, postgres.StoreOptions{
			Schema:      a.cfg.Database.Schema,
			ParamPrefix: a.cfg.SQL.ParamPrefix,
		})
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}
}

func (a *app) matchCmd() *cobra.Command {
	var (
		entity, rulesPath, recordsPath string
		limit                          int
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Evaluate a rule tree against a JSON array of records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := a.validated(cmd, entity, rulesPath)
			if err != nil {
				return reject(cmd.OutOrStdout(), err)
			}

			store, err := memory.NewStore(a.registry, memory.StoreOptions{Matchers: memory.SchemaMatchers()})
			if err != nil {
				return err
			}
			f, err := os.Open(recordsPath)
			if err != nil {
				return fmt.Errorf("open records: %w", err)
			}
			defer f.Close()
			if _, err := store.LoadJSON(cmd.Context(), entity, f); err != nil {
				return err
			}

			out := countOutput{Entity: entity}
			if out.Count, err = store.Count(cmd.Context(), entity, group); err != nil {
				return err
			}
			if out.IDs, err = store.IDs(cmd.Context(), entity, group, limit); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	entityFlag(cmd, &entity)
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "-", "rule tree JSON file, - for stdin")
	cmd.Flags().StringVar(&recordsPath, "records", "", "JSON file holding an array of records")
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum ids to print")
	requireFlags(cmd, "entity", "records")
	return cmd
}

type fieldOutput struct {
	Name      string           `json:"name"`
	Type      rules.FilterType `json:"type"`
	Nullable  bool             `json:"nullable,omitempty"`
	Options   []string         `json:"options,omitempty"`
	Custom    bool             `json:"custom,omitempty"`
	Operators []rules.Operator `json:"operators"`
}

func (a *app) fieldsCmd() *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List entities, or the filterable fields of one entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if entity == "" {
				return writeJSON(cmd.OutOrStdout(), a.registry.Entities())
			}
			def, ok := a.registry.Entity(entity)
			if !ok {
				return fmt.Errorf("%w: %q", rules.ErrUnknownEntity, entity)
			}
			out := make([]fieldOutput, 0, len(def.Filters))
			for _, name := range def.Filters.Names() {
				schema := def.Filters[name]
				ops := rules.OperatorsFor(schema.Type).Names()
				if !schema.Nullable {
					ops = withoutEmptyChecks(ops)
				}
				_, custom := def.Handlers[name]
				out = append(out, fieldOutput{
					Name:      name,
					Type:      schema.Type,
					Nullable:  schema.Nullable,
					Options:   schema.Options,
					Custom:    custom,
					Operators: ops,
				})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	entityFlag(cmd, &entity)
	return cmd
}

func withoutEmptyChecks(ops []rules.Operator) []rules.Operator {
	out := ops[:0]
	for _, op := range ops {
		if !op.IsEmptyCheck() {
			out = append(out, op)
		}
	}
	return out
}
