package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gabisonia/go-rulefilter/internal/config"
	"github.com/gabisonia/go-rulefilter/internal/logging"
	"github.com/gabisonia/go-rulefilter/rules"
	"github.com/gabisonia/go-rulefilter/rules/schemas"
)

// errRejected is returned after an invalid-rule error object was printed.
var errRejected = errors.New("rule rejected")

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"dialect":      "sql.dialect",
	"param-prefix": "sql.param_prefix",
	"dsn":          "database.dsn",
	"schema":       "database.schema",
	"max-depth":    "limits.max_depth",
	"max-rules":    "limits.max_rules",
	"max-values":   "limits.max_values",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
}

type app struct {
	v       *viper.Viper
	cfgFile string

	cfg      *config.Config
	log      *logging.Logger
	registry *rules.Registry
	engine   *rules.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "rulefilter",
		Short:         "Validate filter rule trees and render them as SQL predicates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./rulefilter.yaml)")
	flags.String("dialect", "", "SQL dialect: postgres or mssql")
	flags.String("param-prefix", "", "parameter name prefix")
	flags.String("dsn", "", "database connection string")
	flags.String("schema", "", "database schema holding the entity tables")
	flags.Int("max-depth", 0, "deepest accepted group nesting")
	flags.Int("max-rules", 0, "maximum groups plus rules in one tree")
	flags.Int("max-values", 0, "maximum values of a list operator")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or console")

	flags.VisitAll(func(flag *pflag.Flag) {
		if key, ok := flagKeys[flag.Name]; ok {
			_ = a.v.BindPFlag(key, flag)
		}
	})

	root.AddCommand(
		a.validateCmd(),
		a.buildCmd(),
		a.countCmd(),
		a.matchCmd(),
		a.fieldsCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadWith(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	dialect, err := rules.DialectByName(cfg.SQL.Dialect)
	if err != nil {
		return err
	}
	registry, err := schemas.Default()
	if err != nil {
		return err
	}
	engine, err := rules.NewEngine(registry, rules.EngineOptions{
		Limits: rules.Limits{
			MaxDepth:  cfg.Limits.MaxDepth,
			MaxRules:  cfg.Limits.MaxRules,
			MaxValues: cfg.Limits.MaxValues,
		},
		Builder: rules.BuilderOptions{Dialect: dialect, ParamPrefix: cfg.SQL.ParamPrefix},
		Logger:  log,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log.With("cmd", "rulefilter")
	a.registry = registry
	a.engine = engine
	return nil
}

// readRules reads a rule tree from path, or from in when path is "-".
func readRules(in io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(in)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return data, nil
}

// validated parses and validates the rule tree named by the --rules flag.
func (a *app) validated(cmd *cobra.Command, entity, path string) (rules.ValidatedRuleGroup, error) {
	data, err := readRules(cmd.InOrStdin(), path)
	if err != nil {
		return rules.ValidatedRuleGroup{}, err
	}
	return a.engine.ParseAndValidate(entity, data)
}

// reject prints an invalid-rule error object and converts it to errRejected.
func reject(out io.Writer, err error) error {
	var invalid *rules.InvalidRuleError
	if !errors.As(err, &invalid) {
		return err
	}
	if werr := writeJSON(out, invalid); werr != nil {
		return werr
	}
	return errRejected
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = cmd.MarkFlagRequired(name)
	}
}

func entityFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "entity", "e", "", "entity the rules filter, e.g. "+schemas.Contacts)
}
