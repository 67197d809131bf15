package config

import (
	"fmt"
	"strings"
)

// Config represents the complete application configuration
type Config struct {
	Limits   LimitsConfig   `mapstructure:"limits"`
	SQL      SQLConfig      `mapstructure:"sql"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LimitsConfig bounds the size of accepted rule trees
type LimitsConfig struct {
	MaxDepth  int `mapstructure:"max_depth"`  // Deepest group nesting, top-level group is 1
	MaxRules  int `mapstructure:"max_rules"`  // Groups plus rules in one tree
	MaxValues int `mapstructure:"max_values"` // Values of a single in/not_in rule
}

// SQLConfig controls predicate rendering
type SQLConfig struct {
	Dialect     string `mapstructure:"dialect"`      // postgres or mssql
	ParamPrefix string `mapstructure:"param_prefix"` // Parameters are named <prefix>1, <prefix>2, ...
}

// DatabaseConfig locates the store rules are executed against
type DatabaseConfig struct {
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"` // Empty selects public on Postgres and dbo on SQL Server
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json or console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr or a file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Limits: LimitsConfig{
			MaxDepth:  8,
			MaxRules:  200,
			MaxValues: 100,
		},
		SQL: SQLConfig{
			Dialect:     "postgres",
			ParamPrefix: "p",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stderr",
		},
	}
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Limits.MaxDepth <= 0 {
		return fmt.Errorf("limits.max_depth must be positive, got %d", c.Limits.MaxDepth)
	}
	if c.Limits.MaxRules <= 0 {
		return fmt.Errorf("limits.max_rules must be positive, got %d", c.Limits.MaxRules)
	}
	if c.Limits.MaxValues <= 0 {
		return fmt.Errorf("limits.max_values must be positive, got %d", c.Limits.MaxValues)
	}

	switch strings.ToLower(c.SQL.Dialect) {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("sql.dialect must be postgres or mssql, got %q", c.SQL.Dialect)
	}
	if c.SQL.ParamPrefix == "" {
		return fmt.Errorf("sql.param_prefix is empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
