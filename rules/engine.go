package rules

import (
	"errors"
	"time"

	"github.com/gabisonia/go-rulefilter/internal/logging"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	Limits  Limits
	Builder BuilderOptions
	Logger  *logging.Logger
	// Clock resolves relative dates; time.Now when nil.
	Clock func() time.Time
}

// DefaultEngineOptions returns default limits, Postgres rendering and no logging.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Limits:  DefaultLimits(),
		Builder: DefaultBuilderOptions(),
	}
}

// Engine validates untrusted rule trees and renders them in one step.
type Engine struct {
	registry  *Registry
	validator *Validator
	builder   *Builder
	log       *logging.Logger
}

// NewEngine creates an engine over registry.
func NewEngine(registry *Registry, opts EngineOptions) (*Engine, error) {
	validator, err := NewValidator(registry, opts.Limits)
	if err != nil {
		return nil, err
	}
	if opts.Clock != nil {
		validator = validator.WithClock(opts.Clock)
	}
	builder, err := NewBuilder(registry, opts.Builder)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		registry:  registry,
		validator: validator,
		builder:   builder,
		log:       log.With("component", "rules", "dialect", builder.Dialect().Name()),
	}, nil
}

// Registry returns the schemas the engine validates against.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Dialect returns the dialect clauses are rendered in.
func (e *Engine) Dialect() Dialect {
	return e.builder.Dialect()
}

// Limits returns the limits enforced on every tree.
func (e *Engine) Limits() Limits {
	return e.validator.Limits()
}

// Validate checks group against the schema of entity.
func (e *Engine) Validate(entity string, group RuleGroup) (ValidatedRuleGroup, error) {
	validated, err := e.validator.ValidateGroup(entity, group)
	if err != nil {
		e.report(entity, "validate", err)
		return ValidatedRuleGroup{}, err
	}
	return validated, nil
}

// Build renders an already validated tree.
func (e *Engine) Build(entity string, node ValidatedNode) (Clause, error) {
	clause, err := e.builder.Build(entity, node)
	if err != nil {
		e.report(entity, "build", err)
		return Clause{}, err
	}
	e.log.Debug("clause built", "entity", entity, "params", len(clause.Params))
	return clause, nil
}

// ValidateAndBuild validates group and renders it qualified with the entity alias.
func (e *Engine) ValidateAndBuild(entity string, group RuleGroup) (Clause, error) {
	validated, err := e.Validate(entity, group)
	if err != nil {
		return Clause{}, err
	}
	return e.Build(entity, validated)
}

// ParseAndValidate decodes a JSON rule group and validates it.
func (e *Engine) ParseAndValidate(entity string, data []byte) (ValidatedRuleGroup, error) {
	group, err := ParseRuleGroup(data, e.validator.Limits().MaxDepth)
	if err != nil {
		e.report(entity, "parse", err)
		return ValidatedRuleGroup{}, err
	}
	return e.Validate(entity, group)
}

// ParseAndBuild decodes a JSON rule group and renders it.
func (e *Engine) ParseAndBuild(entity string, data []byte) (Clause, error) {
	validated, err := e.ParseAndValidate(entity, data)
	if err != nil {
		return Clause{}, err
	}
	return e.Build(entity, validated)
}

func (e *Engine) report(entity, stage string, err error) {
	var invalid *InvalidRuleError
	if errors.As(err, &invalid) {
		e.log.Debug("rule rejected", "entity", entity, "stage", stage, "reason", invalid.Reason, "error", err)
		return
	}
	e.log.Error("rule engine contract violated", "entity", entity, "stage", stage, "error", err)
}
