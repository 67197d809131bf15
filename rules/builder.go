package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"
)

var paramPrefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Clause is a parameterized predicate fragment. SQL does not include the
// WHERE keyword; Params maps every placeholder name in SQL to its value.
type Clause struct {
	SQL    string
	Params map[string]any
}

// BuilderOptions configures clause building.
type BuilderOptions struct {
	Dialect Dialect
	// ParamPrefix names parameters ParamPrefix1, ParamPrefix2, ...
	ParamPrefix string
}

// DefaultBuilderOptions returns Postgres rendering with parameters p1, p2, ...
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{Dialect: Postgres, ParamPrefix: "p"}
}

func (o BuilderOptions) withDefaults() BuilderOptions {
	if o.Dialect == nil {
		o.Dialect = Postgres
	}
	if o.ParamPrefix == "" {
		o.ParamPrefix = "p"
	}
	return o
}

// Builder turns validated rule trees into parameterized predicates, using the
// filter handler registered for a field when there is one and the default
// builder of the field's type otherwise.
type Builder struct {
	registry    *Registry
	dialect     Dialect
	paramPrefix string
}

// NewBuilder creates a clause builder over registry.
func NewBuilder(registry *Registry, opts BuilderOptions) (*Builder, error) {
	if registry == nil {
		return nil, &ContractViolationError{Err: fmt.Errorf("nil registry")}
	}
	opts = opts.withDefaults()
	if !paramPrefixPattern.MatchString(opts.ParamPrefix) {
		return nil, &ContractViolationError{Err: fmt.Errorf("parameter prefix %q is not an identifier", opts.ParamPrefix)}
	}
	return &Builder{registry: registry, dialect: opts.Dialect, paramPrefix: opts.ParamPrefix}, nil
}

// Dialect returns the dialect fragments are rendered in.
func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// Build renders node for entity, qualifying columns with the entity alias.
// node must come from a Validator; building unvalidated input is a
// programming error.
func (b *Builder) Build(entity string, node ValidatedNode) (Clause, error) {
	e, ok := b.registry.entities[entity]
	if !ok {
		return Clause{}, &ContractViolationError{Entity: entity, Err: ErrUnknownEntity}
	}
	return b.build(e, e.Alias, node)
}

// BuildWithPrefix is Build with an explicit column qualifier; an empty prefix
// leaves columns unqualified.
func (b *Builder) BuildWithPrefix(entity, fieldPrefix string, node ValidatedNode) (Clause, error) {
	e, ok := b.registry.entities[entity]
	if !ok {
		return Clause{}, &ContractViolationError{Entity: entity, Err: ErrUnknownEntity}
	}
	return b.build(e, fieldPrefix, node)
}

func (b *Builder) build(entity Entity, prefix string, node ValidatedNode) (Clause, error) {
	c := &clauseBuilder{
		dialect:     b.dialect,
		entity:      entity,
		prefix:      prefix,
		paramPrefix: b.paramPrefix,
		params:      make(map[string]any),
	}
	sql, err := c.build(node)
	if err != nil {
		return Clause{}, err
	}
	return Clause{SQL: sql, Params: c.params}, nil
}

// clauseBuilder carries the state of one top-level Build call. Parameter
// names come from a counter so a field used by several rules never collides.
type clauseBuilder struct {
	dialect     Dialect
	entity      Entity
	prefix      string
	paramPrefix string
	params      map[string]any
	next        int
}

func (c *clauseBuilder) build(node ValidatedNode) (string, error) {
	switch n := node.(type) {
	case ValidatedRuleGroup:
		return c.buildGroup(n)
	case ValidatedRule:
		return c.buildRule(n)
	case nil:
		return "", contractViolation(c.entity.Name, "", "nil node in validated tree")
	default:
		return "", contractViolation(c.entity.Name, "", "unsupported node type %T", node)
	}
}

func (c *clauseBuilder) buildGroup(g ValidatedRuleGroup) (string, error) {
	if err := g.Condition.Validate(); err != nil {
		return "", &ContractViolationError{Entity: c.entity.Name, Err: err}
	}
	if len(g.Rules) == 0 {
		// identity of the connective
		if g.Condition == ConditionAnd {
			return "(1=1)", nil
		}
		return "(1=0)", nil
	}

	parts := make([]string, 0, len(g.Rules))
	for _, child := range g.Rules {
		sql, err := c.build(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, fmt.Sprintf(" %s ", g.Condition))), nil
}

func (c *clauseBuilder) buildRule(r ValidatedRule) (string, error) {
	if handler, ok := c.entity.Handlers[r.Field]; ok {
		return c.runHandler(handler, r)
	}
	return c.compare(c.column(c.prefix, r.Field), r)
}

func (c *clauseBuilder) newParam() string {
	c.next++
	return fmt.Sprintf("%s%d", c.paramPrefix, c.next)
}

func (c *clauseBuilder) bind(v any) string {
	name := c.newParam()
	c.params[name] = v
	return placeholder(name)
}

func (c *clauseBuilder) bindAll(values []any) []string {
	phs := make([]string, 0, len(values))
	for _, v := range values {
		phs = append(phs, c.bind(v))
	}
	return phs
}

// ColumnName returns the storage column of field: the schema's Column
// override, or the snake_case field name.
func ColumnName(field string, schema FieldSchema) string {
	if schema.Column != "" {
		return schema.Column
	}
	return strcase.ToSnake(field)
}

func (c *clauseBuilder) column(prefix, field string) string {
	name := ColumnName(field, c.entity.Filters[field])
	if prefix == "" {
		return c.dialect.QuoteIdent(name)
	}
	return c.dialect.QuoteIdent(prefix) + "." + c.dialect.QuoteIdent(name)
}

type compareFunc func(c *clauseBuilder, column string, r ValidatedRule) (string, error)

var defaultBuilders = map[FilterType]compareFunc{
	TypeText:    compareText,
	TypeDate:    compareScalar,
	TypeNumber:  compareScalar,
	TypeBoolean: compareScalar,
	TypeEnum:    compareScalar,
	TypeArray:   compareArray,
}

// compare renders the default predicate of r against a column expression.
func (c *clauseBuilder) compare(column string, r ValidatedRule) (string, error) {
	fn, ok := defaultBuilders[r.Type]
	if !ok {
		return "", contractViolation(c.entity.Name, r.Field, "no default builder for type %q", r.Type)
	}
	arity, ok := lookupOperator(r.Type, r.Operator)
	if !ok || !arity.Accepts(len(r.Value)) {
		return "", contractViolation(c.entity.Name, r.Field, "rule %s with %d values was not validated", r.Operator, len(r.Value))
	}
	return fn(c, column, r)
}

func compareScalar(c *clauseBuilder, column string, r ValidatedRule) (string, error) {
	switch r.Operator {
	case OpEqual:
		return fmt.Sprintf("(%s = %s)", column, c.bind(r.Value[0])), nil
	case OpNotEqual:
		return orNull(r, fmt.Sprintf("%s <> %s", column, c.bind(r.Value[0])), column), nil
	case OpLessThan:
		return fmt.Sprintf("(%s < %s)", column, c.bind(r.Value[0])), nil
	case OpLessOrEqual:
		return fmt.Sprintf("(%s <= %s)", column, c.bind(r.Value[0])), nil
	case OpGreaterThan:
		return fmt.Sprintf("(%s > %s)", column, c.bind(r.Value[0])), nil
	case OpGreaterOrEqual:
		return fmt.Sprintf("(%s >= %s)", column, c.bind(r.Value[0])), nil
	case OpBetween:
		lo := c.bind(r.Value[0])
		hi := c.bind(r.Value[1])
		return fmt.Sprintf("(%s BETWEEN %s AND %s)", column, lo, hi), nil
	case OpNotBetween:
		lo := c.bind(r.Value[0])
		hi := c.bind(r.Value[1])
		return orNull(r, fmt.Sprintf("%s NOT BETWEEN %s AND %s", column, lo, hi), column), nil
	case OpIn:
		return fmt.Sprintf("(%s IN (%s))", column, strings.Join(c.bindAll(r.Value), ", ")), nil
	case OpNotIn:
		return orNull(r, fmt.Sprintf("%s NOT IN (%s)", column, strings.Join(c.bindAll(r.Value), ", ")), column), nil
	case OpIsEmpty:
		return fmt.Sprintf("(%s IS NULL)", column), nil
	case OpIsNotEmpty:
		return fmt.Sprintf("(%s IS NOT NULL)", column), nil
	default:
		return "", contractViolation(c.entity.Name, r.Field, "operator %q has no %s builder", r.Operator, r.Type)
	}
}

func compareText(c *clauseBuilder, column string, r ValidatedRule) (string, error) {
	switch r.Operator {
	case OpBeginsWith, OpEndsWith, OpContains:
		return fmt.Sprintf("(%s)", c.dialect.Like(column, c.bind(likePattern(r.Operator, r.Value[0])))), nil
	case OpNotBeginsWith, OpNotEndsWith, OpNotContains:
		positive, _ := r.Operator.Positive()
		like := c.dialect.Like(column, c.bind(likePattern(positive, r.Value[0])))
		return orNull(r, fmt.Sprintf("NOT (%s)", like), column), nil
	case OpIsEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", column, column), nil
	case OpIsNotEmpty:
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", column, column), nil
	default:
		return compareScalar(c, column, r)
	}
}

func compareArray(c *clauseBuilder, column string, r ValidatedRule) (string, error) {
	switch r.Operator {
	case OpContains:
		return fmt.Sprintf("(%s)", c.dialect.ArrayContains(column, c.bind(r.Value[0]))), nil
	case OpNotContains:
		return orNull(r, fmt.Sprintf("NOT (%s)", c.dialect.ArrayContains(column, c.bind(r.Value[0]))), column), nil
	case OpIn:
		return fmt.Sprintf("(%s)", c.dialect.ArrayOverlaps(column, c.bindAll(r.Value))), nil
	case OpNotIn:
		return orNull(r, fmt.Sprintf("NOT (%s)", c.dialect.ArrayOverlaps(column, c.bindAll(r.Value))), column), nil
	case OpIsEmpty:
		return c.dialect.ArrayEmpty(column), nil
	case OpIsNotEmpty:
		return fmt.Sprintf("(NOT %s)", c.dialect.ArrayEmpty(column)), nil
	default:
		return "", contractViolation(c.entity.Name, r.Field, "operator %q has no %s builder", r.Operator, r.Type)
	}
}

// orNull makes a negative comparison on a nullable field match NULL as well.
func orNull(r ValidatedRule, expr, column string) string {
	if !r.Nullable {
		return "(" + expr + ")"
	}
	return fmt.Sprintf("(%s OR %s IS NULL)", expr, column)
}

func likePattern(op Operator, v any) string {
	s := escapeLike(fmt.Sprint(v))
	switch op {
	case OpBeginsWith:
		return s + "%"
	case OpEndsWith:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}
