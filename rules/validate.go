package rules

import (
	"fmt"
	"time"
)

// Limits bounds the work a single rule tree may cause.
type Limits struct {
	// MaxDepth is the deepest group nesting accepted; the top-level group is depth 1.
	MaxDepth int
	// MaxRules caps the total number of groups and rules in one tree.
	MaxRules int
	// MaxValues caps the values of list operators such as in.
	MaxValues int
}

// DefaultLimits returns limits suitable for trees built in an admin UI.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 8, MaxRules: 200, MaxValues: 100}
}

func (l Limits) Validate() error {
	if l.MaxDepth <= 0 || l.MaxRules <= 0 || l.MaxValues <= 0 {
		return &ContractViolationError{Err: fmt.Errorf("limits must be positive, got %+v", l)}
	}
	return nil
}

// Validator checks untrusted rule trees against the entity schemas of a
// Registry. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	registry *Registry
	limits   Limits
	now      func() time.Time
}

// NewValidator creates a validator enforcing limits.
func NewValidator(registry *Registry, limits Limits) (*Validator, error) {
	if registry == nil {
		return nil, &ContractViolationError{Err: fmt.Errorf("nil registry")}
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Validator{registry: registry, limits: limits, now: time.Now}, nil
}

// WithClock returns a copy of the validator resolving relative dates against now.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	cp := *v
	cp.now = now
	return &cp
}

// Limits returns the limits the validator enforces.
func (v *Validator) Limits() Limits {
	return v.limits
}

// Validate checks node against the schema of entity. It stops at the first
// problem, walking depth first and left to right, and never returns a partial
// tree. User errors are *InvalidRuleError; an unknown entity is a
// *ContractViolationError.
func (v *Validator) Validate(entity string, node Node) (ValidatedNode, error) {
	w, err := v.start(entity)
	if err != nil {
		return nil, err
	}
	return w.node(node, 1)
}

// ValidateGroup is Validate for a top-level group.
func (v *Validator) ValidateGroup(entity string, group RuleGroup) (ValidatedRuleGroup, error) {
	w, err := v.start(entity)
	if err != nil {
		return ValidatedRuleGroup{}, err
	}
	return w.group(group, 1)
}

// ValidateRule is Validate for a single leaf rule.
func (v *Validator) ValidateRule(entity string, rule Rule) (ValidatedRule, error) {
	w, err := v.start(entity)
	if err != nil {
		return ValidatedRule{}, err
	}
	return w.rule(rule)
}

func (v *Validator) start(entity string) (*validation, error) {
	e, ok := v.registry.entities[entity]
	if !ok {
		return nil, &ContractViolationError{Entity: entity, Err: ErrUnknownEntity}
	}
	return &validation{entity: e, limits: v.limits, now: v.now()}, nil
}

type validation struct {
	entity Entity
	limits Limits
	now    time.Time
	nodes  int
}

func (w *validation) node(n Node, depth int) (ValidatedNode, error) {
	switch node := n.(type) {
	case RuleGroup:
		return w.group(node, depth)
	case *RuleGroup:
		if node == nil {
			return nil, newInvalidRule(nil, ReasonMalformed, "nil rule group")
		}
		return w.group(*node, depth)
	case Rule:
		return w.rule(node)
	case *Rule:
		if node == nil {
			return nil, newInvalidRule(nil, ReasonMalformed, "nil rule")
		}
		return w.rule(*node)
	default:
		return nil, newInvalidRule(nil, ReasonMalformed, "unsupported node %T", n)
	}
}

func (w *validation) group(g RuleGroup, depth int) (ValidatedRuleGroup, error) {
	if depth > w.limits.MaxDepth {
		return ValidatedRuleGroup{}, newInvalidRule(nil, ReasonMaxDepthExceeded, "depth %d exceeds %d", depth, w.limits.MaxDepth)
	}
	if w.nodes+1+len(g.Rules) > w.limits.MaxRules {
		return ValidatedRuleGroup{}, newInvalidRule(nil, ReasonTooManyRules, "more than %d rules", w.limits.MaxRules)
	}
	w.nodes++
	if msg := checkShape(g); msg != "" {
		return ValidatedRuleGroup{}, newInvalidRule(nil, ReasonInvalidCondition, "%s", msg)
	}

	out := ValidatedRuleGroup{Condition: g.Condition, Rules: make([]ValidatedNode, 0, len(g.Rules))}
	for _, child := range g.Rules {
		validated, err := w.node(child, depth+1)
		if err != nil {
			return ValidatedRuleGroup{}, err
		}
		out.Rules = append(out.Rules, validated)
	}
	return out, nil
}

func (w *validation) rule(raw Rule) (ValidatedRule, error) {
	if w.nodes+1 > w.limits.MaxRules {
		return ValidatedRule{}, newInvalidRule(&raw, ReasonTooManyRules, "more than %d rules", w.limits.MaxRules)
	}
	w.nodes++

	rule := NormalizeRule(raw)
	if msg := checkShape(rule); msg != "" {
		return ValidatedRule{}, newInvalidRule(&raw, ReasonMalformed, "%s", msg)
	}

	schema, ok := w.entity.Filters[rule.Field]
	if !ok {
		return ValidatedRule{}, newInvalidRule(&raw, ReasonUnknownField, "%q", rule.Field)
	}

	arity, ok := lookupOperator(schema.Type, rule.Operator)
	if !ok {
		return ValidatedRule{}, newInvalidRule(&raw, ReasonInvalidOperator, "%q on %s field %q", rule.Operator, schema.Type, rule.Field)
	}
	if !arity.Accepts(len(rule.Value)) {
		return ValidatedRule{}, newInvalidRule(&raw, ReasonWrongArity, "%s takes %s, got %d", rule.Operator, arity, len(rule.Value))
	}
	if len(rule.Value) > w.limits.MaxValues {
		return ValidatedRule{}, newInvalidRule(&raw, ReasonWrongArity, "%s takes at most %d values, got %d", rule.Operator, w.limits.MaxValues, len(rule.Value))
	}

	values := make([]any, len(rule.Value))
	for i, rv := range rule.Value {
		coerced, err := coerceValue(schema, rv, w.now)
		if err != nil {
			return ValidatedRule{}, newInvalidRule(&raw, ReasonWrongType, "value[%d]: %v", i, err)
		}
		if len(schema.Options) > 0 && !schema.hasOption(coerced.(string)) {
			return ValidatedRule{}, newInvalidRule(&raw, ReasonNotInOptions, "value[%d] %q is not one of %q", i, coerced, schema.Options)
		}
		values[i] = coerced
	}

	if rule.Operator == OpBetween || rule.Operator == OpNotBetween {
		cmp, ok := compareCoerced(values[0], values[1])
		if !ok {
			return ValidatedRule{}, newInvalidRule(&raw, ReasonWrongType, "%s values are not orderable", rule.Operator)
		}
		if cmp > 0 {
			return ValidatedRule{}, newInvalidRule(&raw, ReasonBetweenOrder, "%v is greater than %v", rule.Value[0], rule.Value[1])
		}
	}

	if rule.Operator.IsEmptyCheck() && !schema.Nullable {
		return ValidatedRule{}, newInvalidRule(&raw, ReasonRequiresNullable, "%q is not nullable", rule.Field)
	}

	return ValidatedRule{
		Type:     schema.Type,
		Field:    rule.Field,
		Nullable: schema.Nullable,
		Operator: rule.Operator,
		Value:    values,
	}, nil
}

// Raw re-expresses the rule in wire form; dates become RFC 3339 strings.
func (r ValidatedRule) Raw() Rule {
	values := make([]any, len(r.Value))
	for i, v := range r.Value {
		values[i] = rawValue(v)
	}
	return Rule{Field: r.Field, Operator: r.Operator, Value: values}
}

// Raw re-expresses the group in wire form.
func (g ValidatedRuleGroup) Raw() RuleGroup {
	out := RuleGroup{Condition: g.Condition, Rules: make([]Node, 0, len(g.Rules))}
	for _, child := range g.Rules {
		switch node := child.(type) {
		case ValidatedRule:
			out.Rules = append(out.Rules, node.Raw())
		case ValidatedRuleGroup:
			out.Rules = append(out.Rules, node.Raw())
		}
	}
	return out
}
