package rules

import (
	"fmt"
	"sort"
)

// FilterType is the semantic kind of value a field holds.
type FilterType string

const (
	TypeText    FilterType = "text"
	TypeDate    FilterType = "date"
	TypeBoolean FilterType = "boolean"
	TypeNumber  FilterType = "number"
	TypeEnum    FilterType = "enum"
	TypeArray   FilterType = "array"
)

// FilterTypes lists every FilterType.
func FilterTypes() []FilterType {
	return []FilterType{TypeText, TypeDate, TypeBoolean, TypeNumber, TypeEnum, TypeArray}
}

func (t FilterType) Validate() error {
	switch t {
	case TypeText, TypeDate, TypeBoolean, TypeNumber, TypeEnum, TypeArray:
		return nil
	default:
		return fmt.Errorf("unsupported filter type %q", t)
	}
}

// FieldSchema describes one filterable field of an entity.
type FieldSchema struct {
	Type     FilterType `json:"type"`
	Nullable bool       `json:"nullable,omitempty"`
	Options  []string   `json:"options,omitempty"`
	// Column overrides the storage column; defaults to the snake_case field name.
	Column string `json:"-"`
}

func (s FieldSchema) hasOption(value string) bool {
	for _, option := range s.Options {
		if option == value {
			return true
		}
	}
	return false
}

// Filters maps field names to their schema for one entity.
type Filters map[string]FieldSchema

// Names returns the field names in sorted order.
func (f Filters) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Condition is the boolean connective of a rule group.
type Condition string

const (
	ConditionAnd Condition = "AND"
	ConditionOr  Condition = "OR"
)

func (c Condition) Validate() error {
	switch c {
	case ConditionAnd, ConditionOr:
		return nil
	default:
		return fmt.Errorf("unsupported condition %q", c)
	}
}

// Node is either a Rule or a RuleGroup.
type Node interface {
	isNode()
}

// Rule is one untrusted leaf condition as received on the wire.
type Rule struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    []any    `json:"value"`
}

func (Rule) isNode() {}

// RuleGroup combines rules and nested groups with AND or OR.
type RuleGroup struct {
	Condition Condition `json:"condition" validate:"oneof=AND OR"`
	Rules     []Node    `json:"rules"`
}

func (RuleGroup) isNode() {}

// ValidatedNode is either a ValidatedRule or a ValidatedRuleGroup.
type ValidatedNode interface {
	isValidatedNode()
}

// ValidatedRule is a Rule whose field and operator were resolved and whose
// values were coerced: float64 for numbers, time.Time (UTC) for dates, bool for
// booleans and string otherwise.
type ValidatedRule struct {
	Type     FilterType
	Field    string
	Nullable bool
	Operator Operator
	Value    []any
}

func (ValidatedRule) isValidatedNode() {}

// ValidatedRuleGroup is a RuleGroup whose every descendant passed validation.
type ValidatedRuleGroup struct {
	Condition Condition
	Rules     []ValidatedNode
}

func (ValidatedRuleGroup) isValidatedNode() {}

// NewRule constructs a leaf rule.
func NewRule(field string, operator Operator, values ...any) Rule {
	cp := make([]any, len(values))
	copy(cp, values)
	return Rule{Field: field, Operator: operator, Value: cp}
}

// And constructs an AND group.
func And(children ...Node) RuleGroup {
	cp := make([]Node, len(children))
	copy(cp, children)
	return RuleGroup{Condition: ConditionAnd, Rules: cp}
}

// Or constructs an OR group.
func Or(children ...Node) RuleGroup {
	cp := make([]Node, len(children))
	copy(cp, children)
	return RuleGroup{Condition: ConditionOr, Rules: cp}
}
