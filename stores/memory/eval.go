package memory

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gabisonia/go-rulefilter/rules"
)

// evaluator walks a validated tree for one entity. It mirrors the predicates
// the SQL builders render, including NULL handling of negative operators.
type evaluator struct {
	entity   string
	matchers map[string]Matcher
	lookup   func(entity, key string) (Record, bool)
	now      time.Time
}

func (e *evaluator) matches(node rules.ValidatedNode, record Record) (bool, error) {
	switch n := node.(type) {
	case rules.ValidatedRuleGroup:
		return e.matchesGroup(n, record)
	case *rules.ValidatedRuleGroup:
		if n == nil {
			return false, contractViolation(e.entity, "", "nil group")
		}
		return e.matchesGroup(*n, record)
	case rules.ValidatedRule:
		return e.matchesRule(n, record)
	case *rules.ValidatedRule:
		if n == nil {
			return false, contractViolation(e.entity, "", "nil rule")
		}
		return e.matchesRule(*n, record)
	default:
		return false, contractViolation(e.entity, "", "unsupported node type %T", node)
	}
}

func (e *evaluator) matchesGroup(g rules.ValidatedRuleGroup, record Record) (bool, error) {
	switch g.Condition {
	case rules.ConditionAnd:
		for _, child := range g.Rules {
			ok, err := e.matches(child, record)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case rules.ConditionOr:
		for _, child := range g.Rules {
			ok, err := e.matches(child, record)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	default:
		return false, contractViolation(e.entity, "", "unsupported condition %q", g.Condition)
	}
}

func (e *evaluator) matchesRule(r rules.ValidatedRule, record Record) (bool, error) {
	if matcher, ok := e.matchers[r.Field]; ok {
		return matcher(&MatchContext{Record: record, Now: e.now, eval: e}, r)
	}
	return compareRule(r, record[r.Field])
}

// compareRule applies the default predicate of r to a stored value. A nil or
// absent value behaves like SQL NULL.
func compareRule(r rules.ValidatedRule, value any) (bool, error) {
	switch r.Type {
	case rules.TypeArray:
		return compareArray(r, value)
	case rules.TypeText, rules.TypeEnum:
		return compareText(r, value)
	case rules.TypeNumber, rules.TypeDate, rules.TypeBoolean:
		return compareScalar(r, normalizeValue(r.Type, value))
	default:
		return false, fmt.Errorf("%w: no evaluator for type %q", rules.ErrContractViolation, r.Type)
	}
}

func compareScalar(r rules.ValidatedRule, value any) (bool, error) {
	if value == nil {
		switch r.Operator {
		case rules.OpIsEmpty:
			return true, nil
		case rules.OpNotEqual, rules.OpNotBetween, rules.OpNotIn,
			rules.OpNotBeginsWith, rules.OpNotEndsWith, rules.OpNotContains:
			return r.Nullable, nil
		default:
			return false, nil
		}
	}

	switch r.Operator {
	case rules.OpEqual:
		return valuesEqual(value, r.Value[0]), nil
	case rules.OpNotEqual:
		return !valuesEqual(value, r.Value[0]), nil
	case rules.OpLessThan:
		return compareValues(value, r.Value[0]) < 0, nil
	case rules.OpLessOrEqual:
		return compareValues(value, r.Value[0]) <= 0, nil
	case rules.OpGreaterThan:
		return compareValues(value, r.Value[0]) > 0, nil
	case rules.OpGreaterOrEqual:
		return compareValues(value, r.Value[0]) >= 0, nil
	case rules.OpBetween:
		return between(value, r.Value[0], r.Value[1]), nil
	case rules.OpNotBetween:
		return !between(value, r.Value[0], r.Value[1]), nil
	case rules.OpIn:
		return containsValue(r.Value, value), nil
	case rules.OpNotIn:
		return !containsValue(r.Value, value), nil
	case rules.OpIsEmpty:
		return false, nil
	case rules.OpIsNotEmpty:
		return true, nil
	default:
		return false, fmt.Errorf("%w: operator %q has no %s evaluator", rules.ErrContractViolation, r.Operator, r.Type)
	}
}

func compareText(r rules.ValidatedRule, value any) (bool, error) {
	var text string
	if value != nil {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		text = s
		value = s
	}

	switch r.Operator {
	case rules.OpIsEmpty:
		return value == nil || text == "", nil
	case rules.OpIsNotEmpty:
		return value != nil && text != "", nil
	case rules.OpBeginsWith, rules.OpEndsWith, rules.OpContains:
		if value == nil {
			return false, nil
		}
		return like(r.Operator, text, r.Value[0]), nil
	case rules.OpNotBeginsWith, rules.OpNotEndsWith, rules.OpNotContains:
		if value == nil {
			return r.Nullable, nil
		}
		positive, _ := r.Operator.Positive()
		return !like(positive, text, r.Value[0]), nil
	default:
		return compareScalar(r, value)
	}
}

func compareArray(r rules.ValidatedRule, value any) (bool, error) {
	items, err := stringItems(value)
	if err != nil {
		return false, err
	}

	switch r.Operator {
	case rules.OpContains:
		return containsString(items, r.Value[0]), nil
	case rules.OpNotContains:
		if items == nil {
			return r.Nullable, nil
		}
		return !containsString(items, r.Value[0]), nil
	case rules.OpIn:
		return overlaps(items, r.Value), nil
	case rules.OpNotIn:
		if items == nil {
			return r.Nullable, nil
		}
		return !overlaps(items, r.Value), nil
	case rules.OpIsEmpty:
		return len(items) == 0, nil
	case rules.OpIsNotEmpty:
		return len(items) > 0, nil
	default:
		return false, fmt.Errorf("%w: operator %q has no %s evaluator", rules.ErrContractViolation, r.Operator, r.Type)
	}
}

// like matches case-insensitively, the way ILIKE and the default SQL Server
// collation do.
func like(op rules.Operator, text string, pattern any) bool {
	text = strings.ToLower(text)
	needle := strings.ToLower(fmt.Sprint(pattern))
	switch op {
	case rules.OpBeginsWith:
		return strings.HasPrefix(text, needle)
	case rules.OpEndsWith:
		return strings.HasSuffix(text, needle)
	default:
		return strings.Contains(text, needle)
	}
}

func between(value, lo, hi any) bool {
	return compareValues(value, lo) >= 0 && compareValues(value, hi) <= 0
}

func containsValue(values []any, value any) bool {
	for _, candidate := range values {
		if valuesEqual(value, candidate) {
			return true
		}
	}
	return false
}

func containsString(items []string, value any) bool {
	want := fmt.Sprint(value)
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func overlaps(items []string, values []any) bool {
	for _, value := range values {
		if containsString(items, value) {
			return true
		}
	}
	return false
}

// stringItems reads an array field. nil stands for a NULL column.
func stringItems(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		if v == nil {
			return nil, nil
		}
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: array item %v is %T, want string", ErrInvalidRecord, item, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: array field holds %T", ErrInvalidRecord, value)
	}
}

// normalizeValue converts stored numbers, dates and booleans to the types the
// validator coerces rule values to.
func normalizeValue(t rules.FilterType, value any) any {
	if value == nil {
		return nil
	}
	switch t {
	case rules.TypeNumber:
		if f, ok := toFloat64(value); ok {
			return f
		}
	case rules.TypeDate:
		switch v := value.(type) {
		case time.Time:
			return v.UTC()
		case *time.Time:
			if v == nil {
				return nil
			}
			return v.UTC()
		case string:
			if parsed, ok := rules.ParseISODate(v); ok {
				return parsed
			}
		}
	case rules.TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v
		case *bool:
			if v == nil {
				return nil
			}
			return *v
		}
	}
	return value
}

func valuesEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == right
	}

	leftNumeric, leftIsNumeric := toFloat64(left)
	rightNumeric, rightIsNumeric := toFloat64(right)
	if leftIsNumeric && rightIsNumeric {
		return leftNumeric == rightNumeric
	}

	leftTime, leftIsTime := left.(time.Time)
	rightTime, rightIsTime := right.(time.Time)
	if leftIsTime && rightIsTime {
		return leftTime.Equal(rightTime)
	}

	return reflect.DeepEqual(left, right)
}

func compareValues(left, right any) int {
	leftNumeric, leftIsNumeric := toFloat64(left)
	rightNumeric, rightIsNumeric := toFloat64(right)
	if leftIsNumeric && rightIsNumeric {
		switch {
		case leftNumeric < rightNumeric:
			return -1
		case leftNumeric > rightNumeric:
			return 1
		default:
			return 0
		}
	}

	leftTime, leftIsTime := left.(time.Time)
	rightTime, rightIsTime := right.(time.Time)
	if leftIsTime && rightIsTime {
		return leftTime.Compare(rightTime)
	}

	return strings.Compare(fmt.Sprint(left), fmt.Sprint(right))
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contractViolation(entity, field, format string, args ...any) error {
	return &rules.ContractViolationError{Entity: entity, Field: field, Err: fmt.Errorf(format, args...)}
}
