package rules

import (
	"fmt"
	"maps"
	"sort"
)

// Operator names a comparison a rule applies to its field.
type Operator string

const (
	OpEqual          Operator = "equal"
	OpNotEqual       Operator = "not_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_or_equal"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpBetween        Operator = "between"
	OpNotBetween     Operator = "not_between"
	OpBeginsWith     Operator = "begins_with"
	OpNotBeginsWith  Operator = "not_begins_with"
	OpEndsWith       Operator = "ends_with"
	OpNotEndsWith    Operator = "not_ends_with"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpIsEmpty        Operator = "is_empty"
	OpIsNotEmpty     Operator = "is_not_empty"
)

var negations = map[Operator]Operator{
	OpNotEqual:      OpEqual,
	OpNotBetween:    OpBetween,
	OpNotBeginsWith: OpBeginsWith,
	OpNotEndsWith:   OpEndsWith,
	OpNotContains:   OpContains,
	OpNotIn:         OpIn,
	OpIsNotEmpty:    OpIsEmpty,
}

// Positive returns the operator op negates, e.g. equal for not_equal. The
// second result is false when op is not a negation.
func (op Operator) Positive() (Operator, bool) {
	positive, ok := negations[op]
	return positive, ok
}

// IsEmptyCheck reports whether op tests for absence of a value.
func (op Operator) IsEmptyCheck() bool {
	return op == OpIsEmpty || op == OpIsNotEmpty
}

// Arity is the number of values an operator takes. Max < 0 means unbounded.
type Arity struct {
	Min int
	Max int
}

var (
	arityNone   = Arity{Min: 0, Max: 0}
	aritySingle = Arity{Min: 1, Max: 1}
	arityPair   = Arity{Min: 2, Max: 2}
	arityList   = Arity{Min: 1, Max: -1}
)

// Accepts reports whether n values satisfy the arity.
func (a Arity) Accepts(n int) bool {
	if n < a.Min {
		return false
	}
	return a.Max < 0 || n <= a.Max
}

func (a Arity) String() string {
	switch {
	case a.Max < 0:
		return fmt.Sprintf("at least %d values", a.Min)
	case a.Min == a.Max && a.Min == 1:
		return "exactly 1 value"
	case a.Min == a.Max:
		return fmt.Sprintf("exactly %d values", a.Min)
	default:
		return fmt.Sprintf("%d to %d values", a.Min, a.Max)
	}
}

// OperatorSet maps the operators valid for one FilterType to their arity.
type OperatorSet map[Operator]Arity

// Names returns the operators in sorted order.
func (s OperatorSet) Names() []Operator {
	names := make([]Operator, 0, len(s))
	for op := range s {
		names = append(names, op)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

var orderingOperators = OperatorSet{
	OpEqual:          aritySingle,
	OpNotEqual:       aritySingle,
	OpLessThan:       aritySingle,
	OpLessOrEqual:    aritySingle,
	OpGreaterThan:    aritySingle,
	OpGreaterOrEqual: aritySingle,
	OpBetween:        arityPair,
	OpNotBetween:     arityPair,
}

var emptyOperators = OperatorSet{
	OpIsEmpty:    arityNone,
	OpIsNotEmpty: arityNone,
}

var operatorsByType = map[FilterType]OperatorSet{
	TypeText: withEmpty(OperatorSet{
		OpEqual:         aritySingle,
		OpNotEqual:      aritySingle,
		OpBeginsWith:    aritySingle,
		OpNotBeginsWith: aritySingle,
		OpEndsWith:      aritySingle,
		OpNotEndsWith:   aritySingle,
		OpContains:      aritySingle,
		OpNotContains:   aritySingle,
		OpIn:            arityList,
		OpNotIn:         arityList,
	}),
	TypeDate: withEmpty(orderingOperators),
	TypeNumber: withEmpty(orderingOperators, OperatorSet{
		OpIn:    arityList,
		OpNotIn: arityList,
	}),
	TypeBoolean: withEmpty(OperatorSet{
		OpEqual:    aritySingle,
		OpNotEqual: aritySingle,
	}),
	TypeEnum: withEmpty(OperatorSet{
		OpEqual:    aritySingle,
		OpNotEqual: aritySingle,
		OpIn:       arityList,
		OpNotIn:    arityList,
	}),
	TypeArray: withEmpty(OperatorSet{
		OpContains:    aritySingle,
		OpNotContains: aritySingle,
		OpIn:          arityList,
		OpNotIn:       arityList,
	}),
}

func withEmpty(sets ...OperatorSet) OperatorSet {
	out := maps.Clone(emptyOperators)
	for _, set := range sets {
		maps.Copy(out, set)
	}
	return out
}

// OperatorsFor returns a copy of the operator set of t. It is empty for an
// unknown type.
func OperatorsFor(t FilterType) OperatorSet {
	return maps.Clone(operatorsByType[t])
}

func lookupOperator(t FilterType, op Operator) (Arity, bool) {
	arity, ok := operatorsByType[t][op]
	return arity, ok
}

// CheckOperatorTable verifies that every FilterType has at least one operator
// that needs a value, so a non-nullable field is always filterable.
func CheckOperatorTable() error {
	for _, t := range FilterTypes() {
		usable := 0
		for op := range operatorsByType[t] {
			if !op.IsEmptyCheck() {
				usable++
			}
		}
		if usable == 0 {
			return fmt.Errorf("filter type %q has no operators", t)
		}
	}
	for t := range operatorsByType {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("operator table: %w", err)
		}
	}
	return nil
}
