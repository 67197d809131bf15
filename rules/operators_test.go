package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorTable(t *testing.T) {
	require.NoError(t, CheckOperatorTable())

	want := map[FilterType][]Operator{
		TypeText: {
			OpBeginsWith, OpContains, OpEndsWith, OpEqual, OpIn, OpIsEmpty, OpIsNotEmpty,
			OpNotBeginsWith, OpNotContains, OpNotEndsWith, OpNotEqual, OpNotIn,
		},
		TypeDate: {
			OpBetween, OpEqual, OpGreaterOrEqual, OpGreaterThan, OpIsEmpty, OpIsNotEmpty,
			OpLessOrEqual, OpLessThan, OpNotBetween, OpNotEqual,
		},
		TypeNumber: {
			OpBetween, OpEqual, OpGreaterOrEqual, OpGreaterThan, OpIn, OpIsEmpty, OpIsNotEmpty,
			OpLessOrEqual, OpLessThan, OpNotBetween, OpNotEqual, OpNotIn,
		},
		TypeBoolean: {OpEqual, OpIsEmpty, OpIsNotEmpty, OpNotEqual},
		TypeEnum:    {OpEqual, OpIn, OpIsEmpty, OpIsNotEmpty, OpNotEqual, OpNotIn},
		TypeArray:   {OpContains, OpIn, OpIsEmpty, OpIsNotEmpty, OpNotContains, OpNotIn},
	}

	for _, ft := range FilterTypes() {
		assert.Equal(t, want[ft], OperatorsFor(ft).Names(), ft)
	}
	assert.Empty(t, OperatorsFor("geo"))
}

func TestOperatorArity(t *testing.T) {
	for _, ft := range FilterTypes() {
		for op, arity := range OperatorsFor(ft) {
			switch op {
			case OpIsEmpty, OpIsNotEmpty:
				assert.Equal(t, arityNone, arity, "%s %s", ft, op)
			case OpBetween, OpNotBetween:
				assert.Equal(t, arityPair, arity, "%s %s", ft, op)
			case OpIn, OpNotIn:
				assert.Equal(t, arityList, arity, "%s %s", ft, op)
			default:
				assert.Equal(t, aritySingle, arity, "%s %s", ft, op)
			}
		}
	}

	assert.True(t, arityList.Accepts(1))
	assert.True(t, arityList.Accepts(1000))
	assert.False(t, arityList.Accepts(0))
	assert.False(t, arityPair.Accepts(3))
	assert.Equal(t, "exactly 2 values", arityPair.String())
	assert.Equal(t, "at least 1 values", arityList.String())
}

func TestOperatorsForReturnsCopy(t *testing.T) {
	set := OperatorsFor(TypeBoolean)
	set[OpContains] = aritySingle

	_, ok := OperatorsFor(TypeBoolean)[OpContains]
	assert.False(t, ok)
}

func TestOperatorPositive(t *testing.T) {
	positive, ok := OpNotContains.Positive()
	assert.True(t, ok)
	assert.Equal(t, OpContains, positive)

	_, ok = OpGreaterThan.Positive()
	assert.False(t, ok)
}
