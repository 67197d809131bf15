package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHandler(field string, h Handler) Entity {
	e := peopleEntity()
	e.Handlers = map[string]Handler{field: h}
	return e
}

func buildWith(t *testing.T, h Handler, group RuleGroup) (Clause, error) {
	t.Helper()
	registry := testRegistry(t, withHandler("visibleTo", h))
	validated, err := testValidator(t, registry).ValidateGroup("people", group)
	require.NoError(t, err)
	return testBuilder(t, registry, Postgres).Build("people", validated)
}

func TestHandlerBypassesDefaultBuilder(t *testing.T) {
	calls := 0
	visibility := func(hc *HandlerContext) (map[string]any, error) {
		calls++
		assert.Equal(t, "people", hc.Entity)
		assert.Equal(t, "p", hc.FieldPrefix)
		assert.Equal(t, TypeText, hc.Rule.Type)

		name := hc.Param()
		hc.Where(fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = %s)",
			hc.KeyColumn(), hc.Quote("person_id"), hc.Quote("grant"), hc.Quote("grantee"), hc.Placeholder(name)))
		return map[string]any{name: hc.Rule.Value[0]}, nil
	}

	clause, err := buildWith(t, visibility, And(
		NewRule("name", OpEqual, "Ada"),
		NewRule("visibleTo", OpEqual, "u1"),
		NewRule("age", OpEqual, 3),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t,
		`(("p"."name" = @p1) AND ("p"."id" IN (SELECT "person_id" FROM "grant" WHERE "grantee" = @p2)) AND ("p"."age" = @p3))`,
		clause.SQL)
	assert.Equal(t, map[string]any{"p1": "Ada", "p2": "u1", "p3": float64(3)}, clause.Params)
}

func TestHandlerAddParamAndCompare(t *testing.T) {
	lower := func(hc *HandlerContext) (map[string]any, error) {
		if hc.Rule.Operator == OpIsEmpty {
			hc.Where(fmt.Sprintf("%s IS NULL", hc.Column("visibleTo")))
			return nil, nil
		}
		fragment, err := hc.Compare(fmt.Sprintf("lower(%s)", hc.Column("visibleTo")), hc.Rule)
		if err != nil {
			return nil, err
		}
		hc.Where(fragment)
		return nil, nil
	}

	clause, err := buildWith(t, lower, Or(
		NewRule("visibleTo", OpIn, "a", "b"),
		NewRule("visibleTo", OpIsEmpty),
	))
	require.NoError(t, err)
	assert.Equal(t, `(((lower("p"."visible_to") IN (@p1, @p2))) OR ("p"."visible_to" IS NULL))`, clause.SQL)
	assert.Equal(t, map[string]any{"p1": "a", "p2": "b"}, clause.Params)
}

func TestHandlerReceivesCopyOfValues(t *testing.T) {
	mutate := func(hc *HandlerContext) (map[string]any, error) {
		hc.Rule.Value[0] = "changed"
		hc.Where(fmt.Sprintf("%s = %s", hc.Column("visibleTo"), hc.Bind("fixed")))
		return nil, nil
	}

	registry := testRegistry(t, withHandler("visibleTo", mutate))
	validated, err := testValidator(t, registry).ValidateGroup("people", And(NewRule("visibleTo", OpEqual, "orig")))
	require.NoError(t, err)

	_, err = testBuilder(t, registry, Postgres).Build("people", validated)
	require.NoError(t, err)
	assert.Equal(t, "orig", validated.Rules[0].(ValidatedRule).Value[0])
}

func TestHandlerContractViolations(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		message string
	}{
		{
			name: "handler error",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				return nil, errors.New("lookup failed")
			},
			message: "lookup failed",
		},
		{
			name: "no fragment",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				return nil, nil
			},
			message: "0 fragments",
		},
		{
			name: "two fragments",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				hc.Where("1=1")
				hc.Where("2=2")
				return nil, nil
			},
			message: "2 fragments",
		},
		{
			name: "blank fragment",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				hc.Where("  ")
				return nil, nil
			},
			message: "empty fragment",
		},
		{
			name: "param not allocated",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				hc.Where("x = @p1")
				return map[string]any{"p1": "x"}, nil
			},
			message: "not allocated",
		},
		{
			name: "returned param collides with bound param",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				name := hc.Param()
				hc.AddParam(name, "a")
				hc.Where("x = " + hc.Placeholder(name))
				return map[string]any{name: "b"}, nil
			},
			message: "bound twice",
		},
		{
			name: "allocated but unbound",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				name := hc.Param()
				hc.Where("x = " + hc.Placeholder(name))
				return nil, nil
			},
			message: "never bound",
		},
		{
			name: "bound but unreferenced",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				hc.Bind("a")
				hc.Where("x = 1")
				return nil, nil
			},
			message: "not referenced",
		},
		{
			name: "placeholder prefix of a longer name",
			handler: func(hc *HandlerContext) (map[string]any, error) {
				name := hc.Param()
				hc.AddParam(name, "a")
				hc.Where("x = " + hc.Placeholder(name) + "0")
				return nil, nil
			},
			message: "not referenced",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildWith(t, tt.handler, And(NewRule("visibleTo", OpEqual, "u1")))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContractViolation)
			assert.NotErrorIs(t, err, ErrInvalidRule)

			var violation *ContractViolationError
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, "people", violation.Entity)
			assert.Equal(t, "visibleTo", violation.Field)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRegistryRejectsBadHandlers(t *testing.T) {
	undeclared := peopleEntity()
	undeclared.Handlers = map[string]Handler{"ghost": func(*HandlerContext) (map[string]any, error) { return nil, nil }}
	_, err := NewRegistry(undeclared)
	assert.ErrorIs(t, err, ErrContractViolation)

	nilHandler := peopleEntity()
	nilHandler.Handlers = map[string]Handler{"name": nil}
	_, err = NewRegistry(nilHandler)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestReferencesParam(t *testing.T) {
	assert.True(t, referencesParam("a = @p1", "p1"))
	assert.True(t, referencesParam("@p1 = a", "p1"))
	assert.True(t, referencesParam("x IN (@p10, @p1)", "p1"))
	assert.False(t, referencesParam("a = @p10", "p1"))
	assert.False(t, referencesParam("a = p1", "p1"))
}
