package rules

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func peopleEntity() Entity {
	return Entity{
		Name:  "people",
		Table: "person",
		Alias: "p",
		Filters: Filters{
			"name":      {Type: TypeText},
			"nickname":  {Type: TypeText, Nullable: true},
			"age":       {Type: TypeNumber},
			"score":     {Type: TypeNumber, Nullable: true},
			"joinedAt":  {Type: TypeDate},
			"leftAt":    {Type: TypeDate, Nullable: true},
			"active":    {Type: TypeBoolean},
			"status":    {Type: TypeEnum, Options: []string{"active", "inactive"}},
			"tier":      {Type: TypeEnum, Nullable: true, Options: []string{"gold", "silver"}},
			"labels":    {Type: TypeArray, Nullable: true},
			"roles":     {Type: TypeArray},
			"homeTown":  {Type: TypeText, Column: "town"},
			"visibleTo": {Type: TypeText, Nullable: true},
		},
	}
}

func testRegistry(t *testing.T, entities ...Entity) *Registry {
	t.Helper()
	if len(entities) == 0 {
		entities = []Entity{peopleEntity()}
	}
	registry, err := NewRegistry(entities...)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	return registry
}

func testValidator(t *testing.T, registry *Registry) *Validator {
	t.Helper()
	v, err := NewValidator(registry, DefaultLimits())
	if err != nil {
		t.Fatalf("NewValidator error: %v", err)
	}
	return v.WithClock(func() time.Time { return fixedNow })
}

func testBuilder(t *testing.T, registry *Registry, dialect Dialect) *Builder {
	t.Helper()
	b, err := NewBuilder(registry, BuilderOptions{Dialect: dialect})
	if err != nil {
		t.Fatalf("NewBuilder error: %v", err)
	}
	return b
}

// mustBuild validates group against people and renders it in Postgres.
func mustBuild(t *testing.T, registry *Registry, group RuleGroup) Clause {
	t.Helper()
	validated, err := testValidator(t, registry).ValidateGroup("people", group)
	if err != nil {
		t.Fatalf("ValidateGroup error: %v", err)
	}
	clause, err := testBuilder(t, registry, Postgres).Build("people", validated)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return clause
}
