package rules

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Entity is the filter definition of one record collection.
type Entity struct {
	Name string
	// Table is the storage table; Alias qualifies its columns in fragments.
	Table string
	Alias string
	// Key is the field identifying a record, "id" when empty.
	Key      string
	Filters  Filters
	Handlers map[string]Handler
}

// Registry holds the entity schemas of the process. It is immutable once
// constructed and safe for concurrent use.
type Registry struct {
	entities map[string]Entity
}

// NewRegistry validates and freezes the given entity definitions.
func NewRegistry(entities ...Entity) (*Registry, error) {
	if err := CheckOperatorTable(); err != nil {
		return nil, &ContractViolationError{Err: err}
	}

	r := &Registry{entities: make(map[string]Entity, len(entities))}
	for _, entity := range entities {
		normalized, err := normalizeEntity(entity)
		if err != nil {
			return nil, err
		}
		if _, exists := r.entities[normalized.Name]; exists {
			return nil, contractViolation(normalized.Name, "", "entity registered twice")
		}
		r.entities[normalized.Name] = normalized
	}
	return r, nil
}

func normalizeEntity(entity Entity) (Entity, error) {
	name := strings.TrimSpace(entity.Name)
	if name == "" {
		return Entity{}, contractViolation("", "", "entity name is empty")
	}
	out := Entity{
		Name:     name,
		Table:    strings.TrimSpace(entity.Table),
		Alias:    strings.TrimSpace(entity.Alias),
		Key:      strings.TrimSpace(entity.Key),
		Filters:  make(Filters, len(entity.Filters)),
		Handlers: maps.Clone(entity.Handlers),
	}
	if out.Key == "" {
		out.Key = "id"
	}

	for field, schema := range entity.Filters {
		if strings.TrimSpace(field) != field || field == "" {
			return Entity{}, contractViolation(name, field, "field name is empty or padded")
		}
		if err := validateFieldSchema(schema); err != nil {
			return Entity{}, &ContractViolationError{Entity: name, Field: field, Err: err}
		}
		schema.Options = append([]string(nil), schema.Options...)
		out.Filters[field] = schema
	}
	for field, handler := range out.Handlers {
		if handler == nil {
			return Entity{}, contractViolation(name, field, "nil filter handler")
		}
		if _, ok := out.Filters[field]; !ok {
			return Entity{}, contractViolation(name, field, "filter handler for undeclared field")
		}
	}
	return out, nil
}

func validateFieldSchema(schema FieldSchema) error {
	if err := schema.Type.Validate(); err != nil {
		return err
	}
	switch schema.Type {
	case TypeEnum:
		if len(schema.Options) == 0 {
			return fmt.Errorf("enum field has no options")
		}
	case TypeArray:
	default:
		if len(schema.Options) > 0 {
			return fmt.Errorf("%s field must not declare options", schema.Type)
		}
	}
	seen := make(map[string]struct{}, len(schema.Options))
	for _, option := range schema.Options {
		if _, dup := seen[option]; dup {
			return fmt.Errorf("duplicate option %q", option)
		}
		seen[option] = struct{}{}
	}
	return nil
}

// Lookup resolves the schema of field on entity.
func (r *Registry) Lookup(entity, field string) (FieldSchema, error) {
	e, ok := r.entities[entity]
	if !ok {
		return FieldSchema{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	schema, ok := e.Filters[field]
	if !ok {
		return FieldSchema{}, fmt.Errorf("%w: %q on %q", ErrUnknownField, field, entity)
	}
	return schema, nil
}

// Entity returns a copy of the definition registered under name.
func (r *Registry) Entity(name string) (Entity, bool) {
	e, ok := r.entities[name]
	if !ok {
		return Entity{}, false
	}
	e.Filters = maps.Clone(e.Filters)
	e.Handlers = maps.Clone(e.Handlers)
	return e, true
}

// Entities returns the registered entity names in sorted order.
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler returns the filter handler registered for field on entity.
func (r *Registry) Handler(entity, field string) (Handler, bool) {
	e, ok := r.entities[entity]
	if !ok {
		return nil, false
	}
	h, ok := e.Handlers[field]
	return h, ok
}
