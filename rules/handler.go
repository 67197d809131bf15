package rules

import (
	"fmt"
	"sort"
	"strings"
)

// QueryContext is the builder state a filter handler may touch: bind a named
// parameter, render a qualified column and append the predicate fragment.
type QueryContext interface {
	AddParam(name string, value any)
	Column(field string) string
	Where(fragment string)
}

// Handler replaces the default builder for one field of one entity. It must
// call Where exactly once. Parameters are either bound with AddParam/Bind or
// returned in the map; every name must come from Param. Breaking this
// contract yields a *ContractViolationError.
type Handler func(hc *HandlerContext) (map[string]any, error)

// HandlerContext is passed to a Handler for a single rule.
type HandlerContext struct {
	Entity      string
	FieldPrefix string
	Rule        ValidatedRule

	c         *clauseBuilder
	allocated map[string]bool
	fragments []string
	err       error
}

var _ QueryContext = (*HandlerContext)(nil)

// Param allocates a parameter name unique within the current build.
func (hc *HandlerContext) Param() string {
	name := hc.c.newParam()
	hc.allocated[name] = true
	return name
}

// Placeholder renders the SQL placeholder of a parameter name.
func (hc *HandlerContext) Placeholder(name string) string {
	return placeholder(name)
}

// AddParam binds value to a name obtained from Param.
func (hc *HandlerContext) AddParam(name string, value any) {
	if !hc.allocated[name] {
		hc.fail("parameter %q was not allocated by the builder", name)
		return
	}
	if _, dup := hc.c.params[name]; dup {
		hc.fail("parameter %q bound twice", name)
		return
	}
	hc.c.params[name] = value
}

// Bind allocates a parameter for value and returns its placeholder.
func (hc *HandlerContext) Bind(value any) string {
	name := hc.Param()
	hc.AddParam(name, value)
	return placeholder(name)
}

// Column renders field of the handled entity qualified with FieldPrefix.
func (hc *HandlerContext) Column(field string) string {
	return hc.c.column(hc.FieldPrefix, field)
}

// KeyColumn renders the key column of the handled entity qualified with FieldPrefix.
func (hc *HandlerContext) KeyColumn() string {
	return hc.c.column(hc.FieldPrefix, hc.c.entity.Key)
}

// Quote quotes an identifier in the builder's dialect.
func (hc *HandlerContext) Quote(ident string) string {
	return hc.c.dialect.QuoteIdent(ident)
}

// Dialect returns the dialect being rendered.
func (hc *HandlerContext) Dialect() Dialect {
	return hc.c.dialect
}

// Where sets the predicate fragment of the rule.
func (hc *HandlerContext) Where(fragment string) {
	hc.fragments = append(hc.fragments, fragment)
}

// Compare renders the default predicate of r against an arbitrary column
// expression, binding its values as fresh parameters.
func (hc *HandlerContext) Compare(column string, r ValidatedRule) (string, error) {
	before := hc.c.next
	sql, err := hc.c.compare(column, r)
	for i := before + 1; i <= hc.c.next; i++ {
		hc.allocated[fmt.Sprintf("%s%d", hc.c.paramPrefix, i)] = true
	}
	return sql, err
}

func (hc *HandlerContext) fail(format string, args ...any) {
	if hc.err == nil {
		hc.err = fmt.Errorf(format, args...)
	}
}

func (c *clauseBuilder) runHandler(handler Handler, r ValidatedRule) (string, error) {
	rule := r
	rule.Value = append([]any(nil), r.Value...)
	hc := &HandlerContext{
		Entity:      c.entity.Name,
		FieldPrefix: c.prefix,
		Rule:        rule,
		c:           c,
		allocated:   make(map[string]bool),
	}

	returned, err := handler(hc)
	if err != nil {
		return "", &ContractViolationError{Entity: c.entity.Name, Field: r.Field, Err: fmt.Errorf("filter handler: %w", err)}
	}

	names := make([]string, 0, len(returned))
	for name := range returned {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hc.AddParam(name, returned[name])
	}
	if hc.err != nil {
		return "", &ContractViolationError{Entity: c.entity.Name, Field: r.Field, Err: hc.err}
	}

	if len(hc.fragments) != 1 {
		return "", contractViolation(c.entity.Name, r.Field, "filter handler produced %d fragments, want 1", len(hc.fragments))
	}
	fragment := strings.TrimSpace(hc.fragments[0])
	if fragment == "" {
		return "", contractViolation(c.entity.Name, r.Field, "filter handler produced an empty fragment")
	}

	allocated := make([]string, 0, len(hc.allocated))
	for name := range hc.allocated {
		allocated = append(allocated, name)
	}
	sort.Strings(allocated)
	for _, name := range allocated {
		if _, bound := c.params[name]; !bound {
			return "", contractViolation(c.entity.Name, r.Field, "parameter %q allocated but never bound", name)
		}
		if !referencesParam(fragment, name) {
			return "", contractViolation(c.entity.Name, r.Field, "parameter %q is not referenced by the fragment", name)
		}
	}
	return "(" + fragment + ")", nil
}

// referencesParam reports whether fragment contains the placeholder of name
// as a whole token, so @p1 does not match inside @p10.
func referencesParam(fragment, name string) bool {
	ph := placeholder(name)
	for offset := 0; ; {
		i := strings.Index(fragment[offset:], ph)
		if i < 0 {
			return false
		}
		end := offset + i + len(ph)
		if end == len(fragment) || !isIdentByte(fragment[end]) {
			return true
		}
		offset = end
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
