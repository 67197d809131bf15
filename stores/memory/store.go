// Package memory evaluates validated rule trees against records held in
// process. It backs tests and small deployments that do not need SQL.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gabisonia/go-rulefilter/rules"
)

var (
	ErrInvalidRecord = errors.New("memory: invalid record")
	ErrDuplicateKey  = errors.New("memory: duplicate key")
)

// Record is one stored row keyed by field name. Arrays are []string or []any
// of strings; dates are time.Time or RFC 3339 strings; a nil value is NULL.
type Record map[string]any

// Matcher replaces the default predicate for one field, the way a
// rules.Handler replaces the default SQL rendering.
type Matcher func(mc *MatchContext, r rules.ValidatedRule) (bool, error)

// MatchContext is passed to a Matcher for a single record.
type MatchContext struct {
	Record Record
	Now    time.Time

	eval *evaluator
}

// Lookup returns a stored record of another entity by key.
func (mc *MatchContext) Lookup(entity, key string) (Record, bool) {
	return mc.eval.lookup(entity, key)
}

// Compare applies the default predicate of r to a computed value.
func (mc *MatchContext) Compare(value any, r rules.ValidatedRule) (bool, error) {
	return compareRule(r, value)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Matchers overrides the evaluation of fields, keyed by entity then field.
	Matchers map[string]map[string]Matcher
	// Clock is passed to matchers as MatchContext.Now; time.Now when nil.
	Clock func() time.Time
}

// Store keeps records per entity and answers rules.Store queries over them.
type Store struct {
	registry *rules.Registry
	matchers map[string]map[string]Matcher
	clock    func() time.Time

	mu      sync.RWMutex
	records map[string]map[string]Record
}

var _ rules.Store = (*Store)(nil)

// NewStore creates an empty store for the entities of registry.
func NewStore(registry *rules.Registry, opts StoreOptions) (*Store, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	matchers := make(map[string]map[string]Matcher, len(opts.Matchers))
	for entity, fields := range opts.Matchers {
		for field, matcher := range fields {
			if matcher == nil {
				return nil, contractViolation(entity, field, "nil matcher")
			}
			if _, err := registry.Lookup(entity, field); err != nil {
				return nil, &rules.ContractViolationError{Entity: entity, Field: field, Err: err}
			}
			if matchers[entity] == nil {
				matchers[entity] = make(map[string]Matcher, len(fields))
			}
			matchers[entity][field] = matcher
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		registry: registry,
		matchers: matchers,
		clock:    clock,
		records:  make(map[string]map[string]Record),
	}, nil
}

// Insert adds records to entity. Every record must carry a non-empty string
// or json.Number key not already stored; on error nothing is inserted.
func (s *Store) Insert(ctx context.Context, entity string, records ...Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	def, ok := s.registry.Entity(entity)
	if !ok {
		return &rules.ContractViolationError{Err: fmt.Errorf("%w: %q", rules.ErrUnknownEntity, entity)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.records[entity]
	batch := make(map[string]Record, len(records))
	for i, record := range records {
		key, ok := recordKey(record[def.Key])
		if !ok {
			return fmt.Errorf("%w: record %d has no string %q", ErrInvalidRecord, i, def.Key)
		}
		if _, exists := stored[key]; exists {
			return fmt.Errorf("%w: %s %q", ErrDuplicateKey, entity, key)
		}
		if _, exists := batch[key]; exists {
			return fmt.Errorf("%w: %s %q", ErrDuplicateKey, entity, key)
		}
		cp := make(Record, len(record))
		for field, value := range record {
			cp[field] = value
		}
		batch[key] = cp
	}

	if stored == nil {
		stored = make(map[string]Record, len(batch))
		s.records[entity] = stored
	}
	for key, record := range batch {
		stored[key] = record
	}
	return nil
}

func recordKey(v any) (string, bool) {
	switch k := v.(type) {
	case string:
		return k, k != ""
	case json.Number:
		return k.String(), k != ""
	default:
		return "", false
	}
}

// Count returns the number of records of entity matching group.
func (s *Store) Count(ctx context.Context, entity string, group rules.ValidatedRuleGroup) (int64, error) {
	keys, err := s.match(ctx, entity, group, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// IDs returns the keys of up to limit matching records in key order.
func (s *Store) IDs(ctx context.Context, entity string, group rules.ValidatedRuleGroup, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	return s.match(ctx, entity, group, limit)
}

// Matches reports whether a single record satisfies node.
func (s *Store) Matches(entity string, node rules.ValidatedNode, record Record) (bool, error) {
	ev, err := s.evaluator(entity)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ev.matches(node, record)
}

func (s *Store) match(ctx context.Context, entity string, group rules.ValidatedRuleGroup, limit int) ([]string, error) {
	ev, err := s.evaluator(entity)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.records[entity]
	keys := make([]string, 0, len(stored))
	for key := range stored {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := ev.matches(group, stored[key])
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, key)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// evaluator binds the matchers of entity. Lookups read s.records and rely on
// the caller holding the read lock.
func (s *Store) evaluator(entity string) (*evaluator, error) {
	if _, ok := s.registry.Entity(entity); !ok {
		return nil, &rules.ContractViolationError{Err: fmt.Errorf("%w: %q", rules.ErrUnknownEntity, entity)}
	}
	return &evaluator{
		entity:   entity,
		matchers: s.matchers[entity],
		now:      s.clock().UTC(),
		lookup: func(other, key string) (Record, bool) {
			record, ok := s.records[other][key]
			return record, ok
		},
	}, nil
}
