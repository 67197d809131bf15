package rules

import "context"

// Store executes validated rule trees against stored records of an entity.
type Store interface {
	// Count returns the number of records of entity matching group.
	Count(ctx context.Context, entity string, group ValidatedRuleGroup) (int64, error)
	// IDs returns the keys of up to limit matching records in key order.
	IDs(ctx context.Context, entity string, group ValidatedRuleGroup, limit int) ([]string, error)
}
