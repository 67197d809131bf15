package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// LoadJSON inserts a JSON array of objects into entity. Numbers are kept as
// json.Number, so a numeric key is stored under its literal text.
func (s *Store) LoadJSON(ctx context.Context, entity string, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return 0, fmt.Errorf("%w: decode %s records: %v", ErrInvalidRecord, entity, err)
	}

	records := make([]Record, len(raw))
	for i, item := range raw {
		records[i] = item
	}
	if err := s.Insert(ctx, entity, records...); err != nil {
		return 0, err
	}
	return len(records), nil
}
