// Package memstore is an in-memory docstore.Adapter used by unit tests
// that exercise the critical-section and reference-counting logic above
// the Metadata Store Adapter without a real SQLite file.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jvs-project/taleforge/pkg/errclass"
)

type Store struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte
}

func New() *Store {
	return &Store{docs: make(map[string]map[string][]byte)}
}

func (s *Store) Load(_ context.Context, collection, id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.docs[collection][id]
	if !ok {
		return errclass.ErrNotFound.WithMessagef("%s/%s not found", collection, id)
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Find(_ context.Context, collection string, filter map[string]any, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []json.RawMessage
	for _, raw := range s.docs[collection] {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if matchesFilter(doc, filter) {
			matches = append(matches, json.RawMessage(raw))
		}
	}

	buf, err := json.Marshal(matches)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

func (s *Store) Save(_ context.Context, collection, id string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string][]byte)
	}
	s.docs[collection][id] = raw
	return nil
}

func (s *Store) Remove(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], id)
	return nil
}

func (s *Store) CompareAndSet(_ context.Context, collection, id string, predicate map[string]any, mutate func(map[string]any) (map[string]any, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.docs[collection][id]
	if !ok {
		return false, errclass.ErrNotFound.WithMessagef("%s/%s not found", collection, id)
	}

	var current map[string]any
	if err := json.Unmarshal(raw, &current); err != nil {
		return false, err
	}

	if !matchesFilter(current, predicate) {
		return false, nil
	}

	next, err := mutate(current)
	if err != nil {
		return false, err
	}

	nextRaw, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	s.docs[collection][id] = nextRaw
	return true, nil
}

func matchesFilter(doc map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if !equalJSONValue(got, want) {
			return false
		}
	}
	return true
}

// equalJSONValue compares values the way they come back from round-tripping
// through encoding/json (numbers as float64), so callers can pass plain Go
// literals (int, bool, string) in filter/predicate maps.
func equalJSONValue(got, want any) bool {
	switch w := want.(type) {
	case int:
		f, ok := toFloat(got)
		return ok && f == float64(w)
	case int64:
		f, ok := toFloat(got)
		return ok && f == float64(w)
	case float64:
		f, ok := toFloat(got)
		return ok && f == w
	default:
		return got == want
	}
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
