package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/formulary/internal/ir"
)

// MemoryRecordStore is an in-memory record store with fault injection.
//
// It implements the record store contract used by the engine and catalog:
// ListAll returns records in insertion order, UpdateFields merges, and
// unknown ids yield ir.ErrNotFound.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryRecordStore struct {
	mu      sync.Mutex
	order   []string
	records map[string]ir.Attributes
	ids     *SequentialIDs

	failures map[string]error
	blocking map[string]bool
	writes   map[string]int
	inFlight int
	maxSeen  int
}

// NewMemoryRecordStore creates an empty store. Generated ids are "rec-1", "rec-2", ...
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records:  make(map[string]ir.Attributes),
		ids:      NewSequentialIDs("rec"),
		failures: make(map[string]error),
		blocking: make(map[string]bool),
		writes:   make(map[string]int),
	}
}

// FailWrites makes every UpdateFields call for id return err.
func (s *MemoryRecordStore) FailWrites(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = err
}

// BlockWrites makes UpdateFields for id wait until its context is done.
func (s *MemoryRecordStore) BlockWrites(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocking[id] = true
}

// Insert stores a record; an empty ID is generated.
func (s *MemoryRecordStore) Insert(_ context.Context, rec ir.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.ID
	if id == "" {
		id = s.ids.Generate()
	}
	if _, exists := s.records[id]; exists {
		return "", fmt.Errorf("insert record %s: duplicate id", id)
	}
	s.records[id] = rec.Attributes.Clone()
	s.order = append(s.order, id)
	return id, nil
}

// Get returns a copy of record id.
func (s *MemoryRecordStore) Get(_ context.Context, id string) (ir.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, ok := s.records[id]
	if !ok {
		return ir.Record{}, fmt.Errorf("get record %s: %w", id, ir.ErrNotFound)
	}
	return ir.Record{ID: id, Attributes: attrs.Clone()}, nil
}

// ListAll returns copies of every record in insertion order.
func (s *MemoryRecordStore) ListAll(_ context.Context) ([]ir.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ir.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, ir.Record{ID: id, Attributes: s.records[id].Clone()})
	}
	return out, nil
}

// UpdateFields merges fields into record id, honoring injected faults.
func (s *MemoryRecordStore) UpdateFields(ctx context.Context, id string, fields ir.Attributes) error {
	s.mu.Lock()
	s.writes[id]++
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	failErr := s.failures[id]
	block := s.blocking[id]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if failErr != nil {
		return failErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.records[id]
	if !ok {
		return fmt.Errorf("update record %s: %w", id, ir.ErrNotFound)
	}
	s.records[id] = attrs.Merge(fields)
	return nil
}

// Delete removes record id.
func (s *MemoryRecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("delete record %s: %w", id, ir.ErrNotFound)
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Writes returns how many times UpdateFields was called for id.
func (s *MemoryRecordStore) Writes(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[id]
}

// TotalWrites returns the number of UpdateFields calls across all records.
func (s *MemoryRecordStore) TotalWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.writes {
		n += c
	}
	return n
}

// MaxConcurrentWrites returns the highest number of overlapping UpdateFields calls seen.
func (s *MemoryRecordStore) MaxConcurrentWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

// IDs returns the stored ids, sorted.
func (s *MemoryRecordStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]string(nil), s.order...)
	sort.Strings(ids)
	return ids
}
