package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/formulary/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newRecord builds a record from plain Go values.
func newRecord(id string, attrs map[string]any) ir.Record {
	return ir.Record{ID: id, Attributes: ir.MustAttributes(attrs)}
}

// counterIDs yields "<prefix>-1", "<prefix>-2", ...
type counterIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (g *counterIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
