package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/necessist/necessist/internal/model"
)

// MemoryStore is the --no-sqlite sink from spec §4.7: an in-process map
// with the same interface as SQLiteStore, so a run without a database
// file behaves identically except that its records vanish at exit.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.RemovalRecord
}

// NewMemory constructs an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.RemovalRecord)}
}

func (m *MemoryStore) Get(spanKey string) (model.RemovalRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[spanKey]

	return rec, ok, nil
}

func (m *MemoryStore) Put(rec model.RemovalRecord) error {
	if !rec.Outcome.Valid() || rec.Outcome == model.Skipped {
		return fmt.Errorf("refusing to persist non-storable outcome %q for %s", rec.Outcome, rec.SpanKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.SpanKey] = rec

	return nil
}

func (m *MemoryStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]model.RemovalRecord)

	return nil
}

func (m *MemoryStore) All() ([]model.RemovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.RemovalRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SpanKey < out[j].SpanKey })

	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
