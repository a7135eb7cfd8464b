package decisionlog

import (
	"context"
	"slices"
	"sync"

	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

// MemoryStore keeps entries in process.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []Entry
	pagination pagination.Config
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(cfg pagination.Config) *MemoryStore {
	return &MemoryStore{pagination: cfg}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) List(_ context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.entries, page, filters), nil
}

// Entries returns a copy of every entry in recorded order.
func (m *MemoryStore) Entries() []Entry {
	m.mu.RLock()
	out := slices.Clone(m.entries)
	m.mu.RUnlock()

	slices.SortFunc(out, compareEntries)
	return out
}
