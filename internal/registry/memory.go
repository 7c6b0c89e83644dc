package registry

import (
	"context"
	"sort"
	"sync"

	"RefreshSentinel/internal/model"
)

// MemoryStore keeps the registry in process. Used for tests and single-node dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(ctx context.Context, symbol string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[model.NormalizeSymbol(symbol)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{State: e.State.Clone(), Version: e.Version}, nil
}

// GetAll returns entries ordered by symbol.
func (m *MemoryStore) GetAll(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, Entry{State: e.State.Clone(), Version: e.Version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State.Symbol < out[j].State.Symbol })
	return out, nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, symbol string, expectedVersion uint64, next model.SymbolState) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := model.NormalizeSymbol(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, ErrNotFound
	}
	if e.Version != expectedVersion {
		return false, nil
	}
	next = next.Clone()
	next.Symbol = key
	m.entries[key] = Entry{State: next, Version: e.Version + 1}
	return true, nil
}

func (m *MemoryStore) Create(ctx context.Context, state model.SymbolState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state = state.Clone()
	state.Symbol = model.NormalizeSymbol(state.Symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[state.Symbol]; ok {
		return ErrExists
	}
	m.entries[state.Symbol] = Entry{State: state, Version: 1}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
