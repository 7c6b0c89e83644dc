package registry

import (
	"context"
	"errors"

	"RefreshSentinel/internal/model"
)

var (
	ErrNotFound = errors.New("symbol not found")
	ErrExists   = errors.New("symbol already exists")
	// ErrConflict means a compare-and-swap kept losing until retries ran out.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrLostUpdate marks a write that was given up on and must be surfaced
	// to an operator.
	ErrLostUpdate = errors.New("lost update")
)

// Entry is a symbol state together with the version it was read at.
type Entry struct {
	State   model.SymbolState
	Version uint64
}

// Store is the persisted symbol registry. Implementations must make
// CompareAndSwap atomic per key: it succeeds only if the stored version still
// equals expectedVersion, and then bumps the version.
type Store interface {
	Get(ctx context.Context, symbol string) (Entry, error)
	GetAll(ctx context.Context) ([]Entry, error)
	CompareAndSwap(ctx context.Context, symbol string, expectedVersion uint64, next model.SymbolState) (bool, error)
	Create(ctx context.Context, state model.SymbolState) error
	Close() error
}
