package registry

import (
	"context"
	"fmt"

	"RefreshSentinel/internal/model"
)

// DefaultRetries bounds the read-modify-write loop in Update.
const DefaultRetries = 3

// Mutator edits a state in place. Returning changed=false skips the write.
type Mutator func(s *model.SymbolState) (changed bool, err error)

// Update applies fn to the current state of symbol with compare-and-swap,
// re-reading and retrying on a lost race. It makes 1+retries attempts and
// returns ErrConflict when all of them lose.
func Update(ctx context.Context, store Store, symbol string, retries int, fn Mutator) (model.SymbolState, error) {
	if retries < 0 {
		retries = 0
	}
	for attempt := 0; attempt <= retries; attempt++ {
		entry, err := store.Get(ctx, symbol)
		if err != nil {
			return model.SymbolState{}, err
		}
		next := entry.State.Clone()
		changed, err := fn(&next)
		if err != nil {
			return model.SymbolState{}, err
		}
		if !changed {
			return entry.State, nil
		}
		ok, err := store.CompareAndSwap(ctx, symbol, entry.Version, next)
		if err != nil {
			return model.SymbolState{}, fmt.Errorf("compare-and-swap %s: %w", symbol, err)
		}
		if ok {
			return next, nil
		}
	}
	return model.SymbolState{}, fmt.Errorf("%s after %d attempts: %w", symbol, retries+1, ErrConflict)
}
