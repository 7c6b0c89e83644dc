package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RefreshSentinel/internal/model"
)

func TestMemoryStore_CreateGetCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Create(ctx, model.NewSymbolState(" reliance ", 3)))
	assert.ErrorIs(t, s.Create(ctx, model.NewSymbolState("RELIANCE", 1)), ErrExists)

	e, err := s.Get(ctx, "reliance")
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", e.State.Symbol)
	assert.Equal(t, uint64(1), e.Version)

	next := e.State.Clone()
	next.FailureCount = 1
	ok, err := s.CompareAndSwap(ctx, "RELIANCE", e.Version, next)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale version loses
	ok, err = s.CompareAndSwap(ctx, "RELIANCE", e.Version, e.State)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 1, got.State.FailureCount)
	assert.Equal(t, uint64(2), got.Version)

	_, err = s.Get(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.CompareAndSwap(ctx, "MISSING", 1, next)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	st := model.NewSymbolState("TCS", 4)
	st.Boosts = append(st.Boosts, model.Boost{Kind: "k", Weight: 1})
	require.NoError(t, s.Create(ctx, st))

	e, err := s.Get(ctx, "TCS")
	require.NoError(t, err)
	e.State.Boosts[0].Weight = 3

	again, err := s.Get(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, 1, again.State.Boosts[0].Weight)
}

func TestMemoryStore_GetAllSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, sym := range []string{"C", "A", "B"} {
		require.NoError(t, s.Create(ctx, model.NewSymbolState(sym, 3)))
	}
	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].State.Symbol)
	assert.Equal(t, "C", all[2].State.Symbol)
}

func TestUpdate_ConcurrentWritersLoseNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, model.NewSymbolState("INFY", 3)))

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Update(ctx, s, "INFY", 1000, func(st *model.SymbolState) (bool, error) {
				st.FailureCount++
				return true, nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	e, err := s.Get(ctx, "INFY")
	require.NoError(t, err)
	assert.Equal(t, writers, e.State.FailureCount)
	assert.Equal(t, uint64(writers+1), e.Version)
}

func TestUpdate_NoChangeSkipsWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, model.NewSymbolState("SBIN", 2)))

	_, err := Update(ctx, s, "SBIN", DefaultRetries, func(*model.SymbolState) (bool, error) { return false, nil })
	require.NoError(t, err)
	e, _ := s.Get(ctx, "SBIN")
	assert.Equal(t, uint64(1), e.Version)
}

func TestUpdate_MutatorErrorPropagates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, model.NewSymbolState("SBIN", 2)))

	boom := errors.New("boom")
	_, err := Update(ctx, s, "SBIN", DefaultRetries, func(*model.SymbolState) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

// losingStore never wins a compare-and-swap.
type losingStore struct {
	*MemoryStore
	casCalls int
}

func (l *losingStore) CompareAndSwap(context.Context, string, uint64, model.SymbolState) (bool, error) {
	l.casCalls++
	return false, nil
}

func TestUpdate_ConflictAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	s := &losingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, s.Create(ctx, model.NewSymbolState("HDFC", 3)))

	_, err := Update(ctx, s, "HDFC", 3, func(st *model.SymbolState) (bool, error) {
		st.FailureCount++
		return true, nil
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 4, s.casCalls)
}

func TestReadSymbolsAndSeed(t *testing.T) {
	ctx := context.Background()
	syms, err := ReadSymbols(strings.NewReader("# nifty\nreliance\n\n tcs \nRELIANCE\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, syms)

	s := NewMemoryStore()
	existing := model.NewSymbolState("TCS", 5)
	require.NoError(t, s.Create(ctx, existing))

	n, err := Seed(ctx, s, syms, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := s.Get(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, 5, e.State.BasePriority, "seed must not overwrite existing symbols")
	e, err = s.Get(ctx, "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 2, e.State.BasePriority)
	assert.Equal(t, model.StatusHealthy, e.State.Status)
}
