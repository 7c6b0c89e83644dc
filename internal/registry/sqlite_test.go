package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RefreshSentinel/internal/model"
)

func TestSQLiteStore_RoundTripAndCAS(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	defer s.Close()

	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	st := model.NewSymbolState("MRF", 4)
	st.LastAttempt = model.TimePtr(now)
	st.LastRefreshed = model.TimePtr(now.Add(-time.Minute))
	st.Boosts = []model.Boost{{Kind: "user_interest", Weight: 2, Source: "admin", AppliedAt: now, ExpiresAt: now.Add(6 * time.Hour)}}
	require.NoError(t, s.Create(ctx, st))
	assert.ErrorIs(t, s.Create(ctx, st), ErrExists)

	e, err := s.Get(ctx, "mrf")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Version)
	assert.Equal(t, 4, e.State.BasePriority)
	require.NotNil(t, e.State.LastAttempt)
	assert.True(t, now.Equal(*e.State.LastAttempt))
	require.Len(t, e.State.Boosts, 1)
	assert.Equal(t, "user_interest", e.State.Boosts[0].Kind)
	assert.True(t, e.State.Boosts[0].ExpiresAt.Equal(now.Add(6*time.Hour)))

	next := e.State.Clone()
	next.FailureCount = 2
	next.Status = model.StatusFailing
	next.LastRefreshed = nil
	ok, err := s.CompareAndSwap(ctx, "MRF", 1, next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSwap(ctx, "MRF", 1, e.State)
	require.NoError(t, err)
	assert.False(t, ok, "stale version must lose")

	_, err = s.CompareAndSwap(ctx, "NOPE", 1, e.State)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, "MRF")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, model.StatusFailing, got.State.Status)
	assert.Nil(t, got.State.LastRefreshed)

	require.NoError(t, s.Create(ctx, model.NewSymbolState("ABB", 1)))
	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ABB", all[0].State.Symbol)
	assert.Empty(t, all[0].State.Boosts)
}
