package boost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/registry"
)

// Service applies boost requests to the registry.
type Service struct {
	Store   registry.Store
	Retries int
	Timeout time.Duration
	Now     func() time.Time
}

// NewService returns a Service with default retries and wall clock.
func NewService(store registry.Store, timeout time.Duration) *Service {
	return &Service{Store: store, Retries: registry.DefaultRetries, Timeout: timeout, Now: time.Now}
}

// Apply validates req and appends the boost with compare-and-swap. A policy
// violation is returned before the registry is touched.
func (s *Service) Apply(ctx context.Context, req model.BoostRequest) (model.BoostResponse, error) {
	if err := Validate(req); err != nil {
		return model.BoostResponse{Accepted: false, Symbol: model.NormalizeSymbol(req.Symbol)}, err
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	now := s.Now()
	sym := model.NormalizeSymbol(req.Symbol)
	var applied model.Boost
	st, err := registry.Update(ctx, s.Store, sym, s.Retries, func(st *model.SymbolState) (bool, error) {
		// Expired boosts go at the same time so the list never grows unbounded.
		Prune(st, now)
		b, err := Apply(st, req, now)
		if err != nil {
			return false, err
		}
		applied = b
		return true, nil
	})
	if errors.Is(err, registry.ErrNotFound) {
		return model.BoostResponse{Accepted: false, Symbol: sym}, fmt.Errorf("%w: %s", ErrSymbolNotFound, sym)
	}
	if err != nil {
		return model.BoostResponse{Accepted: false, Symbol: sym}, fmt.Errorf("apply boost to %s: %w", sym, err)
	}

	log.Info().
		Str("symbol", sym).
		Str("kind", applied.Kind).
		Int("weight", applied.Weight).
		Str("source", applied.Source).
		Time("expires_at", applied.ExpiresAt).
		Msg("boost applied")

	return model.BoostResponse{
		Accepted:               true,
		Symbol:                 sym,
		EffectivePriority:      EffectivePriority(st, now),
		EffectivePriorityLabel: Label(st, now),
		ExpiresAt:              applied.ExpiresAt,
	}, nil
}
