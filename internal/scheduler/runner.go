package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/budget"
	"RefreshSentinel/internal/decision"
	"RefreshSentinel/internal/executor"
	"RefreshSentinel/internal/health"
	"RefreshSentinel/internal/metrics"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/notifier"
	"RefreshSentinel/internal/recorder"
	"RefreshSentinel/internal/registry"
	"RefreshSentinel/internal/state"
)

var (
	// ErrRegistry wraps every registry failure that ended a run.
	ErrRegistry       = errors.New("registry failure")
	ErrAlreadyRunning = errors.New("a run is already in progress")
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// Config holds the run loop knobs.
type Config struct {
	MaxPerRun          int
	FailingAfter       int
	OutcomeRetries     int
	HealthTimeout      time.Duration
	RegistryTimeout    time.Duration
	HealthRecheckEvery int
	StateFile          string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxPerRun:       10,
		FailingAfter:    2,
		OutcomeRetries:  registry.DefaultRetries,
		HealthTimeout:   30 * time.Second,
		RegistryTimeout: 10 * time.Second,
	}
}

// RunOptions narrows a single run.
type RunOptions struct {
	// Symbols restricts the run to these symbols. Empty means the whole registry.
	Symbols []string
}

// Runner executes scheduler runs and applies executor outcomes.
type Runner struct {
	Store    registry.Store
	Gate     health.Gate
	Executor executor.Executor
	Engine   *decision.Engine
	Recorder recorder.Recorder
	Alerter  notifier.Alerter
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Now      func() time.Time
	NewID    func() string

	cfg Config

	mu      sync.Mutex
	running bool
	last    *model.RunSummary
}

// NewRunner wires a runner with no-op recorder and alerter. Callers replace
// the optional collaborators before the first run.
func NewRunner(cfg Config, store registry.Store, gate health.Gate, exec executor.Executor, engine *decision.Engine, logger zerolog.Logger) *Runner {
	if cfg.FailingAfter < 1 {
		cfg.FailingAfter = 2
	}
	if cfg.OutcomeRetries < 0 {
		cfg.OutcomeRetries = registry.DefaultRetries
	}
	return &Runner{
		Store:    store,
		Gate:     gate,
		Executor: exec,
		Engine:   engine,
		Recorder: recorder.NewNoopRecorder(),
		Alerter:  notifier.Discard{},
		Log:      logger,
		Now:      time.Now,
		NewID:    uuid.NewString,
		cfg:      cfg,
	}
}

// Config returns the runner settings.
func (r *Runner) Config() Config { return r.cfg }

// LastRun returns the most recent summary, falling back to the state file.
func (r *Runner) LastRun() (*model.RunSummary, error) {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	if last != nil {
		cp := *last
		return &cp, nil
	}
	if r.cfg.StateFile == "" {
		return nil, nil
	}
	return state.LoadLastRun(r.cfg.StateFile)
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) release(sum model.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.last = &sum
}

func (r *Runner) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// checkHealth asks the gate, failing closed on error or timeout.
func (r *Runner) checkHealth(ctx context.Context, runID string) (model.HealthStatus, error) {
	hctx, cancel := r.withTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()
	st, err := r.Gate.Check(hctx)
	if err != nil {
		r.Log.Error().Err(err).Str("run_id", runID).Msg("health gate failed, treating as unhealthy")
		st = model.HealthUnhealthy
	}
	r.Metrics.ObserveHealth(st)
	return st, err
}

// Run executes one pass: health gate, prune, decide, allocate, hand off.
// It returns once the batch is handed to the executor, not when the batch
// finishes refreshing. A registry failure aborts the run with ErrRegistry
// and nothing is submitted.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (model.RunSummary, error) {
	if !r.acquire() {
		return model.RunSummary{}, ErrAlreadyRunning
	}

	now := r.Now()
	sum := model.RunSummary{RunID: r.NewID(), StartedAt: now}
	logger := r.Log.With().Str("run_id", sum.RunID).Logger()

	err := r.run(ctx, logger, now, opts, &sum)
	sum.FinishedAt = r.Now()
	if err != nil {
		sum.Status = model.RunFailed
		sum.Error = err.Error()
	}
	r.finish(ctx, logger, sum)
	r.release(sum)
	return sum, err
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, now time.Time, opts RunOptions, sum *model.RunSummary) error {
	sum.Health, _ = r.checkHealth(ctx, sum.RunID)
	if !sum.Health.AllowsRun() {
		sum.Status = model.RunSkipped
		sum.Reason = string(model.HealthUnhealthy)
		return nil
	}

	states, err := r.load(ctx, logger, opts.Symbols)
	if err != nil {
		return err
	}

	decided := make([]model.Decision, 0, len(states))
	aborted := false
	for i, st := range states {
		if r.cfg.HealthRecheckEvery > 0 && i > 0 && i%r.cfg.HealthRecheckEvery == 0 {
			if h, _ := r.checkHealth(ctx, sum.RunID); !h.AllowsRun() {
				sum.Health = h
				aborted = true
				for _, rest := range states[i:] {
					decided = append(decided, model.Decision{
						Symbol:            rest.Symbol,
						Action:            model.ActionSkip,
						EffectivePriority: boost.EffectivePriority(rest, now),
						Reason:            model.Reason{Code: model.ReasonRunAborted},
					})
				}
				break
			}
		}

		pruned, err := r.prune(ctx, st, now)
		if err != nil {
			return err
		}
		decided = append(decided, r.Engine.Decide(pruned, now))
	}

	var candidates []model.Decision
	for _, d := range decided {
		if d.Action == model.ActionRun {
			candidates = append(candidates, d)
		}
	}

	// Symbols decided before an abort keep their decision.
	sum.Status = model.RunCompleted
	if aborted {
		sum.Status = model.RunAborted
		sum.Reason = "health gate reported " + string(sum.Health) + " mid-run"
	}
	admitted, deferred := budget.Allocate(candidates, r.cfg.MaxPerRun)

	final := make(map[string]model.Decision, len(deferred))
	for _, d := range deferred {
		final[d.Symbol] = d
	}
	for i, d := range decided {
		if f, ok := final[d.Symbol]; ok {
			decided[i] = f
		}
	}

	for _, d := range decided {
		ev := logger.Info()
		if d.Reason.Code == model.ReasonEvaluationError {
			ev = logger.Warn()
		}
		ev.Str("symbol", d.Symbol).
			Str("action", string(d.Action)).
			Str("reason_code", d.Reason.Code.Name()).
			Int("priority", d.EffectivePriority).
			Msg(d.LogLine())
		r.Metrics.ObserveDecision(d)

		sum.Evaluated++
		switch {
		case d.Action == model.ActionRun:
		case d.Reason.Code == model.ReasonBudgetExhausted:
			sum.Deferred++
		case d.Reason.Code == model.ReasonRunAborted:
			sum.Aborted++
		default:
			sum.Skipped++
		}
	}
	if err := r.Recorder.RecordDecisions(sum.RunID, decided); err != nil {
		logger.Error().Err(err).Msg("record decisions")
	}

	sum.Admitted = len(admitted)
	sum.Symbols = budget.Symbols(admitted)
	if err := sum.Check(); err != nil {
		logger.Error().Err(err).Msg("run summary does not account for every decision")
	}
	if len(admitted) == 0 {
		return nil
	}

	var skipped []model.Decision
	for _, d := range decided {
		if d.Action == model.ActionSkip {
			skipped = append(skipped, d)
		}
	}
	batch := model.Batch{RunID: sum.RunID, Admitted: sum.Symbols, Skipped: skipped}
	if err := r.Executor.Submit(ctx, batch); err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}
	return nil
}

// load reads the states a run evaluates. Explicitly requested symbols that
// are not in the registry are logged and left out.
func (r *Runner) load(ctx context.Context, logger zerolog.Logger, symbols []string) ([]model.SymbolState, error) {
	rctx, cancel := r.withTimeout(ctx, r.cfg.RegistryTimeout)
	defer cancel()

	if len(symbols) == 0 {
		entries, err := r.Store.GetAll(rctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list symbols: %w", ErrRegistry, err)
		}
		out := make([]model.SymbolState, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.State)
		}
		return out, nil
	}

	seen := make(map[string]bool, len(symbols))
	out := make([]model.SymbolState, 0, len(symbols))
	for _, raw := range symbols {
		sym := model.NormalizeSymbol(raw)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		e, err := r.Store.Get(rctx, sym)
		if errors.Is(err, registry.ErrNotFound) {
			logger.Warn().Str("symbol", sym).Msg("requested symbol not in registry, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get %s: %w", ErrRegistry, sym, err)
		}
		out = append(out, e.State)
	}
	return out, nil
}

// prune drops expired boosts and persists the change. A state with nothing
// to prune is not written.
func (r *Runner) prune(ctx context.Context, st model.SymbolState, now time.Time) (model.SymbolState, error) {
	probe := st.Clone()
	if !boost.Prune(&probe, now) {
		return st, nil
	}
	rctx, cancel := r.withTimeout(ctx, r.cfg.RegistryTimeout)
	defer cancel()
	next, err := registry.Update(rctx, r.Store, st.Symbol, r.cfg.OutcomeRetries, func(s *model.SymbolState) (bool, error) {
		return boost.Prune(s, now), nil
	})
	if err != nil {
		return model.SymbolState{}, fmt.Errorf("%w: prune %s: %w", ErrRegistry, st.Symbol, err)
	}
	return next, nil
}

func (r *Runner) finish(ctx context.Context, logger zerolog.Logger, sum model.RunSummary) {
	ev := logger.Info()
	if sum.Status == model.RunFailed {
		ev = logger.Error().Str("error", sum.Error)
	}
	ev.Str("status", string(sum.Status)).
		Int("admitted", sum.Admitted).
		Int("deferred", sum.Deferred).
		Int("skipped", sum.Skipped).
		Int("aborted", sum.Aborted).
		Dur("took", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg(sum.Line())

	r.Metrics.ObserveRun(sum)
	if err := r.Recorder.RecordRun(&sum); err != nil {
		logger.Error().Err(err).Msg("record run")
	}
	if r.cfg.StateFile != "" {
		if err := state.SaveLastRun(r.cfg.StateFile, &sum); err != nil {
			logger.Error().Err(err).Str("path", r.cfg.StateFile).Msg("write last-run state")
		}
	}
	if sum.Status == model.RunFailed || sum.Status == model.RunAborted {
		if err := r.Alerter.Alert(ctx, notifier.FormatRunSummary(&sum)); err != nil {
			logger.Error().Err(err).Msg("send run alert")
		}
	}
}
