package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/notifier"
	"RefreshSentinel/internal/registry"
)

// cronLogger routes robfig/cron's logging into zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// Scheduler triggers runner passes on a cron schedule.
type Scheduler struct {
	Cron   *cron.Cron
	Runner *Runner
	Ctx    context.Context
	log    zerolog.Logger
}

// NewScheduler creates a Scheduler. A tick that fires while the previous
// pass is still going is skipped.
func NewScheduler(ctx context.Context, runner *Runner, logger zerolog.Logger) *Scheduler {
	cl := cronLogger{log: logger}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Runner: runner,
		Ctx:    ctx,
		log:    logger,
	}
}

// Register adds the refresh run at spec (six fields, seconds first).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running pass to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow executes one pass immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow(symbols ...string) (model.RunSummary, error) {
	return s.Runner.Run(s.Ctx, RunOptions{Symbols: symbols})
}

func (s *Scheduler) tick() {
	if _, err := s.RunNow(); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.log.Warn().Msg("previous run still in progress, tick skipped")
			return
		}
		s.log.Error().Err(err).Msg("scheduled run failed")
	}
}

// HandleCommand processes an operator chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.Help()
	}
	switch fields[0] {
	case "/last":
		last, err := s.Runner.LastRun()
		if err != nil {
			return fmt.Sprintf("❌ read last run: %v", err)
		}
		return notifier.FormatRunSummary(last)
	case "/run":
		go s.tick()
		return "▶️ Refresh run triggered"
	case "/symbol":
		if len(fields) < 2 {
			return "Usage: /symbol SYMBOL"
		}
		e, err := s.Runner.Store.Get(ctx, fields[1])
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Sprintf("Unknown symbol %s", model.NormalizeSymbol(fields[1]))
		}
		if err != nil {
			return fmt.Sprintf("❌ registry: %v", err)
		}
		now := s.Runner.Now()
		return notifier.FormatSymbol(e.State, boost.EffectivePriority(e.State, now), boost.Label(e.State, now))
	default:
		return notifier.Help()
	}
}
