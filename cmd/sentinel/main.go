package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/config"
	"RefreshSentinel/internal/decision"
	"RefreshSentinel/internal/executor"
	"RefreshSentinel/internal/health"
	"RefreshSentinel/internal/logging"
	"RefreshSentinel/internal/metrics"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/notifier"
	"RefreshSentinel/internal/policy"
	"RefreshSentinel/internal/recorder"
	"RefreshSentinel/internal/registry"
	"RefreshSentinel/internal/scheduler"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Budget-aware refresh scheduler for market symbols",
	Long: `sentinel decides which symbols are due for a data refresh, admits
them under a per-run budget and hands them to the ingestion pipeline.

Examples:
  sentinel serve
  sentinel run --symbol INFY --symbol TCS
  sentinel boost INFY --weight 2 --ttl 6
  sentinel status INFY`,
	SilenceUsage: true,
}

func init() {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", def, "Path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    registry.Store
	boosts   *boost.Service
	runner   *scheduler.Runner
	exec     executor.Executor
	recorder recorder.Recorder
	metrics  *metrics.Metrics
	telegram *notifier.TelegramNotifier
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("config validation: %w", err)
	}
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger, metrics: metrics.New()}

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Registry.Driver).Msg("registry ready")

	if cfg.Registry.SymbolsFile != "" {
		symbols, err := registry.LoadSymbolsFile(cfg.Registry.SymbolsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		n, err := registry.Seed(ctx, a.store, symbols, cfg.Scheduler.DefaultPriority)
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info().Int("created", n).Int("listed", len(symbols)).Msg("registry seeded")
	}

	var gate health.Gate
	if cfg.Health.URL != "" {
		gate = health.NewHTTPGate(cfg.Health.URL, cfg.Executor.APIKey, cfg.Scheduler.HealthTimeout)
	} else {
		gate = health.Static(model.HealthStatus(cfg.Health.Static))
		log.Warn().Str("status", cfg.Health.Static).Msg("no health url configured, using a static gate")
	}

	var httpExec *executor.HTTPExecutor
	if cfg.Executor.URL != "" {
		httpExec = executor.NewHTTPExecutor(executor.HTTPConfig{
			BaseURL:       cfg.Executor.URL,
			APIKey:        cfg.Executor.APIKey,
			Timeout:       cfg.Executor.Timeout,
			RetryDelay:    cfg.Executor.RetryDelay,
			RatePerSecond: cfg.Executor.RatePerSecond,
			Burst:         cfg.Executor.Burst,
			Workers:       cfg.Executor.Workers,
		}, nil)
		a.exec = httpExec
	} else {
		// dry run: batches are logged and recorded but nothing is ingested
		a.exec = &executor.Mock{}
		log.Warn().Msg("no executor url configured, admitted batches will not be ingested")
	}

	cooldown := policy.Cooldown{Base: cfg.Scheduler.CooldownBase, Max: cfg.Scheduler.CooldownMax}
	a.runner = scheduler.NewRunner(scheduler.Config{
		MaxPerRun:          cfg.Scheduler.MaxPerRun,
		FailingAfter:       cfg.Scheduler.FailingAfter,
		OutcomeRetries:     cfg.Scheduler.OutcomeRetries,
		HealthTimeout:      cfg.Scheduler.HealthTimeout,
		RegistryTimeout:    cfg.Scheduler.RegistryTimeout,
		HealthRecheckEvery: cfg.Scheduler.HealthRecheckEvery,
		StateFile:          cfg.StateFile,
	}, a.store, gate, a.exec, decision.NewEngine(cooldown), logger)
	a.runner.Metrics = a.metrics
	if httpExec != nil {
		httpExec.SetOutcomeFunc(a.runner.OnOutcome)
	}

	a.recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		if err := ensureDir(cfg.Database.SQLitePath); err != nil {
			log.Warn().Err(err).Msg("create history directory")
		}
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			a.recorder = sr
		}
	}
	a.runner.Recorder = a.recorder

	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		a.runner.Alerter = a.telegram
	}

	a.boosts = boost.NewService(a.store, cfg.Scheduler.RegistryTimeout)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (registry.Store, error) {
	switch cfg.Registry.Driver {
	case "memory":
		return registry.NewMemoryStore(), nil
	case "redis":
		r := cfg.Registry.Redis
		return registry.NewRedisStore(ctx, r.Addr, r.Password, r.DB, r.Prefix)
	case "mongo":
		return registry.NewMongoStore(ctx, cfg.Registry.Mongo.URI, cfg.Registry.Mongo.Database, cfg.Registry.Mongo.Collection)
	default:
		if err := ensureDir(cfg.Registry.SQLite.Path); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
		return registry.NewSQLiteStore(cfg.Registry.SQLite.Path)
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Close waits for in-flight ingestion and releases storage.
func (a *app) Close() {
	if a.exec != nil {
		a.exec.Wait()
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			log.Error().Err(err).Msg("close recorder")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Error().Err(err).Msg("close registry")
		}
	}
}
