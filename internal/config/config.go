package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"RefreshSentinel/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Scheduler struct {
		Cron               string        `yaml:"cron"`
		MaxPerRun          int           `yaml:"max_per_run"` // -1 disables the budget
		DefaultPriority    int           `yaml:"default_priority"`
		CooldownBase       time.Duration `yaml:"cooldown_base"`
		CooldownMax        time.Duration `yaml:"cooldown_max"`
		FailingAfter       int           `yaml:"failing_after"`
		OutcomeRetries     int           `yaml:"outcome_retries"`
		HealthRecheckEvery int           `yaml:"health_recheck_every"`
		HealthTimeout      time.Duration `yaml:"health_timeout"`
		RegistryTimeout    time.Duration `yaml:"registry_timeout"`
		RunOnStart         bool          `yaml:"run_on_start"`
	} `yaml:"scheduler"`
	Registry struct {
		Driver string `yaml:"driver"` // memory | sqlite | redis | mongo
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Mongo struct {
			URI        string `yaml:"uri"`
			Database   string `yaml:"database"`
			Collection string `yaml:"collection"`
		} `yaml:"mongo"`
		SymbolsFile string `yaml:"symbols_file"`
	} `yaml:"registry"`
	Health struct {
		URL    string `yaml:"url"`
		Static string `yaml:"static"` // used when url is empty
	} `yaml:"health"`
	Executor struct {
		URL           string        `yaml:"url"`
		APIKey        string        `yaml:"api_key"`
		Timeout       time.Duration `yaml:"timeout"`
		RetryDelay    time.Duration `yaml:"retry_delay"`
		RatePerSecond float64       `yaml:"rate_per_second"`
		Burst         int           `yaml:"burst"`
		Workers       int           `yaml:"workers"`
	} `yaml:"executor"`
	API struct {
		Listen string `yaml:"listen"`
		APIKey string `yaml:"api_key"`
	} `yaml:"api"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	StateFile string `yaml:"state_file"`
	Log       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"INGEST_BASE_URL":    &c.Executor.URL,
		"ADMIN_API_KEY":      &c.Executor.APIKey,
		"HEALTH_URL":         &c.Health.URL,
		"REGISTRY_DRIVER":    &c.Registry.Driver,
		"REDIS_ADDR":         &c.Registry.Redis.Addr,
		"REDIS_PASSWORD":     &c.Registry.Redis.Password,
		"MONGO_URI":          &c.Registry.Mongo.URI,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"REGISTRY_SQLITE":    &c.Registry.SQLite.Path,
		"SYMBOLS_FILE":       &c.Registry.SymbolsFile,
		"STATE_FILE":         &c.StateFile,
		"CRON_REFRESH":       &c.Scheduler.Cron,
		"API_LISTEN":         &c.API.Listen,
		"API_KEY":            &c.API.APIKey,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_PER_RUN":          &c.Scheduler.MaxPerRun,
		"FAILING_AFTER":        &c.Scheduler.FailingAfter,
		"HEALTH_RECHECK_EVERY": &c.Scheduler.HealthRecheckEvery,
		"INGEST_WORKERS":       &c.Executor.Workers,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("INGEST_RATE_LIMIT_SECONDS"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INGEST_RATE_LIMIT_SECONDS: %w", err)
		}
		if secs > 0 {
			c.Executor.RatePerSecond = 1 / secs
		}
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		c.Scheduler.RunOnStart = v == "true"
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 */15 * * * *"
	}
	if c.Scheduler.MaxPerRun == 0 {
		c.Scheduler.MaxPerRun = 10
	}
	if c.Scheduler.DefaultPriority == 0 {
		c.Scheduler.DefaultPriority = 3
	}
	if c.Scheduler.CooldownBase == 0 {
		c.Scheduler.CooldownBase = 5 * time.Minute
	}
	if c.Scheduler.CooldownMax == 0 {
		c.Scheduler.CooldownMax = 24 * time.Hour
	}
	if c.Scheduler.FailingAfter == 0 {
		c.Scheduler.FailingAfter = 2
	}
	if c.Scheduler.OutcomeRetries == 0 {
		c.Scheduler.OutcomeRetries = 3
	}
	if c.Scheduler.HealthTimeout == 0 {
		c.Scheduler.HealthTimeout = 30 * time.Second
	}
	if c.Scheduler.RegistryTimeout == 0 {
		c.Scheduler.RegistryTimeout = 10 * time.Second
	}
	if c.Registry.Driver == "" {
		c.Registry.Driver = "sqlite"
	}
	if c.Registry.SQLite.Path == "" {
		c.Registry.SQLite.Path = "data/registry.db"
	}
	if c.Registry.Redis.Prefix == "" {
		c.Registry.Redis.Prefix = "sentinel:"
	}
	if c.Registry.Mongo.Database == "" {
		c.Registry.Mongo.Database = "sentinel"
	}
	if c.Registry.Mongo.Collection == "" {
		c.Registry.Mongo.Collection = "symbols"
	}
	if c.Health.URL == "" && c.Executor.URL != "" {
		c.Health.URL = c.Executor.URL
	}
	if c.Executor.Timeout == 0 {
		c.Executor.Timeout = 30 * time.Second
	}
	if c.Executor.RetryDelay == 0 {
		c.Executor.RetryDelay = 2 * time.Second
	}
	if c.Executor.RatePerSecond == 0 {
		c.Executor.RatePerSecond = 0.5
	}
	if c.Executor.Burst == 0 {
		c.Executor.Burst = 1
	}
	if c.Executor.Workers == 0 {
		c.Executor.Workers = 1
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/refresh_history.db"
	}
	if c.StateFile == "" {
		c.StateFile = "data/last_run.json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Registry.Driver {
	case "memory", "sqlite":
	case "redis":
		if c.Registry.Redis.Addr == "" {
			return fmt.Errorf("registry.redis.addr is required for the redis driver")
		}
	case "mongo":
		if c.Registry.Mongo.URI == "" {
			return fmt.Errorf("registry.mongo.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("registry.driver %q is not one of memory, sqlite, redis, mongo", c.Registry.Driver)
	}
	if c.Scheduler.MaxPerRun < -1 {
		return fmt.Errorf("scheduler.max_per_run must be -1 (unlimited) or positive")
	}
	if c.Scheduler.DefaultPriority < 1 || c.Scheduler.DefaultPriority > 5 {
		return fmt.Errorf("scheduler.default_priority must be in [1,5]")
	}
	if c.Scheduler.CooldownBase <= 0 || c.Scheduler.CooldownMax < c.Scheduler.CooldownBase {
		return fmt.Errorf("scheduler.cooldown_base must be positive and not above cooldown_max")
	}
	if c.Scheduler.FailingAfter < 1 {
		return fmt.Errorf("scheduler.failing_after must be at least 1")
	}
	if c.Scheduler.OutcomeRetries < 0 || c.Scheduler.HealthRecheckEvery < 0 {
		return fmt.Errorf("scheduler.outcome_retries and health_recheck_every must not be negative")
	}
	if c.Health.URL == "" && c.Health.Static != "" {
		switch model.HealthStatus(c.Health.Static) {
		case model.HealthHealthy, model.HealthDegraded, model.HealthUnhealthy:
		default:
			return fmt.Errorf("health.static %q is not a health status", c.Health.Static)
		}
	}
	if c.Health.URL == "" && c.Health.Static == "" {
		return fmt.Errorf("health.url or health.static is required")
	}
	if c.Executor.Workers < 1 {
		return fmt.Errorf("executor.workers must be at least 1")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether operator alerts go to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
