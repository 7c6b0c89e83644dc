package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_YAMLAndDefaults(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  max_per_run: 25
  cooldown_base: 10m
registry:
  driver: redis
  redis:
    addr: localhost:6379
executor:
  url: http://ingest.local
  workers: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25, cfg.Scheduler.MaxPerRun)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.CooldownBase)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.CooldownMax)
	assert.Equal(t, "0 */15 * * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 2, cfg.Scheduler.FailingAfter)
	assert.Equal(t, "sentinel:", cfg.Registry.Redis.Prefix)
	assert.Equal(t, "http://ingest.local", cfg.Health.URL, "health defaults to the ingest host")
	assert.Equal(t, 4, cfg.Executor.Workers)
	assert.Equal(t, 2*time.Second, cfg.Executor.RetryDelay)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "registry:\n  driver: sqlite\n")
	t.Setenv("REGISTRY_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("MAX_PER_RUN", "3")
	t.Setenv("INGEST_RATE_LIMIT_SECONDS", "4")
	t.Setenv("HEALTH_URL", "http://health.local")
	t.Setenv("RUN_ON_START", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mongo", cfg.Registry.Driver)
	assert.Equal(t, 3, cfg.Scheduler.MaxPerRun)
	assert.InDelta(t, 0.25, cfg.Executor.RatePerSecond, 1e-9)
	assert.True(t, cfg.Scheduler.RunOnStart)

	t.Setenv("MAX_PER_RUN", "lots")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Registry.Driver)
	assert.Error(t, cfg.Validate(), "no health source configured")

	cfg.Health.Static = "healthy"
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, "health:\n  static: degraded\n"))
		require.NoError(t, err)
		return cfg
	}
	require.NoError(t, base().Validate())
	unlimited := base()
	unlimited.Scheduler.MaxPerRun = -1
	require.NoError(t, unlimited.Validate())

	cases := map[string]func(*Config){
		"unknown driver":   func(c *Config) { c.Registry.Driver = "etcd" },
		"redis no addr":    func(c *Config) { c.Registry.Driver = "redis" },
		"mongo no uri":     func(c *Config) { c.Registry.Driver = "mongo" },
		"priority 6":       func(c *Config) { c.Scheduler.DefaultPriority = 6 },
		"cooldown inverse": func(c *Config) { c.Scheduler.CooldownMax = time.Minute },
		"bad static":       func(c *Config) { c.Health.Static = "fine" },
		"half telegram":    func(c *Config) { c.Telegram.BotToken = "t" },
		"negative recheck": func(c *Config) { c.Scheduler.HealthRecheckEvery = -1 },
		"budget below -1":  func(c *Config) { c.Scheduler.MaxPerRun = -2 },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "scheduler: [unclosed"))
	assert.Error(t, err)
}
