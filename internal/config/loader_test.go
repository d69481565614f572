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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/holiday_watch
scheduler:
  interval: 30m
workers:
  monitor_concurrency: 4
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/holiday_watch", cfg.Database.URL)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 4, cfg.Workers.MonitorConcurrency)
	assert.Equal(t, 5, cfg.Workers.InsightConcurrency)
	assert.Equal(t, 10, cfg.Workers.AlertConcurrency)
	assert.Equal(t, "hw", cfg.Redis.Prefix)
	assert.Equal(t, 24*time.Hour, cfg.Redis.DedupeTTL)
	assert.Equal(t, "log", cfg.Notify.Mode)
	assert.True(t, cfg.Scraping.Enabled)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: ${HW_TEST_PG}
`)
	t.Setenv("HW_TEST_PG", "postgres://expanded/db")
	t.Setenv("HW_WORKERS_ALERT_CONCURRENCY", "3")
	t.Setenv("HW_SCRAPING_ENABLED", "false")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://expanded/db", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Workers.AlertConcurrency)
	assert.False(t, cfg.Scraping.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{URL: "postgres://x"},
			Redis:     RedisConfig{Address: "localhost:6379"},
			Scheduler: SchedulerConfig{Interval: time.Hour},
			Workers:   WorkersConfig{MonitorConcurrency: 2, InsightConcurrency: 5, AlertConcurrency: 10, MaxAttempts: 3},
			Notify:    NotifyConfig{Mode: "log"},
		}
	}
	require.NoError(t, Validate(valid()))

	cases := map[string]func(c *Config){
		"missing database": func(c *Config) { c.Database.URL = "" },
		"tight interval":   func(c *Config) { c.Scheduler.Interval = time.Second },
		"zero workers":     func(c *Config) { c.Workers.AlertConcurrency = 0 },
		"aws without from": func(c *Config) { c.Notify.Mode = "aws" },
		"unknown notifier": func(c *Config) { c.Notify.Mode = "pigeon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, Validate(c))
		})
	}
}
