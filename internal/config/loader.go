package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "HW"

// Load reads .env, an optional configs/config.yaml and HW_ prefixed
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	return load(v)
}

// LoadFromFile is Load with an explicit config file.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyFallbacks(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "holiday-watch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.admin_secret", "")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "hw")
	v.SetDefault("redis.dedupe_ttl", 24*time.Hour)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Hour)

	v.SetDefault("workers.monitor_concurrency", 2)
	v.SetDefault("workers.insight_concurrency", 5)
	v.SetDefault("workers.alert_concurrency", 10)
	v.SetDefault("workers.deal_scan_per_minute", 6)
	v.SetDefault("workers.monitor_jobs_per_minute", 0)
	v.SetDefault("workers.max_attempts", 3)
	v.SetDefault("workers.base_backoff", 30*time.Second)
	v.SetDefault("workers.max_backoff", 30*time.Minute)

	v.SetDefault("scraping.enabled", true)
	v.SetDefault("scraping.user_agent", "HolidayWatchBot/1.0 (+https://holidaywatch.example/bot)")
	v.SetDefault("scraping.browser_path", "")
	v.SetDefault("scraping.providers_file", "")

	v.SetDefault("notify.mode", "log")
	v.SetDefault("notify.aws_region", "eu-west-2")
	v.SetDefault("notify.from_email", "")
	v.SetDefault("notify.sms", false)

	v.SetDefault("preview.timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// applyFallbacks honours the unprefixed variables most hosting platforms set.
func applyFallbacks(cfg *Config) {
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = os.Getenv("REDIS_ADDR")
	}
	if cfg.Server.AdminSecret == "" {
		cfg.Server.AdminSecret = os.Getenv("ADMIN_SECRET")
	}
	if p := os.Getenv("PORT"); p != "" && os.Getenv(EnvPrefix+"_SERVER_PORT") == "" {
		cfg.Server.Port = p
	}
}

func Validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required (set %s_DATABASE_URL)", EnvPrefix)
	}
	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}
	if cfg.Scheduler.Interval < time.Minute {
		return fmt.Errorf("scheduler.interval must be at least 1m, got %s", cfg.Scheduler.Interval)
	}
	for name, n := range map[string]int{
		"workers.monitor_concurrency": cfg.Workers.MonitorConcurrency,
		"workers.insight_concurrency": cfg.Workers.InsightConcurrency,
		"workers.alert_concurrency":   cfg.Workers.AlertConcurrency,
		"workers.max_attempts":        cfg.Workers.MaxAttempts,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, n)
		}
	}
	switch cfg.Notify.Mode {
	case "log":
	case "aws":
		if cfg.Notify.FromEmail == "" {
			return fmt.Errorf("notify.from_email is required when notify.mode is aws")
		}
	default:
		return fmt.Errorf("notify.mode must be log or aws, got %q", cfg.Notify.Mode)
	}
	return nil
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			logrus.WithField("path", path).Debug("Loaded .env")
			return
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok || !strings.Contains(s, "${") {
			continue
		}
		if expanded := os.ExpandEnv(s); expanded != s {
			v.Set(key, expanded)
		}
	}
}
