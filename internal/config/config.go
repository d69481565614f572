package config

import "time"

// Config is the full runtime configuration shared by the binaries.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Scraping  ScrapingConfig  `mapstructure:"scraping"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Preview   PreviewConfig   `mapstructure:"preview"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AdminSecret     string        `mapstructure:"admin_secret"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Prefix    string        `mapstructure:"prefix"`
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// WorkersConfig sets queue concurrency. Monitor concurrency doubles as the
// global provider throttle.
type WorkersConfig struct {
	MonitorConcurrency   int           `mapstructure:"monitor_concurrency"`
	InsightConcurrency   int           `mapstructure:"insight_concurrency"`
	AlertConcurrency     int           `mapstructure:"alert_concurrency"`
	DealScanPerMinute    float64       `mapstructure:"deal_scan_per_minute"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	BaseBackoff          time.Duration `mapstructure:"base_backoff"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff"`
	MonitorJobsPerMinute float64       `mapstructure:"monitor_jobs_per_minute"`
}

type ScrapingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	UserAgent     string `mapstructure:"user_agent"`
	BrowserPath   string `mapstructure:"browser_path"`
	ProvidersFile string `mapstructure:"providers_file"`
}

type NotifyConfig struct {
	Mode      string `mapstructure:"mode"` // "log" or "aws"
	AWSRegion string `mapstructure:"aws_region"`
	FromEmail string `mapstructure:"from_email"`
	SMS       bool   `mapstructure:"sms"`
}

type PreviewConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
