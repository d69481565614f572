package ingest

import (
	"embed"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/providers.yaml
var providersYAML embed.FS

// ProviderRegistry holds the configuration for all provider adapters.
type ProviderRegistry struct {
	Scraping  ScrapingConfig   `yaml:"scraping"`
	Providers []ProviderConfig `yaml:"providers"`
}

type ScrapingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	UserAgent string `yaml:"user_agent,omitempty"`
}

// FetchConfig defines retrieval and throttling for one provider.
type FetchConfig struct {
	TimeoutSeconds  int  `yaml:"timeout_seconds,omitempty"`  // Default: 30
	RequestDelayMs  int  `yaml:"request_delay_ms,omitempty"` // Fixed delay between requests, default: 2000
	MaxConcurrency  int  `yaml:"max_concurrency,omitempty"`  // Default: 2
	BrowserFallback bool `yaml:"browser_fallback"`
}

// ProviderConfig defines a single provider adapter.
type ProviderConfig struct {
	Code    string      `yaml:"code"`
	Name    string      `yaml:"name"`
	BaseURL string      `yaml:"base_url"`
	Enabled bool        `yaml:"enabled"`
	Fetch   FetchConfig `yaml:"fetch,omitempty"`
}

func (c FetchConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c FetchConfig) RequestDelay() time.Duration {
	if c.RequestDelayMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

func (c FetchConfig) Concurrency() int {
	if c.MaxConcurrency <= 0 {
		return 2
	}
	return c.MaxConcurrency
}

// LoadProviderRegistry reads the embedded providers.yaml, or the file at
// path when one is given.
func LoadProviderRegistry(path string) (*ProviderRegistry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = providersYAML.ReadFile("config/providers.yaml")
	}
	if err != nil {
		return nil, err
	}
	return ParseProviderRegistry(data)
}

func ParseProviderRegistry(data []byte) (*ProviderRegistry, error) {
	// Expand environment variables within the YAML content (e.g. ${HAVEN_BASE_URL})
	expanded := os.ExpandEnv(string(data))

	var reg ProviderRegistry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}
	for i := range reg.Providers {
		reg.Providers[i].Code = strings.ToLower(strings.TrimSpace(reg.Providers[i].Code))
	}
	return &reg, nil
}
