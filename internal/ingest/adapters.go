package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ParserFactory builds the site-specific half of an adapter.
type ParserFactory func() SiteParser

// DefaultSiteParsers maps provider codes (from providers.yaml) to their
// parsers. Each call returns a new map.
func DefaultSiteParsers() map[string]ParserFactory {
	return map[string]ParserFactory{
		"hoseasons":   func() SiteParser { return &HoseasonsParser{} },
		"haven":       func() SiteParser { return &HavenParser{} },
		"centerparcs": func() SiteParser { return &CenterParcsParser{} },
		"parkdean":    func() SiteParser { return &ParkdeanParser{} },
	}
}

// AdapterRegistry maps provider codes to their single adapter instance.
// Lookups are case-insensitive.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[string]Adapter),
	}
}

func (r *AdapterRegistry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(adapter.Code())] = adapter
}

func (r *AdapterRegistry) Get(code string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("adapter not found: %s", code)
	}
	return adapter, nil
}

func (r *AdapterRegistry) Has(code string) bool {
	_, err := r.Get(code)
	return err == nil
}

// Codes returns every registered code, sorted.
func (r *AdapterRegistry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Enabled returns the adapters that are currently switched on, ordered by code.
func (r *AdapterRegistry) Enabled() []Adapter {
	var out []Adapter
	for _, code := range r.Codes() {
		adapter, _ := r.Get(code)
		if adapter.IsEnabled() {
			out = append(out, adapter)
		}
	}
	return out
}

// Cleanup releases every adapter's resources and reports all failures.
func (r *AdapterRegistry) Cleanup() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for code, adapter := range r.adapters {
		if err := adapter.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", code, err))
		}
	}
	return errors.Join(errs...)
}

// BuildAdapterRegistry creates one adapter per configured provider that has
// a parser in parsers, or in DefaultSiteParsers when parsers is nil.
// Providers without one are skipped with a warning.
func BuildAdapterRegistry(reg *ProviderRegistry, parsers map[string]ParserFactory, opts AdapterOptions) *AdapterRegistry {
	registry := NewAdapterRegistry()
	if parsers == nil {
		parsers = DefaultSiteParsers()
	}

	if opts.UserAgent == "" {
		opts.UserAgent = reg.Scraping.UserAgent
	}
	globalOn := opts.ScrapingEnabled
	opts.ScrapingEnabled = func() bool {
		if !reg.Scraping.Enabled {
			return false
		}
		return globalOn == nil || globalOn()
	}
	if opts.Robots == nil {
		opts.Robots = NewRobotsChecker(NewHTTPFetcher(opts.UserAgent, 10*time.Second), opts.UserAgent)
	}

	for _, provider := range reg.Providers {
		factory, ok := parsers[provider.Code]
		if !ok {
			logrus.WithField("provider", provider.Code).Warn("No parser registered for provider; skipping")
			continue
		}
		registry.Register(NewProviderAdapter(provider, factory(), opts))
	}
	return registry
}
