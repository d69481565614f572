package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/models"
	"github.com/sirupsen/logrus"
)

// ProviderAdapter is the single Adapter implementation. Everything that
// differs between booking sites lives in its SiteParser; retrieval policy
// lives in its Retriever.
type ProviderAdapter struct {
	cfg        ProviderConfig
	parser     SiteParser
	retriever  *Retriever
	browser    *BrowserFetcher
	scrapingOn func() bool
	log        *logrus.Entry
}

// AdapterOptions carries what every adapter shares.
type AdapterOptions struct {
	UserAgent   string
	BrowserPath string
	// ScrapingEnabled is consulted on every IsEnabled call so the global
	// switch can change at runtime. Nil means enabled.
	ScrapingEnabled func() bool
	Robots          *RobotsChecker
	// Primary overrides the plain HTTP fetcher; tests point it at httptest.
	Primary Fetcher
	// Fallback overrides the browser fetcher.
	Fallback Fetcher
}

func NewProviderAdapter(cfg ProviderConfig, parser SiteParser, opts AdapterOptions) *ProviderAdapter {
	primary := opts.Primary
	if primary == nil {
		primary = NewCollyFetcher(opts.UserAgent, cfg.Fetch.Timeout())
	}

	a := &ProviderAdapter{
		cfg:        cfg,
		parser:     parser,
		scrapingOn: opts.ScrapingEnabled,
		log:        logrus.WithFields(logrus.Fields{"component": "adapter", "provider": cfg.Code}),
	}

	fallback := opts.Fallback
	if fallback == nil && cfg.Fetch.BrowserFallback {
		a.browser = NewBrowserFetcher(opts.UserAgent, opts.BrowserPath, cfg.Fetch.Timeout())
		a.browser.WaitSelector = parser.WaitSelector()
		fallback = a.browser
	}

	a.retriever = NewRetriever(RetrieverOptions{
		Provider:       cfg.Code,
		Primary:        primary,
		Fallback:       fallback,
		Robots:         opts.Robots,
		RequestDelay:   cfg.Fetch.RequestDelay(),
		MaxConcurrency: cfg.Fetch.Concurrency(),
	})
	return a
}

func (a *ProviderAdapter) Code() string { return a.cfg.Code }

func (a *ProviderAdapter) Name() string { return a.cfg.Name }

func (a *ProviderAdapter) IsEnabled() bool {
	if a.scrapingOn != nil && !a.scrapingOn() {
		return false
	}
	return a.cfg.Enabled
}

// Search runs one provider search. Candidates missing a confident price,
// arrival date or night count are dropped here so callers only see rows
// the matcher can reason about.
func (a *ProviderAdapter) Search(ctx context.Context, intent models.SearchIntent) ([]models.RawCandidate, FetchMeta, error) {
	target, err := a.parser.BuildSearchURL(a.cfg.BaseURL, intent)
	if err != nil {
		return nil, FetchMeta{}, fmt.Errorf("build search url: %w", err)
	}

	var candidates []models.RawCandidate
	meta, err := a.retriever.Retrieve(ctx, target, func(body []byte) (int, error) {
		parsed, err := a.parser.ParseSearchResults(body, intent)
		if err != nil {
			return 0, err
		}
		candidates = keepConfident(a.cfg.Code, target, parsed)
		return len(candidates), nil
	})
	if err != nil {
		return nil, meta, err
	}

	a.log.WithFields(logrus.Fields{
		"url":        target,
		"mode":       meta.Mode,
		"candidates": len(candidates),
	}).Debug("Search complete")
	return candidates, meta, nil
}

func (a *ProviderAdapter) FetchOffers(ctx context.Context) ([]models.Offer, FetchMeta, error) {
	target := a.parser.BuildOffersURL(a.cfg.BaseURL)
	if target == "" {
		return nil, FetchMeta{}, nil
	}

	var offers []models.Offer
	meta, err := a.retriever.Retrieve(ctx, target, func(body []byte) (int, error) {
		parsed, err := a.parser.ParseOffers(body)
		if err != nil {
			return 0, err
		}
		offers = offers[:0]
		for _, o := range parsed {
			o.ProviderCode = a.cfg.Code
			o.Title = cleanText(o.Title)
			o.Description = cleanText(o.Description)
			o.PromoCode = strings.ToUpper(cleanText(o.PromoCode))
			if o.Title == "" {
				continue
			}
			if o.URL = resolveLink(target, o.URL); o.URL == "" {
				o.URL = target
			}
			if o.ObservedAt.IsZero() {
				o.ObservedAt = time.Now().UTC()
			}
			offers = append(offers, o)
		}
		return len(offers), nil
	})
	if err != nil {
		return nil, meta, err
	}
	return offers, meta, nil
}

// Cleanup releases the adapter's browser, if one was started.
func (a *ProviderAdapter) Cleanup() error {
	if a.browser == nil {
		return nil
	}
	return a.browser.Close()
}

func keepConfident(provider, sourceURL string, parsed []models.RawCandidate) []models.RawCandidate {
	out := make([]models.RawCandidate, 0, len(parsed))
	for _, c := range parsed {
		if c.PriceTotal <= 0 || c.StayStartDate == "" || c.Nights < 1 {
			continue
		}
		c.ProviderCode = provider
		if c.SourceURL = resolveLink(sourceURL, c.SourceURL); c.SourceURL == "" {
			c.SourceURL = sourceURL
		}
		if c.Availability == "" {
			c.Availability = models.AvailabilityUnknown
		}
		out = append(out, c)
	}
	return out
}
