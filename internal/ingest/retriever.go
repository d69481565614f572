package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/david/holiday-watch/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ExtractFunc parses a fetched page and reports how many items it found.
// Zero items is a valid answer that triggers the browser fallback.
type ExtractFunc func(body []byte) (int, error)

// Retriever is the shared retrieval policy every adapter composes: a
// concurrency cap, a fixed delay between requests, an advisory robots.txt
// check, then plain HTTP with a headless browser behind it.
type Retriever struct {
	provider string
	primary  Fetcher
	fallback Fetcher
	robots   *RobotsChecker
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	log      *logrus.Entry
}

type RetrieverOptions struct {
	Provider       string
	Primary        Fetcher
	Fallback       Fetcher // nil disables the browser path
	Robots         *RobotsChecker
	RequestDelay   time.Duration
	MaxConcurrency int
}

func NewRetriever(opts RetrieverOptions) *Retriever {
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Retriever{
		provider: opts.Provider,
		primary:  opts.Primary,
		fallback: opts.Fallback,
		robots:   opts.Robots,
		limiter:  rate.NewLimiter(limit, 1),
		sem:      semaphore.NewWeighted(int64(concurrency)),
		log:      logrus.WithFields(logrus.Fields{"component": "retriever", "provider": opts.Provider}),
	}
}

// Retrieve fetches target and runs extract over it, falling back to the
// browser on a transport error, a non-2xx status, or an empty extraction.
func (r *Retriever) Retrieve(ctx context.Context, target string, extract ExtractFunc) (FetchMeta, error) {
	meta := FetchMeta{URL: target, Mode: ModeHTTP, RobotsAllowed: true}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return meta, &FetchError{URL: target, Mode: ModeHTTP, Err: err}
	}
	defer r.sem.Release(1)

	if r.robots != nil {
		verdict := r.robots.Check(ctx, target)
		meta.RobotsChecked = verdict.Checked
		meta.RobotsAllowed = verdict.Allowed
		if !verdict.Allowed {
			r.log.WithField("url", target).Warn("robots.txt disallows this path; continuing (advisory only)")
		}
	}

	started := time.Now()
	items, status, primaryErr := r.attempt(ctx, r.primary, target, extract, &meta)
	meta.StatusCode = status
	if primaryErr == nil && items > 0 {
		meta.ItemCount = items
		meta.FetchDuration = time.Since(started) - meta.ParseDuration
		return meta, nil
	}

	if r.fallback == nil {
		meta.FetchDuration = time.Since(started) - meta.ParseDuration
		return meta, primaryErr
	}

	r.log.WithFields(logrus.Fields{
		"url":   target,
		"items": items,
		"error": primaryErr,
	}).Info("Falling back to headless browser")
	metrics.BrowserFallbacks.WithLabelValues(r.provider).Inc()

	meta.Mode = ModeBrowser
	meta.UsedFallback = true
	items, status, fallbackErr := r.attempt(ctx, r.fallback, target, extract, &meta)
	meta.StatusCode = status
	meta.ItemCount = items
	meta.FetchDuration = time.Since(started) - meta.ParseDuration

	if fallbackErr != nil {
		if primaryErr != nil {
			return meta, errors.Join(primaryErr, fallbackErr)
		}
		return meta, fallbackErr
	}
	return meta, nil
}

func (r *Retriever) attempt(ctx context.Context, f Fetcher, target string, extract ExtractFunc, meta *FetchMeta) (int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, 0, &FetchError{URL: target, Mode: meta.Mode, Err: err}
	}

	doc, err := f.Fetch(ctx, target)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return 0, fe.StatusCode, err
		}
		return 0, 0, &FetchError{URL: target, Mode: meta.Mode, Err: err}
	}
	defer doc.Body.Close()

	if doc.StatusCode < 200 || doc.StatusCode > 299 {
		return 0, doc.StatusCode, &FetchError{URL: target, Mode: meta.Mode, StatusCode: doc.StatusCode}
	}

	body, err := io.ReadAll(doc.Body)
	if err != nil {
		return 0, doc.StatusCode, &FetchError{URL: target, Mode: meta.Mode, Err: err}
	}

	parseStart := time.Now()
	n, err := extract(body)
	meta.ParseDuration += time.Since(parseStart)
	if err != nil {
		return 0, doc.StatusCode, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return n, doc.StatusCode, nil
}
