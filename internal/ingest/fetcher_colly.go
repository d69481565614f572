package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// CollyFetcher implements Fetcher with a Colly collector. It is the first,
// cheap retrieval path; robots.txt is handled by RobotsChecker instead.
type CollyFetcher struct {
	UserAgent      string
	MaxRetries     int
	RequestTimeout time.Duration
	MaxBodySize    int // bytes, 0 = unlimited
	DetectCharset  bool
}

// NewCollyFetcher creates a CollyFetcher with sensible defaults.
func NewCollyFetcher(userAgent string, timeout time.Duration) *CollyFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CollyFetcher{
		UserAgent:      userAgent,
		MaxRetries:     1,
		RequestTimeout: timeout,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		DetectCharset:  true,
	}
}

// buildCollector creates a configured Colly collector.
func (f *CollyFetcher) buildCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.StdlibContext(ctx),
	}
	if f.UserAgent != "" {
		opts = append(opts, colly.UserAgent(f.UserAgent))
	}
	if f.DetectCharset {
		opts = append(opts, colly.DetectCharset())
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(f.RequestTimeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-GB,en;q=0.8")
	})
	return c
}

// Fetch implements the Fetcher interface. Non-2xx responses are returned
// as *FetchError with the status code preserved.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	if _, err := url.Parse(targetURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if attempt > 0 {
			logrus.WithFields(logrus.Fields{
				"url":     targetURL,
				"attempt": attempt,
				"error":   lastErr,
			}).Debug("Retrying colly fetch")
			select {
			case <-ctx.Done():
				return nil, &FetchError{URL: targetURL, Mode: ModeHTTP, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		doc, err := f.visit(ctx, targetURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		// A definite answer from the server is not worth retrying.
		if fe, ok := err.(*FetchError); ok && fe.StatusCode > 0 {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *CollyFetcher) visit(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	c := f.buildCollector(ctx)

	var result *FetchedDocument
	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})

	if err := c.Visit(targetURL); err != nil {
		return nil, &FetchError{URL: targetURL, Mode: ModeHTTP, Err: err}
	}
	if result == nil {
		return nil, &FetchError{URL: targetURL, Mode: ModeHTTP, Err: fmt.Errorf("no response received")}
	}
	if result.StatusCode < 200 || result.StatusCode > 299 {
		result.Body.Close()
		return nil, &FetchError{URL: targetURL, Mode: ModeHTTP, StatusCode: result.StatusCode}
	}
	return result, nil
}
