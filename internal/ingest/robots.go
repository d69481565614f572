package ingest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsChecker is an advisory robots.txt check. It never blocks a fetch:
// callers log and report a disallowed path and carry on.
type RobotsChecker struct {
	fetcher   Fetcher
	userAgent string
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// RobotsVerdict is the outcome of one check. Checked is false when
// robots.txt could not be retrieved at all.
type RobotsVerdict struct {
	Checked bool
	Allowed bool
}

func NewRobotsChecker(fetcher Fetcher, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		fetcher:   fetcher,
		userAgent: userAgent,
		ttl:       6 * time.Hour,
		cache:     make(map[string]robotsEntry),
	}
}

func (r *RobotsChecker) Check(ctx context.Context, target string) RobotsVerdict {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return RobotsVerdict{Allowed: true}
	}

	data, err := r.load(ctx, u)
	if err != nil {
		logrus.WithFields(logrus.Fields{"host": u.Host, "error": err}).Debug("robots.txt unavailable")
		return RobotsVerdict{Allowed: true}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return RobotsVerdict{Checked: true, Allowed: data.TestAgent(path, r.userAgent)}
}

func (r *RobotsChecker) load(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < r.ttl {
		return entry.data, nil
	}

	doc, err := r.fetcher.Fetch(ctx, key+"/robots.txt")
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	body, err := io.ReadAll(io.LimitReader(doc.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(doc.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.cache[key] = robotsEntry{data: data, fetchedAt: time.Now()}
	r.mu.Unlock()
	return data, nil
}
