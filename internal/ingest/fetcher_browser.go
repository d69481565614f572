package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// BrowserFetcher renders pages in headless Chrome for providers that build
// their results client side. One browser is started lazily and reused for
// every page; each Fetch opens and closes its own tab. Close releases it.
type BrowserFetcher struct {
	UserAgent    string
	ExecPath     string
	WaitSelector string
	Timeout      time.Duration
	// Settle is an extra pause after the wait selector appears, for pages
	// that keep rendering after first paint.
	Settle time.Duration

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowserFetcher(userAgent, execPath string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &BrowserFetcher{
		UserAgent: userAgent,
		ExecPath:  execPath,
		Timeout:   timeout,
		Settle:    time.Second,
	}
}

func (b *BrowserFetcher) ensureBrowser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil && b.browserCtx.Err() == nil {
		return b.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
	)
	if b.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.UserAgent))
	}
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Running with no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	logrus.WithField("exec_path", b.ExecPath).Debug("Headless browser started")
	return browserCtx, nil
}

// Fetch implements Fetcher by navigating a fresh tab and returning the
// rendered HTML.
func (b *BrowserFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	browserCtx, err := b.ensureBrowser()
	if err != nil {
		return nil, &FetchError{URL: targetURL, Mode: ModeBrowser, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		statusMu sync.Mutex
		status   int
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			statusMu.Lock()
			if status == 0 {
				status = int(e.Response.Status)
			}
			statusMu.Unlock()
		}
	})

	wait := chromedp.WaitReady("body", chromedp.ByQuery)
	if b.WaitSelector != "" {
		wait = chromedp.WaitVisible(b.WaitSelector, chromedp.ByQuery)
	}

	var html string
	err = chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.EmulateViewport(1920, 1080),
		chromedp.Navigate(targetURL),
		wait,
		chromedp.Sleep(b.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	statusMu.Lock()
	code := status
	statusMu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &FetchError{URL: targetURL, Mode: ModeBrowser, StatusCode: blockedStatus(code), Err: err}
	}
	if code >= 400 {
		return nil, &FetchError{URL: targetURL, Mode: ModeBrowser, StatusCode: code}
	}
	if code == 0 {
		code = 200
	}

	return &FetchedDocument{
		URL:         targetURL,
		StatusCode:  code,
		ContentType: "text/html",
		Body:        io.NopCloser(bytes.NewReader([]byte(html))),
		FetchedAt:   time.Now(),
	}, nil
}

// blockedStatus keeps a status on a failed render only when it explains
// the failure.
func blockedStatus(code int) int {
	if code >= 400 {
		return code
	}
	return 0
}

// Close shuts the browser down. The fetcher can be reused afterwards and
// will start a new browser on demand.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx, b.browserCancel, b.allocCancel = nil, nil, nil
	return nil
}
