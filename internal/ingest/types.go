package ingest

import (
	"context"
	"io"
	"time"

	"github.com/david/holiday-watch/internal/models"
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// FetchMode records which retrieval path produced a page.
type FetchMode string

const (
	ModeHTTP    FetchMode = "http"
	ModeBrowser FetchMode = "browser"
)

// FetchMeta describes how an adapter call retrieved its page. Preview
// surfaces it as timing and compliance information.
type FetchMeta struct {
	URL           string        `json:"url"`
	Mode          FetchMode     `json:"mode"`
	StatusCode    int           `json:"status_code,omitempty"`
	RobotsChecked bool          `json:"robots_checked"`
	RobotsAllowed bool          `json:"robots_allowed"`
	UsedFallback  bool          `json:"used_fallback"`
	FetchDuration time.Duration `json:"fetch_duration"`
	ParseDuration time.Duration `json:"parse_duration"`
	ItemCount     int           `json:"item_count"`
}

// Adapter is one provider's search and offers capability.
type Adapter interface {
	Code() string
	IsEnabled() bool
	Search(ctx context.Context, intent models.SearchIntent) ([]models.RawCandidate, FetchMeta, error)
	FetchOffers(ctx context.Context) ([]models.Offer, FetchMeta, error)
	Cleanup() error
}

// SiteParser holds everything provider specific: URL building and page
// extraction. Retrieval is shared and lives in Retriever.
type SiteParser interface {
	BuildSearchURL(baseURL string, intent models.SearchIntent) (string, error)
	BuildOffersURL(baseURL string) string
	ParseSearchResults(html []byte, intent models.SearchIntent) ([]models.RawCandidate, error)
	ParseOffers(html []byte) ([]models.Offer, error)
	// WaitSelector is the element the browser waits for before reading
	// the rendered page.
	WaitSelector() string
}
