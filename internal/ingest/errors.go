package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/david/holiday-watch/internal/models"
)

var (
	ErrBlocked = errors.New("provider blocked the request")
	ErrTimeout = errors.New("provider did not respond in time")
	ErrParse   = errors.New("provider page could not be parsed")
)

// FetchError carries the HTTP status seen at the adapter boundary so the
// taxonomy does not depend on error wording.
type FetchError struct {
	URL        string
	StatusCode int
	Mode       FetchMode
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s fetch %s: status %d", e.Mode, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s fetch %s: %v", e.Mode, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Blocked reports an anti-bot style response.
func (e *FetchError) Blocked() bool {
	switch e.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusUnavailableForLegalReasons:
		return true
	}
	return false
}

// ClassifyError maps an adapter error onto the FetchRun failure taxonomy.
// Typed signals win; message patterns are only a fallback for errors that
// come from libraries we do not control.
func ClassifyError(err error) models.ProviderStatus {
	if err == nil {
		return models.ProviderStatusOK
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Blocked() {
		return models.ProviderStatusBlocked
	}
	if errors.Is(err, ErrBlocked) {
		return models.ProviderStatusBlocked
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return models.ProviderStatusTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return models.ProviderStatusTimeout
	}
	if errors.Is(err, ErrParse) {
		return models.ProviderStatusParseFailed
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return models.ProviderStatusTimeout
	case containsAny(msg, "403", "forbidden", "captcha", "access denied", "blocked", "too many requests"):
		return models.ProviderStatusBlocked
	case containsAny(msg, "parse", "unexpected end of json", "invalid character"):
		return models.ProviderStatusParseFailed
	}
	return models.ProviderStatusFetchFailed
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
