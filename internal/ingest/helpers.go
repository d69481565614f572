package ingest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText strips any markup a provider embedded in scraped text and
// normalizes whitespace.
func cleanText(s string) string {
	return normalizeSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// parseBedrooms reads "3 bedrooms", "Sleeps 6 | 2 bed" or "Studio". A
// missing or unreadable value is nil, never zero.
func parseBedrooms(text string) *int {
	lower := strings.ToLower(normalizeSpace(text))
	if lower == "" {
		return nil
	}
	if strings.Contains(lower, "studio") {
		return intPtr(0)
	}

	fields := strings.Fields(lower)
	for i, f := range fields {
		if !strings.HasPrefix(f, "bed") || i == 0 {
			continue
		}
		if n, err := strconv.Atoi(fields[i-1]); err == nil && n >= 0 {
			return intPtr(n)
		}
	}
	if n, err := strconv.Atoi(lower); err == nil && n >= 0 {
		return intPtr(n)
	}
	return nil
}

// parsePets reads a pet policy badge. Only explicit wording counts.
func parsePets(text string) *bool {
	lower := strings.ToLower(normalizeSpace(text))
	switch {
	case lower == "":
		return nil
	case strings.Contains(lower, "no pets"), strings.Contains(lower, "pets not allowed"), strings.Contains(lower, "pet free"):
		return boolPtr(false)
	case strings.Contains(lower, "pet friendly"), strings.Contains(lower, "pets welcome"), strings.Contains(lower, "pets allowed"), strings.Contains(lower, "dog friendly"):
		return boolPtr(true)
	}
	return nil
}

// parseAvailability maps provider wording onto our availability states.
func parseAvailability(text string) models.Availability {
	lower := strings.ToLower(normalizeSpace(text))
	switch {
	case strings.Contains(lower, "sold out"), strings.Contains(lower, "unavailable"), strings.Contains(lower, "fully booked"):
		return models.AvailabilitySoldOut
	case strings.Contains(lower, "book"), strings.Contains(lower, "available"), strings.Contains(lower, "left"):
		return models.AvailabilityAvailable
	}
	return models.AvailabilityUnknown
}

// buildURL joins a provider base URL with a path and query.
func buildURL(base, path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// resolveLink makes href absolute against the page it was found on.
func resolveLink(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// looseText decodes a JSON string or number into its text form. Providers
// are inconsistent about quoting prices.
type looseText string

func (t *looseText) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*t = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*t = looseText(str)
		return nil
	}
	*t = looseText(s)
	return nil
}

// parseValidUntil reads an offer expiry; unreadable dates are left unset.
func parseValidUntil(text string) *time.Time {
	day, err := ParseStayDate(text)
	if err != nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return nil
	}
	return &t
}
