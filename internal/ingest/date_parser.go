package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var stayDateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"Mon 2 Jan 2006",
	"Mon, 2 Jan 2006",
	"Monday 2 January 2006",
	"Monday, 2 January 2006",
	"Mon 02 Jan 2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006", // UK format
	"2/1/2006",
}

var ordinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)

// ParseStayDate parses an arrival date and returns it as YYYY-MM-DD. It
// tries a fixed list of layouts and never guesses: US month-first dates
// are not accepted, so "03/07/2024" is always 3 July.
func ParseStayDate(text string) (string, error) {
	clean := cleanDateString(text)
	if clean == "" {
		return "", fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.RFC3339, clean); err == nil {
		return t.Format("2006-01-02"), nil
	}

	for _, format := range stayDateFormats {
		if t, err := time.Parse(format, clean); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}

	return "", fmt.Errorf("unable to parse date: %s", text)
}

// cleanDateString removes labels, ordinal suffixes and stray punctuation.
func cleanDateString(s string) string {
	prefixes := []string{"Arriving:", "Arrival:", "Arriving", "Arrive", "Check-in:", "From:", "Starting", "Book by", "Valid until", "Ends", "Expires"}
	s = normalizeSpace(s)
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(sLower, strings.ToLower(p)) {
			s = strings.TrimSpace(strings.TrimLeft(s[len(p):], ": "))
			sLower = strings.ToLower(s)
		}
	}
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",", ", ")
	s = normalizeSpace(strings.ReplaceAll(s, " ,", ","))
	return strings.TrimSpace(strings.TrimSuffix(s, "."))
}
