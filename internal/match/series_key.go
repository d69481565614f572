package match

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// AnyValue stands in for an absent park or accommodation type so that
// "absent" and "empty" cannot collapse into one series.
const AnyValue = "ANY"

var ErrIncompleteSeries = errors.New("series key needs provider, date and nights")

type SeriesKeyInput struct {
	ProviderCode  string
	StayStartDate string
	Nights        int
	ParkID        string
	AccomTypeID   string
}

// SeriesKey identifies the same bookable product across fetches. It is a
// plain string join hashed with SHA-256, so it is stable across restarts
// and across runtimes.
func SeriesKey(in SeriesKeyInput) (string, error) {
	provider := strings.ToLower(strings.TrimSpace(in.ProviderCode))
	date := normalizeDate(in.StayStartDate)
	if provider == "" || date == "" || in.Nights <= 0 {
		return "", ErrIncompleteSeries
	}

	parts := []string{
		provider,
		date,
		strconv.Itoa(in.Nights),
		orAny(in.ParkID),
		orAny(in.AccomTypeID),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nil
}

func orAny(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return AnyValue
	}
	return s
}
