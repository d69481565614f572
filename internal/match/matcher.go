package match

import (
	"fmt"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/models"
)

// Verdict is the matcher's confidence that a candidate is the stay the
// user asked for.
type Verdict string

const (
	Strong Verdict = "STRONG"
	// Weak is reserved. Classify never returns it.
	Weak     Verdict = "WEAK"
	Unknown  Verdict = "UNKNOWN"
	Mismatch Verdict = "MISMATCH"
)

// Alertable reports whether observations with this verdict may feed alerts.
func (v Verdict) Alertable() bool {
	return v == Strong
}

const (
	ReasonDateMismatch     = "date mismatch"
	ReasonNightsMismatch   = "nights mismatch"
	ReasonPetsNotAllowed   = "pets not allowed"
	ReasonPetPolicyUnknown = "pet policy unknown"
	ReasonTooFewBedrooms   = "too few bedrooms"
	ReasonBedroomsUnknown  = "bedroom count unknown"
	ReasonIncompleteData   = "incomplete data"
)

// Classify checks one candidate against the intent. Date and nights are
// exact; a missing soft attribute never passes silently.
func Classify(c models.RawCandidate, intent models.SearchIntent) (Verdict, []string) {
	if normalizeDate(c.StayStartDate) != normalizeDate(intent.StayStartDate) {
		return Mismatch, []string{fmt.Sprintf("%s: wanted %s, got %s", ReasonDateMismatch, intent.StayStartDate, displayOrMissing(c.StayStartDate))}
	}

	if c.Nights != intent.Nights {
		return Mismatch, []string{fmt.Sprintf("%s: wanted %d, got %d", ReasonNightsMismatch, intent.Nights, c.Nights)}
	}

	var missing []string

	if intent.Pets {
		switch {
		case c.PetsAllowed == nil:
			missing = append(missing, ReasonPetPolicyUnknown)
		case !*c.PetsAllowed:
			return Mismatch, []string{ReasonPetsNotAllowed}
		}
	}

	if intent.MinBedrooms > 0 {
		switch {
		case c.Bedrooms == nil:
			missing = append(missing, ReasonBedroomsUnknown)
		case *c.Bedrooms < intent.MinBedrooms:
			return Mismatch, []string{fmt.Sprintf("%s: wanted at least %d, got %d", ReasonTooFewBedrooms, intent.MinBedrooms, *c.Bedrooms)}
		}
	}

	if len(missing) > 0 {
		return Unknown, missing
	}
	return Strong, nil
}

// normalizeDate reduces any accepted date spelling to YYYY-MM-DD. Values
// that do not parse are compared as trimmed strings.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func displayOrMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
