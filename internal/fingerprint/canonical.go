package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/models"
)

const dateLayout = "2006-01-02"

// canonicalPayload mirrors the canonical JSON so a fingerprint can be turned
// back into a SearchIntent.
type canonicalPayload struct {
	Provider          string   `json:"provider"`
	Adults            int      `json:"adults"`
	Children          int      `json:"children"`
	DateStart         string   `json:"date_start"`
	DateEnd           string   `json:"date_end"`
	NightsMin         int      `json:"nights_min"`
	NightsMax         int      `json:"nights_max"`
	Pets              bool     `json:"pets"`
	MinBedrooms       int      `json:"min_bedrooms"`
	Region            string   `json:"region"`
	AccommodationType string   `json:"accommodation_type"`
	ParkIDs           []string `json:"park_ids"`
}

// Canonicalize builds the provider-specific search parameters for an
// intent and returns their canonical JSON and its SHA-256.
//
// The parameters go through a map so encoding/json emits keys in sorted
// order; construction order can never change the hash.
func Canonicalize(intent models.UserIntent, providerCode string) ([]byte, string, error) {
	provider := normalizeCode(providerCode)
	if provider == "" {
		return nil, "", fmt.Errorf("provider code is required")
	}

	start, err := time.Parse(dateLayout, strings.TrimSpace(intent.DateStart))
	if err != nil {
		return nil, "", fmt.Errorf("invalid date_start %q: %w", intent.DateStart, err)
	}
	end := start
	if strings.TrimSpace(intent.DateEnd) != "" {
		end, err = time.Parse(dateLayout, strings.TrimSpace(intent.DateEnd))
		if err != nil {
			return nil, "", fmt.Errorf("invalid date_end %q: %w", intent.DateEnd, err)
		}
		if end.Before(start) {
			return nil, "", fmt.Errorf("date_end %s is before date_start %s", intent.DateEnd, intent.DateStart)
		}
	}

	if intent.NightsMin < 1 {
		return nil, "", fmt.Errorf("nights_min must be at least 1, got %d", intent.NightsMin)
	}
	nightsMax := intent.NightsMax
	if nightsMax == 0 {
		nightsMax = intent.NightsMin
	}
	if nightsMax < intent.NightsMin {
		return nil, "", fmt.Errorf("nights_max %d is below nights_min %d", nightsMax, intent.NightsMin)
	}

	params := map[string]any{
		"provider":           provider,
		"adults":             intent.Adults,
		"children":           intent.Children,
		"date_start":         start.Format(dateLayout),
		"date_end":           end.Format(dateLayout),
		"nights_min":         intent.NightsMin,
		"nights_max":         nightsMax,
		"pets":               intent.Pets,
		"min_bedrooms":       intent.MinBedrooms,
		"region":             normalizeText(intent.Region),
		"accommodation_type": normalizeText(intent.AccommodationType),
		"park_ids":           normalizeIDs(intent.ParkIDs),
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, "", fmt.Errorf("marshal canonical payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return payload, hex.EncodeToString(sum[:]), nil
}

// SearchIntentFor turns a stored fingerprint into the intent its monitor
// job searches for: the first night of the window at the shortest stay.
func SearchIntentFor(fp models.Fingerprint) (models.SearchIntent, error) {
	var p canonicalPayload
	if err := json.Unmarshal(fp.CanonicalPayload, &p); err != nil {
		return models.SearchIntent{}, fmt.Errorf("decode fingerprint %s payload: %w", fp.ID, err)
	}
	provider := p.Provider
	if provider == "" {
		provider = normalizeCode(fp.ProviderCode)
	}
	return models.SearchIntent{
		ProviderCode:      provider,
		StayStartDate:     p.DateStart,
		Nights:            p.NightsMin,
		Adults:            p.Adults,
		Children:          p.Children,
		Pets:              p.Pets,
		MinBedrooms:       p.MinBedrooms,
		AccommodationType: p.AccommodationType,
		Region:            p.Region,
		ParkIDs:           p.ParkIDs,
	}, nil
}

// IntentFor canonicalizes and immediately decodes, so ad-hoc callers build
// exactly the intent a scheduled job would.
func IntentFor(intent models.UserIntent, providerCode string) (models.SearchIntent, string, error) {
	payload, hash, err := Canonicalize(intent, providerCode)
	if err != nil {
		return models.SearchIntent{}, "", err
	}
	si, err := SearchIntentFor(models.Fingerprint{ProviderCode: providerCode, CanonicalPayload: payload})
	return si, hash, err
}

func normalizeCode(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
