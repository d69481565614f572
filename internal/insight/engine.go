package insight

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/models"
	"github.com/google/uuid"
)

// Detector thresholds.
const (
	LowestWindowDays      = 180
	LowestMinObservations = 5
	DropMinObservations   = 2
	DropAbsoluteThreshold = 75.0 // GBP
	DropPercentThreshold  = 7.0
	RisingMinObservations = 5
	RisingSoldOutMinimum  = 2
)

// Analyze runs every detector over one series. Observations may arrive in
// any order; they are sorted by ObservedAt before anything is compared.
func Analyze(fingerprintID uuid.UUID, seriesKey string, observations []models.Observation) []models.Insight {
	if len(observations) == 0 {
		return nil
	}

	obs := make([]models.Observation, len(observations))
	copy(obs, observations)
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].ObservedAt.Before(obs[j].ObservedAt)
	})

	var out []models.Insight
	for _, detect := range []func([]models.Observation) *finding{
		detectLowestInWindow,
		detectPriceDrop,
		detectRisingRisk,
	} {
		f := detect(obs)
		if f == nil {
			continue
		}
		out = append(out, f.toInsight(fingerprintID, seriesKey, obs[len(obs)-1].ObservedAt))
	}
	return out
}

type finding struct {
	kind    models.InsightType
	window  string
	summary string
	details map[string]any
}

func (f *finding) toInsight(fingerprintID uuid.UUID, seriesKey string, latest time.Time) models.Insight {
	label := WindowLabel(f.window, latest)
	details, _ := json.Marshal(f.details)
	return models.Insight{
		ID:            uuid.New(),
		FingerprintID: fingerprintID,
		SeriesKey:     seriesKey,
		Type:          f.kind,
		DedupeKey:     DedupeKey(fingerprintID, seriesKey, f.kind, label),
		Summary:       f.summary,
		Details:       details,
		CreatedAt:     time.Now().UTC(),
	}
}

// WindowLabel pins a conclusion to the detector window and the day of the
// newest observation it was drawn from.
func WindowLabel(window string, latest time.Time) string {
	return window + ":" + latest.UTC().Format("2006-01-02")
}

// DedupeKey binds an insight to its fingerprint, series, type and window.
func DedupeKey(fingerprintID uuid.UUID, seriesKey string, kind models.InsightType, windowLabel string) string {
	raw := strings.Join([]string{fingerprintID.String(), seriesKey, string(kind), windowLabel}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func detectLowestInWindow(obs []models.Observation) *finding {
	latest := obs[len(obs)-1]
	cutoff := latest.ObservedAt.Add(-LowestWindowDays * 24 * time.Hour)

	var window []models.Observation
	for _, o := range obs {
		if !o.ObservedAt.Before(cutoff) {
			window = append(window, o)
		}
	}
	if len(window) < LowestMinObservations {
		return nil
	}

	minPrice := math.Inf(1)
	for _, o := range window {
		minPrice = math.Min(minPrice, o.PriceTotal)
	}
	if latest.PriceTotal > minPrice {
		return nil
	}

	return &finding{
		kind:    models.InsightLowestInWindow,
		window:  fmt.Sprintf("%dd", LowestWindowDays),
		summary: fmt.Sprintf("£%.2f is the lowest price seen in the last %d days", latest.PriceTotal, LowestWindowDays),
		details: map[string]any{
			"latest_price": latest.PriceTotal,
			"window_min":   minPrice,
			"window_days":  LowestWindowDays,
			"observations": len(window),
			"stay_date":    latest.StayStartDate,
			"stay_nights":  latest.StayNights,
		},
	}
}

func detectPriceDrop(obs []models.Observation) *finding {
	if len(obs) < DropMinObservations {
		return nil
	}
	prev := obs[len(obs)-2]
	latest := obs[len(obs)-1]
	if prev.PriceTotal <= 0 {
		return nil
	}

	drop := prev.PriceTotal - latest.PriceTotal
	if drop <= 0 {
		return nil
	}
	pct := drop / prev.PriceTotal * 100
	if drop < DropAbsoluteThreshold && pct < DropPercentThreshold {
		return nil
	}

	kind := models.InsightPriceDropAbsolute
	if pct >= DropPercentThreshold {
		kind = models.InsightPriceDropPercent
	}

	return &finding{
		kind:    kind,
		window:  "latest",
		summary: fmt.Sprintf("Price dropped £%.2f (%.1f%%) from £%.2f to £%.2f", drop, pct, prev.PriceTotal, latest.PriceTotal),
		details: map[string]any{
			"previous_price": prev.PriceTotal,
			"latest_price":   latest.PriceTotal,
			"drop_absolute":  round2(drop),
			"drop_percent":   round2(pct),
			"stay_date":      latest.StayStartDate,
			"stay_nights":    latest.StayNights,
		},
	}
}

// detectRisingRisk is a momentum heuristic: stock is selling out and the
// two newest prices are above the two from four and five fetches back.
func detectRisingRisk(obs []models.Observation) *finding {
	if len(obs) < RisingMinObservations {
		return nil
	}
	last5 := obs[len(obs)-5:]

	soldOut := 0
	for _, o := range last5 {
		if o.Availability == models.AvailabilitySoldOut {
			soldOut++
		}
	}
	if soldOut < RisingSoldOutMinimum {
		return nil
	}

	recent := (last5[4].PriceTotal + last5[3].PriceTotal) / 2
	earlier := (last5[1].PriceTotal + last5[0].PriceTotal) / 2
	if recent <= earlier {
		return nil
	}

	return &finding{
		kind:    models.InsightRisingRisk,
		window:  "last5",
		summary: fmt.Sprintf("%d of the last 5 checks were sold out and prices are rising (avg £%.2f vs £%.2f)", soldOut, recent, earlier),
		details: map[string]any{
			"sold_out_count": soldOut,
			"recent_avg":     round2(recent),
			"earlier_avg":    round2(earlier),
			"stay_date":      last5[4].StayStartDate,
			"stay_nights":    last5[4].StayNights,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
