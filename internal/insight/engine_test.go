package insight

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/david/holiday-watch/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func series(prices []float64, avail ...models.Availability) []models.Observation {
	out := make([]models.Observation, len(prices))
	for i, p := range prices {
		a := models.AvailabilityAvailable
		if i < len(avail) {
			a = avail[i]
		}
		out[i] = models.Observation{
			ID:            uuid.New(),
			SeriesKey:     "s1",
			StayStartDate: "2024-07-01",
			StayNights:    7,
			PriceTotal:    p,
			Availability:  a,
			ObservedAt:    t0.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return out
}

func types(ins []models.Insight) []models.InsightType {
	var out []models.InsightType
	for _, i := range ins {
		out = append(out, i.Type)
	}
	return out
}

func TestAnalyze_DropToWindowLow(t *testing.T) {
	fp := uuid.New()
	got := Analyze(fp, "s1", series([]float64{500, 500, 500, 500, 420}))

	assert.ElementsMatch(t, []models.InsightType{models.InsightLowestInWindow, models.InsightPriceDropPercent}, types(got))

	for _, in := range got {
		assert.Equal(t, fp, in.FingerprintID)
		assert.Len(t, in.DedupeKey, 64)
		assert.NotEmpty(t, in.Summary)
		if in.Type == models.InsightPriceDropPercent {
			var details struct {
				DropPercent  float64 `json:"drop_percent"`
				DropAbsolute float64 `json:"drop_absolute"`
			}
			require.NoError(t, json.Unmarshal(in.Details, &details))
			assert.InDelta(t, 16.0, details.DropPercent, 0.01)
			assert.InDelta(t, 80.0, details.DropAbsolute, 0.01)
		}
	}
}

func TestAnalyze_OutOfOrderInputIsSorted(t *testing.T) {
	obs := series([]float64{500, 500, 500, 500, 420})
	shuffled := []models.Observation{obs[4], obs[1], obs[3], obs[0], obs[2]}
	fp := uuid.New()

	a := Analyze(fp, "s1", obs)
	b := Analyze(fp, "s1", shuffled)
	require.Len(t, b, len(a))

	keys := func(ins []models.Insight) []string {
		var out []string
		for _, i := range ins {
			out = append(out, i.DedupeKey)
		}
		return out
	}
	assert.Equal(t, keys(a), keys(b))
}

func TestAnalyze_SameDataSameDedupeKeys(t *testing.T) {
	fp := uuid.New()
	obs := series([]float64{500, 500, 500, 500, 420})
	first := Analyze(fp, "s1", obs)
	second := Analyze(fp, "s1", obs)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].DedupeKey, second[i].DedupeKey)
		assert.NotEqual(t, first[i].ID, second[i].ID)
	}
}

func TestDetectPriceDrop(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   models.InsightType
	}{
		{"small percentage but large absolute", []float64{2000, 1920}, models.InsightPriceDropAbsolute},
		{"ten percent", []float64{100, 90}, models.InsightPriceDropPercent},
		{"below both thresholds", []float64{1000, 950}, ""},
		{"price rose", []float64{400, 450}, ""},
		{"single observation", []float64{400}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := detectPriceDrop(series(tt.prices))
			if tt.want == "" {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.kind)
		})
	}
}

func TestDetectLowestInWindow(t *testing.T) {
	assert.Nil(t, detectLowestInWindow(series([]float64{500, 450, 420, 400})), "needs five observations")
	assert.Nil(t, detectLowestInWindow(series([]float64{400, 500, 500, 500, 420})), "latest above window minimum")
	assert.NotNil(t, detectLowestInWindow(series([]float64{500, 480, 470, 460, 450})))

	// The cheap observation falls outside the 180 day window.
	obs := series([]float64{100, 500, 500, 500, 500, 450})
	obs[0].ObservedAt = obs[5].ObservedAt.Add(-200 * 24 * time.Hour)
	f := detectLowestInWindow(obs)
	require.NotNil(t, f)
	assert.Equal(t, 5, f.details["observations"])
}

func TestDetectRisingRisk(t *testing.T) {
	sold := models.AvailabilitySoldOut
	ok := models.AvailabilityAvailable

	f := detectRisingRisk(series([]float64{400, 410, 420, 450, 470}, ok, ok, sold, ok, sold))
	require.NotNil(t, f)
	assert.Equal(t, models.InsightRisingRisk, f.kind)
	assert.Equal(t, 2, f.details["sold_out_count"])

	assert.Nil(t, detectRisingRisk(series([]float64{400, 410, 420, 450, 470}, ok, ok, ok, ok, sold)), "one sell-out is not enough")
	assert.Nil(t, detectRisingRisk(series([]float64{470, 450, 420, 410, 400}, sold, sold, sold, sold, sold)), "falling prices")
	assert.Nil(t, detectRisingRisk(series([]float64{400, 410, 420, 450}, sold, sold, sold, sold)), "needs five observations")
}

func TestDedupeKey_ChangesWithWindow(t *testing.T) {
	fp := uuid.New()
	a := DedupeKey(fp, "s1", models.InsightPriceDropPercent, WindowLabel("latest", t0))
	b := DedupeKey(fp, "s1", models.InsightPriceDropPercent, WindowLabel("latest", t0.Add(24*time.Hour)))
	c := DedupeKey(fp, "s1", models.InsightPriceDropAbsolute, WindowLabel("latest", t0))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
