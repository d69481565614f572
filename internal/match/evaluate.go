package match

import (
	"github.com/david/holiday-watch/internal/models"
)

// Result is a classified candidate with its series key. SeriesKey is empty
// when the candidate mismatched or lacked the fields to build one.
type Result struct {
	Candidate models.RawCandidate `json:"candidate"`
	Verdict   Verdict             `json:"verdict"`
	Reasons   []string            `json:"reasons,omitempty"`
	SeriesKey string              `json:"series_key,omitempty"`
}

// Evaluate classifies a candidate and derives its series key. A candidate
// that passes classification but cannot be keyed is downgraded to Unknown.
func Evaluate(c models.RawCandidate, intent models.SearchIntent) Result {
	if c.ProviderCode == "" {
		c.ProviderCode = intent.ProviderCode
	}

	verdict, reasons := Classify(c, intent)
	res := Result{Candidate: c, Verdict: verdict, Reasons: reasons}
	if verdict == Mismatch {
		return res
	}

	key, err := SeriesKey(SeriesKeyInput{
		ProviderCode:  c.ProviderCode,
		StayStartDate: c.StayStartDate,
		Nights:        c.Nights,
		ParkID:        c.ParkID,
		AccomTypeID:   c.AccomTypeID,
	})
	if err != nil {
		res.Verdict = Unknown
		res.Reasons = append(res.Reasons, ReasonIncompleteData)
		return res
	}
	res.SeriesKey = key
	return res
}

// EvaluateAll evaluates every candidate. One malformed candidate never
// stops the rest.
func EvaluateAll(candidates []models.RawCandidate, intent models.SearchIntent) []Result {
	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Evaluate(c, intent))
	}
	return out
}

// Tally counts results per verdict.
type Tally struct {
	Strong   int `json:"strong"`
	Weak     int `json:"weak"`
	Unknown  int `json:"unknown"`
	Mismatch int `json:"mismatch"`
}

func Count(results []Result) Tally {
	var t Tally
	for _, r := range results {
		switch r.Verdict {
		case Strong:
			t.Strong++
		case Weak:
			t.Weak++
		case Unknown:
			t.Unknown++
		case Mismatch:
			t.Mismatch++
		}
	}
	return t
}
