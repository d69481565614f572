package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/match"
	"github.com/david/holiday-watch/internal/metrics"
	"github.com/david/holiday-watch/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPreviewLimit = 20
	MaxPreviewLimit     = 200

	SortByPrice = "price"
	SortByDate  = "date"
)

var ErrNoIntent = errors.New("preview needs a profile or an intent")

// PreviewRequest asks for a live search without touching the monitoring
// pipeline. Either ProfileID or Intent must be set.
type PreviewRequest struct {
	ProfileID *uuid.UUID         `json:"profile_id,omitempty"`
	Intent    *models.UserIntent `json:"intent,omitempty"`
	Providers []string           `json:"providers,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	SortBy    string             `json:"sort_by,omitempty"`
}

type PreviewStatus string

const (
	PreviewOK          PreviewStatus = "OK"
	PreviewNoResults   PreviewStatus = "NO_RESULTS"
	PreviewError       PreviewStatus = "ERROR"
	PreviewUnavailable PreviewStatus = "UNAVAILABLE"
)

type PreviewTiming struct {
	FetchMs int64 `json:"fetch_ms"`
	MatchMs int64 `json:"match_ms"`
	TotalMs int64 `json:"total_ms"`
}

type PreviewCompliance struct {
	RobotsChecked bool             `json:"robots_checked"`
	RobotsAllowed bool             `json:"robots_allowed"`
	FetchMode     ingest.FetchMode `json:"fetch_mode,omitempty"`
}

type PreviewSummary struct {
	Candidates         int      `json:"candidates"`
	Strong             int      `json:"strong"`
	Weak               int      `json:"weak"`
	Unknown            int      `json:"unknown"`
	Mismatch           int      `json:"mismatch"`
	LowestMatchedPrice *float64 `json:"lowest_matched_price"`
}

type ProviderPreview struct {
	Provider       string                `json:"provider"`
	Status         PreviewStatus         `json:"status"`
	ProviderStatus models.ProviderStatus `json:"provider_status,omitempty"`
	Error          string                `json:"error,omitempty"`
	FetchRunID     *uuid.UUID            `json:"fetch_run_id,omitempty"`
	Timing         PreviewTiming         `json:"timing"`
	Compliance     PreviewCompliance     `json:"compliance"`
	Matched        []match.Result        `json:"matched"`
	Other          []match.Result        `json:"other"`
	Summary        PreviewSummary        `json:"summary"`
}

type PreviewResult struct {
	ProfileID   *uuid.UUID        `json:"profile_id,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Providers   []ProviderPreview `json:"providers"`
}

// Previewer runs searches on demand. Its only write is one preview
// FetchRun per searched provider; it stores no observations and queues no
// jobs.
type Previewer struct {
	profiles ProfileStore
	runs     RunStore
	adapters Adapters
	log      *logrus.Entry
	now      func() time.Time
}

func NewPreviewer(profiles ProfileStore, runs RunStore, adapters Adapters) *Previewer {
	return &Previewer{
		profiles: profiles,
		runs:     runs,
		adapters: adapters,
		log:      logrus.WithField("component", "preview"),
		now:      time.Now,
	}
}

func (p *Previewer) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	intent, allowed, err := p.resolveIntent(ctx, req)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if limit > MaxPreviewLimit {
		limit = MaxPreviewLimit
	}

	codes := p.resolveProviders(req.Providers, allowed)
	out := make([]ProviderPreview, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			out[i] = p.previewProvider(gctx, code, intent, limit, req.SortBy)
			return nil
		})
	}
	_ = g.Wait()

	return &PreviewResult{
		ProfileID:   req.ProfileID,
		GeneratedAt: p.now().UTC(),
		Providers:   out,
	}, nil
}

// resolveIntent returns the user intent and, for a profile, the providers
// it is allowed to search.
func (p *Previewer) resolveIntent(ctx context.Context, req PreviewRequest) (models.UserIntent, []string, error) {
	if req.ProfileID != nil {
		profile, err := p.profiles.GetProfile(ctx, *req.ProfileID)
		if err != nil {
			return models.UserIntent{}, nil, fmt.Errorf("load profile %s: %w", *req.ProfileID, err)
		}
		return profile.Intent, profile.Providers, nil
	}
	if req.Intent != nil {
		return *req.Intent, nil, nil
	}
	return models.UserIntent{}, nil, ErrNoIntent
}

func (p *Previewer) resolveProviders(requested, allowed []string) []string {
	norm := func(in []string) []string {
		seen := make(map[string]bool, len(in))
		var out []string
		for _, c := range in {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
		return out
	}
	requested, allowed = norm(requested), norm(allowed)

	switch {
	case allowed != nil && requested != nil:
		ok := make(map[string]bool, len(allowed))
		for _, c := range allowed {
			ok[c] = true
		}
		var out []string
		for _, c := range requested {
			if ok[c] {
				out = append(out, c)
			}
		}
		return out
	case allowed != nil:
		return allowed
	case requested != nil:
		return requested
	}

	var out []string
	for _, a := range p.adapters.Enabled() {
		out = append(out, a.Code())
	}
	return out
}

func (p *Previewer) previewProvider(ctx context.Context, code string, userIntent models.UserIntent, limit int, sortBy string) ProviderPreview {
	res := ProviderPreview{Provider: code, Matched: []match.Result{}, Other: []match.Result{}}
	log := p.log.WithField("provider", code)

	adapter, err := p.adapters.Get(code)
	if err != nil {
		res.Status = PreviewUnavailable
		res.Error = "unknown provider"
		return res
	}
	if !adapter.IsEnabled() {
		res.Status = PreviewUnavailable
		res.Error = "provider disabled"
		return res
	}

	started := p.now().UTC()
	run := &models.FetchRun{
		ID:           uuid.New(),
		ProviderCode: code,
		Trigger:      models.TriggerPreview,
		ScheduledFor: started,
		StartedAt:    started,
		RunStatus:    models.RunStatusRunning,
	}
	if err := p.runs.CreateFetchRun(ctx, run); err != nil {
		log.WithError(err).Warn("Failed to record preview run")
	} else {
		id := run.ID
		res.FetchRunID = &id
	}

	// The provider is never contacted for an intent it cannot express, so
	// the run carries no provider status.
	intent, _, err := fingerprint.IntentFor(userIntent, code)
	if err != nil {
		res.Status = PreviewError
		res.Error = err.Error()
		p.finish(ctx, res.FetchRunID, code, models.RunResult{
			RunStatus:    models.RunStatusError,
			ErrorMessage: "invalid intent: " + err.Error(),
		})
		res.Timing.TotalMs = p.now().Sub(started).Milliseconds()
		return res
	}

	candidates, meta, searchErr := adapter.Search(ctx, intent)
	res.Compliance = PreviewCompliance{
		RobotsChecked: meta.RobotsChecked,
		RobotsAllowed: meta.RobotsAllowed,
		FetchMode:     meta.Mode,
	}
	res.Timing.FetchMs = meta.FetchDuration.Milliseconds()

	if searchErr != nil {
		res.Status = PreviewError
		res.ProviderStatus = ingest.ClassifyError(searchErr)
		res.Error = string(res.ProviderStatus)
		p.finish(ctx, res.FetchRunID, code, models.RunResult{
			RunStatus:      models.RunStatusError,
			ProviderStatus: res.ProviderStatus,
			ErrorMessage:   searchErr.Error(),
		})
		res.Timing.TotalMs = p.now().Sub(started).Milliseconds()
		log.WithError(searchErr).Warn("Preview search failed")
		return res
	}

	matchStart := p.now()
	results := match.EvaluateAll(candidates, intent)
	sortResults(results, sortBy)
	res.Timing.MatchMs = p.now().Sub(matchStart).Milliseconds()

	tally := match.Count(results)
	res.Summary = PreviewSummary{
		Candidates: len(candidates),
		Strong:     tally.Strong,
		Weak:       tally.Weak,
		Unknown:    tally.Unknown,
		Mismatch:   tally.Mismatch,
	}
	for _, r := range results {
		switch r.Verdict {
		case match.Strong, match.Weak:
			price := r.Candidate.PriceTotal
			if res.Summary.LowestMatchedPrice == nil || price < *res.Summary.LowestMatchedPrice {
				res.Summary.LowestMatchedPrice = &price
			}
			if len(res.Matched) < limit {
				res.Matched = append(res.Matched, r)
			}
		default:
			if len(res.Other) < limit {
				res.Other = append(res.Other, r)
			}
		}
	}

	runResult := models.RunResult{
		RunStatus:      models.RunStatusOK,
		ProviderStatus: models.ProviderStatusOK,
		CandidateCount: len(candidates),
	}
	res.Status = PreviewOK
	res.ProviderStatus = models.ProviderStatusOK
	if len(candidates) == 0 {
		runResult.RunStatus = models.RunStatusParseFailed
		runResult.ProviderStatus = models.ProviderStatusParseFailed
		runResult.ErrorMessage = "no candidates extracted"
		res.Status = PreviewNoResults
		res.ProviderStatus = models.ProviderStatusParseFailed
	}
	p.finish(ctx, res.FetchRunID, code, runResult)
	res.Timing.TotalMs = p.now().Sub(started).Milliseconds()
	return res
}

func (p *Previewer) finish(ctx context.Context, runID *uuid.UUID, provider string, res models.RunResult) {
	if res.ProviderStatus != "" {
		metrics.FetchRuns.WithLabelValues(provider, string(res.ProviderStatus)).Inc()
	}
	if runID == nil {
		return
	}
	res.FinishedAt = p.now().UTC()
	if err := p.runs.FinishFetchRun(ctx, *runID, res); err != nil {
		p.log.WithError(err).WithField("run_id", *runID).Error("Failed to finish preview run")
	}
}

// sortResults orders by total price or by stay date. Ties and unpriced rows
// keep their extraction order.
func sortResults(results []match.Result, sortBy string) {
	if sortBy == SortByDate {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Candidate.StayStartDate < results[j].Candidate.StayStartDate
		})
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Candidate.PriceTotal < results[j].Candidate.PriceTotal
	})
}
