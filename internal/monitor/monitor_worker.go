package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/match"
	"github.com/david/holiday-watch/internal/metrics"
	"github.com/david/holiday-watch/internal/models"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MonitorWorker runs one scheduled search for a fingerprint and stores its
// strong matches as observations.
type MonitorWorker struct {
	fingerprints FingerprintStore
	runs         RunStore
	observations ObservationStore
	adapters     Adapters
	enqueuer     Enqueuer
	log          *logrus.Entry
	now          func() time.Time
}

func NewMonitorWorker(fingerprints FingerprintStore, runs RunStore, observations ObservationStore, adapters Adapters, enqueuer Enqueuer) *MonitorWorker {
	return &MonitorWorker{
		fingerprints: fingerprints,
		runs:         runs,
		observations: observations,
		adapters:     adapters,
		enqueuer:     enqueuer,
		log:          logrus.WithField("component", "monitor_worker"),
		now:          time.Now,
	}
}

func (w *MonitorWorker) Handle(ctx context.Context, job queue.Job) queue.Outcome {
	var p MonitorPayload
	if err := job.Decode(&p); err != nil {
		return queue.Fatal(err)
	}

	fp, err := w.fingerprints.GetFingerprint(ctx, p.FingerprintID)
	if errors.Is(err, models.ErrNotFound) {
		return queue.Fatal(fmt.Errorf("fingerprint %s: %w", p.FingerprintID, err))
	}
	if err != nil {
		return queue.Retry(fmt.Errorf("load fingerprint %s: %w", p.FingerprintID, err))
	}
	log := w.log.WithFields(logrus.Fields{"fingerprint_id": fp.ID, "provider": fp.ProviderCode})
	if !fp.Enabled {
		log.Info("Fingerprint disabled since scheduling; skipping")
		return queue.Success()
	}

	adapter, err := w.adapters.Get(fp.ProviderCode)
	if err != nil {
		return queue.Fatal(err)
	}
	if !adapter.IsEnabled() {
		log.Info("Provider disabled; skipping")
		return queue.Success()
	}

	intent, err := fingerprint.SearchIntentFor(*fp)
	if err != nil {
		return queue.Fatal(err)
	}

	scheduledFor := p.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = w.now().UTC()
	}
	fpID := fp.ID
	run := &models.FetchRun{
		ID:            uuid.New(),
		FingerprintID: &fpID,
		ProviderCode:  adapter.Code(),
		Trigger:       models.TriggerScheduled,
		ScheduledFor:  scheduledFor,
		StartedAt:     w.now().UTC(),
		RunStatus:     models.RunStatusRunning,
	}
	if err := w.runs.CreateFetchRun(ctx, run); err != nil {
		return queue.Retry(fmt.Errorf("create fetch run: %w", err))
	}
	log = log.WithField("run_id", run.ID)

	candidates, _, searchErr := adapter.Search(ctx, intent)
	if searchErr != nil {
		status := ingest.ClassifyError(searchErr)
		w.finish(ctx, run, models.RunResult{
			RunStatus:      models.RunStatusError,
			ProviderStatus: status,
			ErrorMessage:   searchErr.Error(),
		})
		log.WithError(searchErr).WithField("provider_status", status).Warn("Search failed")
		return queue.Retry(searchErr)
	}

	if len(candidates) == 0 {
		w.finish(ctx, run, models.RunResult{
			RunStatus:      models.RunStatusParseFailed,
			ProviderStatus: models.ProviderStatusParseFailed,
			ErrorMessage:   "no candidates extracted",
		})
		log.Warn("Search returned no candidates")
		return queue.Success()
	}

	results := match.EvaluateAll(candidates, intent)
	observedAt := w.now().UTC()
	obs := ObservationsFrom(results, run.ID, fp.ID, observedAt)

	stored := 0
	if len(obs) > 0 {
		stored, err = w.observations.InsertObservations(ctx, obs)
		if err != nil {
			w.finish(ctx, run, models.RunResult{
				RunStatus:      models.RunStatusError,
				ProviderStatus: models.ProviderStatusOK,
				ErrorMessage:   "store observations: " + err.Error(),
				CandidateCount: len(candidates),
			})
			return queue.Retry(fmt.Errorf("store observations: %w", err))
		}
		metrics.ObservationsStored.WithLabelValues(adapter.Code()).Add(float64(stored))
	}

	w.finish(ctx, run, models.RunResult{
		RunStatus:        models.RunStatusOK,
		ProviderStatus:   models.ProviderStatusOK,
		CandidateCount:   len(candidates),
		ObservationCount: stored,
	})

	if stored > 0 {
		if _, err := w.enqueuer.Enqueue(ctx, queue.Insight, InsightJobID(run.ID), InsightPayload{FingerprintID: fp.ID, FetchRunID: run.ID}); err != nil {
			// The run stays OK; leaving the fingerprint unscheduled lets the
			// retry produce a fresh run whose insight job is queued.
			log.WithError(err).Error("Failed to enqueue insight job")
			return queue.Retry(fmt.Errorf("enqueue insight job: %w", err))
		}
	}

	if err := w.fingerprints.MarkFingerprintScheduled(ctx, fp.ID, observedAt); err != nil {
		log.WithError(err).Warn("Failed to record last scheduled time")
	}

	tally := match.Count(results)
	log.WithFields(logrus.Fields{
		"candidates":   len(candidates),
		"strong":       tally.Strong,
		"unknown":      tally.Unknown,
		"mismatch":     tally.Mismatch,
		"observations": stored,
	}).Info("Monitor run complete")
	return queue.Success()
}

func (w *MonitorWorker) finish(ctx context.Context, run *models.FetchRun, res models.RunResult) {
	res.FinishedAt = w.now().UTC()
	if err := w.runs.FinishFetchRun(ctx, run.ID, res); err != nil {
		w.log.WithError(err).WithField("run_id", run.ID).Error("Failed to finish fetch run")
	}
	metrics.FetchRuns.WithLabelValues(run.ProviderCode, string(res.ProviderStatus)).Inc()
}

// ObservationsFrom keeps the strong matches of a run as observations.
func ObservationsFrom(results []match.Result, runID, fingerprintID uuid.UUID, observedAt time.Time) []models.Observation {
	var out []models.Observation
	for _, r := range results {
		if r.Verdict != match.Strong || r.SeriesKey == "" {
			continue
		}
		c := r.Candidate
		perNight := 0.0
		if c.Nights > 0 {
			perNight = c.PriceTotal / float64(c.Nights)
		}
		out = append(out, models.Observation{
			ID:            uuid.New(),
			FetchRunID:    runID,
			FingerprintID: fingerprintID,
			SeriesKey:     r.SeriesKey,
			StayStartDate: c.StayStartDate,
			StayNights:    c.Nights,
			PriceTotal:    c.PriceTotal,
			PricePerNight: perNight,
			Availability:  c.Availability,
			ObservedAt:    observedAt,
			SourceURL:     c.SourceURL,
		})
	}
	return out
}
