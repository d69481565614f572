package monitor

import (
	"context"
	"fmt"

	"github.com/david/holiday-watch/internal/insight"
	"github.com/david/holiday-watch/internal/metrics"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/sirupsen/logrus"
)

// InsightWorker analyses every series a run touched. Insert-or-ignore on
// the dedupe key makes a replayed job harmless, and a replay re-queues the
// alert job of every insight it finds already stored.
type InsightWorker struct {
	observations ObservationStore
	insights     InsightStore
	enqueuer     Enqueuer
	log          *logrus.Entry
}

func NewInsightWorker(observations ObservationStore, insights InsightStore, enqueuer Enqueuer) *InsightWorker {
	return &InsightWorker{
		observations: observations,
		insights:     insights,
		enqueuer:     enqueuer,
		log:          logrus.WithField("component", "insight_worker"),
	}
}

func (w *InsightWorker) Handle(ctx context.Context, job queue.Job) queue.Outcome {
	var p InsightPayload
	if err := job.Decode(&p); err != nil {
		return queue.Fatal(err)
	}
	log := w.log.WithFields(logrus.Fields{"fingerprint_id": p.FingerprintID, "run_id": p.FetchRunID})

	keys, err := w.observations.ListRunSeriesKeys(ctx, p.FetchRunID)
	if err != nil {
		return queue.Retry(fmt.Errorf("list series keys: %w", err))
	}

	created := 0
	for _, key := range keys {
		history, err := w.observations.ListSeriesObservations(ctx, p.FingerprintID, key)
		if err != nil {
			return queue.Retry(fmt.Errorf("load series %s: %w", key, err))
		}

		for _, in := range insight.Analyze(p.FingerprintID, key, history) {
			in := in
			inserted, err := w.insights.InsertInsight(ctx, &in)
			if err != nil {
				return queue.Retry(fmt.Errorf("store insight: %w", err))
			}
			insightID := in.ID
			if inserted {
				created++
				metrics.InsightsEmitted.WithLabelValues(string(in.Type)).Inc()
			} else {
				// A replay finds the row from the earlier attempt; its alert
				// job may never have been queued.
				stored, err := w.insights.FindInsightByDedupeKey(ctx, in.DedupeKey)
				if err != nil {
					return queue.Retry(fmt.Errorf("load insight %s: %w", in.DedupeKey, err))
				}
				insightID = stored.ID
			}
			if _, err := w.enqueuer.Enqueue(ctx, queue.Alert, AlertJobID(insightID), AlertPayload{InsightID: insightID}); err != nil {
				log.WithError(err).WithField("insight_id", insightID).Error("Failed to enqueue alert job")
				return queue.Retry(fmt.Errorf("enqueue alert job: %w", err))
			}
		}
	}

	log.WithFields(logrus.Fields{"series": len(keys), "insights": created}).Info("Insight analysis complete")
	return queue.Success()
}
