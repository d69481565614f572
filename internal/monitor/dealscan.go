package monitor

import (
	"context"

	"github.com/david/holiday-watch/internal/metrics"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DealScanWorker refreshes the promotions of every enabled provider once a
// day. One provider failing does not stop the others.
type DealScanWorker struct {
	adapters Adapters
	offers   OfferStore
	limiter  *rate.Limiter
	log      *logrus.Entry
}

func NewDealScanWorker(adapters Adapters, offers OfferStore, limiter *rate.Limiter) *DealScanWorker {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &DealScanWorker{
		adapters: adapters,
		offers:   offers,
		limiter:  limiter,
		log:      logrus.WithField("component", "deal_scan"),
	}
}

func (w *DealScanWorker) Handle(ctx context.Context, job queue.Job) queue.Outcome {
	var p DealScanPayload
	if err := job.Decode(&p); err != nil {
		return queue.Fatal(err)
	}
	log := w.log.WithField("day", p.Day)

	total, failed := 0, 0
	for _, adapter := range w.adapters.Enabled() {
		if err := w.limiter.Wait(ctx); err != nil {
			return queue.Retry(err)
		}
		plog := log.WithField("provider", adapter.Code())

		offers, _, err := adapter.FetchOffers(ctx)
		if err != nil {
			failed++
			metrics.DealScanFailures.WithLabelValues(adapter.Code()).Inc()
			plog.WithError(err).Warn("Offer fetch failed")
			continue
		}
		n, err := w.offers.UpsertOffers(ctx, offers)
		if err != nil {
			failed++
			metrics.DealScanFailures.WithLabelValues(adapter.Code()).Inc()
			plog.WithError(err).Error("Failed to store offers")
			continue
		}
		total += n
		metrics.DealScanOffers.WithLabelValues(adapter.Code()).Add(float64(n))
		plog.WithField("offers", n).Info("Offers refreshed")
	}

	if ctx.Err() != nil {
		return queue.Retry(ctx.Err())
	}
	log.WithFields(logrus.Fields{"offers": total, "failed_providers": failed}).Info("Deal scan complete")
	return queue.Success()
}
