package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/david/holiday-watch/internal/metrics"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/sirupsen/logrus"
)

// Scheduler turns due fingerprints into monitor jobs. A cycle runs at start
// and then on every tick; a failing cycle is logged and the loop goes on.
type Scheduler struct {
	fingerprints FingerprintStore
	enqueuer     Enqueuer
	interval     time.Duration
	log          *logrus.Entry
	now          func() time.Time
}

type CycleResult struct {
	Due      int
	Enqueued int
	Skipped  int
	Failed   int
	DealScan bool
}

func NewScheduler(fingerprints FingerprintStore, enqueuer Enqueuer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		fingerprints: fingerprints,
		enqueuer:     enqueuer,
		interval:     interval,
		log:          logrus.WithField("component", "scheduler"),
		now:          time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval.String()).Info("Scheduler started")
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.RunCycle(ctx)
	if err != nil {
		metrics.SchedulerCycles.WithLabelValues("failed").Inc()
		s.log.WithError(err).Error("Scheduler cycle failed")
		return
	}
	metrics.SchedulerCycles.WithLabelValues("ok").Inc()
	s.log.WithFields(logrus.Fields{
		"due":       res.Due,
		"enqueued":  res.Enqueued,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"deal_scan": res.DealScan,
	}).Info("Scheduler cycle complete")
}

// RunCycle performs one scheduling pass. Panics are converted to errors.
func (s *Scheduler) RunCycle(ctx context.Context) (res CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler panic: %v", r)
		}
	}()

	now := s.now()
	due, err := s.fingerprints.ListDueFingerprints(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list due fingerprints: %w", err)
	}
	res.Due = len(due)

	for _, fp := range due {
		payload := MonitorPayload{FingerprintID: fp.ID, ScheduledFor: now.UTC()}
		added, err := s.enqueuer.Enqueue(ctx, queue.Monitor, MonitorJobID(fp.ID, now), payload)
		switch {
		case err != nil:
			res.Failed++
			s.log.WithError(err).WithField("fingerprint_id", fp.ID).Warn("Failed to enqueue monitor job")
		case added:
			res.Enqueued++
		default:
			res.Skipped++
		}
	}

	added, err := s.enqueuer.Enqueue(ctx, queue.DealScan, DealScanJobID(now), DealScanPayload{Day: now.UTC().Format("2006-01-02")})
	if err != nil {
		s.log.WithError(err).Warn("Failed to enqueue deal scan")
	}
	res.DealScan = added
	return res, nil
}
