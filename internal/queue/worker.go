package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/david/holiday-watch/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type WorkerOptions struct {
	Queue       string
	Concurrency int
	MaxAttempts int
	// BaseBackoff doubles on every failed attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Limiter, when set, is waited on before every job.
	Limiter *rate.Limiter
	// PollTimeout bounds each blocking claim so shutdown is noticed promptly.
	PollTimeout     time.Duration
	PromoteInterval time.Duration
	// VisibilityTimeout is how long a claim may stay unacknowledged before
	// the job is handed to another consumer.
	VisibilityTimeout time.Duration
}

// Worker consumes one queue with a fixed number of goroutines.
type Worker struct {
	client  *Client
	handler Handler
	opts    WorkerOptions
	log     *logrus.Entry
	now     func() time.Time
}

func NewWorker(client *Client, handler Handler, opts WorkerOptions) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Minute
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.PromoteInterval <= 0 {
		opts.PromoteInterval = 5 * time.Second
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Minute
	}
	return &Worker{
		client:  client,
		handler: handler,
		opts:    opts,
		log:     logrus.WithFields(logrus.Fields{"component": "queue", "queue": opts.Queue}),
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled. In-flight jobs finish before it returns.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithField("concurrency", w.opts.Concurrency).Info("Worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	wg.Wait()
	w.log.Info("Worker stopped")
	return nil
}

func (w *Worker) consume(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := w.client.claim(ctx, w.opts.Queue, w.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.log.WithError(err).Warn("Failed to claim job")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		w.process(ctx, raw)
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := w.now()
			if _, err := w.client.PromoteDue(ctx, w.opts.Queue, now); err != nil && ctx.Err() == nil {
				w.log.WithError(err).Warn("Failed to promote delayed jobs")
			}
			if n, err := w.client.RequeueStale(ctx, w.opts.Queue, now, w.opts.VisibilityTimeout); err != nil && ctx.Err() == nil {
				w.log.WithError(err).Warn("Failed to requeue stale claims")
			} else if n > 0 {
				w.log.WithField("jobs", n).Warn("Requeued stale claims")
			}
			if depth, err := w.client.Depth(ctx, w.opts.Queue); err == nil {
				metrics.QueueDepth.WithLabelValues(w.opts.Queue).Set(float64(depth))
			}
		}
	}
}

// RunOnce claims and handles a single ready job without blocking. It
// reports whether a job was found.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	raw, err := w.client.claim(ctx, w.opts.Queue, 0)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.process(ctx, raw)
	return true, nil
}

// Drain handles ready jobs until the queue is empty.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		ok, err := w.RunOnce(ctx)
		if err != nil || !ok {
			return n, err
		}
		n++
	}
}

// process runs one claimed job and records its outcome. Bookkeeping uses a
// context that survives shutdown; if it still fails the claim is left for
// RequeueStale.
func (w *Worker) process(ctx context.Context, raw string) {
	bg := context.WithoutCancel(ctx)

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.log.WithError(err).Error("Dead-lettering undecodable job")
		metrics.JobsProcessed.WithLabelValues(w.opts.Queue, "undecodable").Inc()
		if err := w.client.bury(bg, w.opts.Queue, raw, []byte(raw)); err != nil {
			w.log.WithError(err).Error("Failed to dead-letter undecodable job")
		}
		return
	}

	if w.opts.Limiter != nil {
		if err := w.opts.Limiter.Wait(ctx); err != nil {
			w.requeue(bg, raw, job)
			return
		}
	}

	started := w.now()
	outcome := w.handle(ctx, job)
	metrics.JobDuration.WithLabelValues(w.opts.Queue).Observe(time.Since(started).Seconds())

	// A handler cut short by shutdown has not really been tried.
	if outcome.Kind == OutcomeRetry && ctx.Err() != nil {
		w.requeue(bg, raw, job)
		return
	}

	job.Attempts++
	entry := w.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"attempts": job.Attempts,
		"outcome":  outcome.Kind.String(),
	})

	switch {
	case outcome.Kind == OutcomeSuccess:
		entry.Debug("Job done")
		if err := w.client.ack(bg, w.opts.Queue, raw); err != nil {
			entry.WithError(err).Error("Failed to acknowledge job")
		}
	case outcome.Kind == OutcomeRetry && job.Attempts < w.opts.MaxAttempts:
		delay := w.backoff(job.Attempts)
		entry.WithError(outcome.Err).WithField("retry_in", delay.String()).Warn("Job failed; retrying")
		if err := w.client.schedule(bg, w.opts.Queue, raw, job, w.now().Add(delay)); err != nil {
			entry.WithError(err).Error("Failed to schedule retry")
		}
	default:
		entry.WithError(outcome.Err).Error("Job failed permanently")
		if err := w.buryJob(bg, raw, job); err != nil {
			entry.WithError(err).Error("Failed to dead-letter job")
		}
		if outcome.Kind == OutcomeRetry {
			outcome.Kind = OutcomeFatal
		}
	}
	metrics.JobsProcessed.WithLabelValues(w.opts.Queue, outcome.Kind.String()).Inc()
}

func (w *Worker) requeue(ctx context.Context, raw string, job Job) {
	entry := w.log.WithField("job_id", job.ID)
	if err := w.client.release(ctx, w.opts.Queue, raw); err != nil {
		entry.WithError(err).Error("Failed to requeue job on shutdown")
		return
	}
	entry.Info("Requeued in-flight job on shutdown")
	metrics.JobsProcessed.WithLabelValues(w.opts.Queue, "requeued").Inc()
}

func (w *Worker) buryJob(ctx context.Context, claimed string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return w.client.bury(ctx, w.opts.Queue, claimed, raw)
}

func (w *Worker) handle(ctx context.Context, job Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Retry(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return w.handler.Handle(ctx, job)
}

func (w *Worker) backoff(attempts int) time.Duration {
	d := w.opts.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.opts.MaxBackoff {
			return w.opts.MaxBackoff
		}
	}
	return d
}
