package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue names used by the monitoring pipeline.
const (
	Monitor  = "monitor"
	Insight  = "insight"
	Alert    = "alert"
	DealScan = "deal-scan"
)

// Job is one unit of queued work. Attempts counts completed tries.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Queue, j.ID, err)
	}
	return nil
}

// Client enqueues jobs onto Redis lists. A job ID is accepted once per
// dedupe window; repeats are dropped without error.
type Client struct {
	rdb       *redis.Client
	prefix    string
	dedupeTTL time.Duration
}

func NewClient(rdb *redis.Client, prefix string, dedupeTTL time.Duration) *Client {
	if prefix == "" {
		prefix = "hw"
	}
	if dedupeTTL <= 0 {
		dedupeTTL = 24 * time.Hour
	}
	return &Client{rdb: rdb, prefix: prefix, dedupeTTL: dedupeTTL}
}

func (c *Client) readyKey(queue string) string      { return c.prefix + ":queue:" + queue + ":ready" }
func (c *Client) delayedKey(queue string) string    { return c.prefix + ":queue:" + queue + ":delayed" }
func (c *Client) deadKey(queue string) string       { return c.prefix + ":queue:" + queue + ":dead" }
func (c *Client) processingKey(queue string) string { return c.prefix + ":queue:" + queue + ":processing" }
func (c *Client) leasesKey(queue string) string     { return c.prefix + ":queue:" + queue + ":leases" }
func (c *Client) jobKey(queue, id string) string    { return c.prefix + ":job:" + queue + ":" + id }

// Enqueue adds a job unless one with the same ID was accepted within the
// dedupe window. It reports whether the job was added.
func (c *Client) Enqueue(ctx context.Context, queue, jobID string, payload any) (bool, error) {
	if jobID == "" {
		return false, errors.New("job id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}

	ok, err := c.rdb.SetNX(ctx, c.jobKey(queue, jobID), time.Now().UTC().Format(time.RFC3339), c.dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("reserve job %s: %w", jobID, err)
	}
	if !ok {
		return false, nil
	}

	job := Job{ID: jobID, Queue: queue, Payload: body, EnqueuedAt: time.Now().UTC()}
	if err := c.push(ctx, job); err != nil {
		// Release the reservation so a later enqueue can try again.
		c.rdb.Del(ctx, c.jobKey(queue, jobID))
		return false, err
	}
	return true, nil
}

func (c *Client) push(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := c.rdb.LPush(ctx, c.readyKey(job.Queue), raw).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", job.ID, err)
	}
	return nil
}

// A claimed job stays on the processing list, with a lease timestamp,
// until its outcome is recorded. Each outcome is written in the same
// transaction that removes the claim, so a job is always in exactly one of
// ready, delayed, dead or processing.

func (c *Client) claim(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	var (
		raw string
		err error
	)
	if timeout > 0 {
		raw, err = c.rdb.BLMove(ctx, c.readyKey(queue), c.processingKey(queue), "RIGHT", "LEFT", timeout).Result()
	} else {
		raw, err = c.rdb.LMove(ctx, c.readyKey(queue), c.processingKey(queue), "RIGHT", "LEFT").Result()
	}
	if err != nil {
		return "", err
	}
	// A missing lease is set by RequeueStale on first sight.
	c.rdb.HSet(ctx, c.leasesKey(queue), raw, time.Now().UnixMilli())
	return raw, nil
}

func (c *Client) ack(ctx context.Context, queue, raw string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, c.processingKey(queue), 1, raw)
		pipe.HDel(ctx, c.leasesKey(queue), raw)
		return nil
	})
	return err
}

// release puts a claimed job back at the head of the ready list untouched.
func (c *Client) release(ctx context.Context, queue, raw string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, c.processingKey(queue), 1, raw)
		pipe.HDel(ctx, c.leasesKey(queue), raw)
		pipe.RPush(ctx, c.readyKey(queue), raw)
		return nil
	})
	return err
}

func (c *Client) schedule(ctx context.Context, queue, claimed string, job Job, at time.Time) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, c.delayedKey(queue), redis.Z{Score: float64(at.UnixMilli()), Member: raw})
		pipe.LRem(ctx, c.processingKey(queue), 1, claimed)
		pipe.HDel(ctx, c.leasesKey(queue), claimed)
		return nil
	})
	return err
}

func (c *Client) bury(ctx context.Context, queue, claimed string, raw []byte) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, c.deadKey(queue), raw)
		pipe.LRem(ctx, c.processingKey(queue), 1, claimed)
		pipe.HDel(ctx, c.leasesKey(queue), claimed)
		return nil
	})
	return err
}

// RequeueStale returns claims older than visibility to the ready list.
// They belong to a worker that died or overran; the job is delivered again.
// A claim without a lease is leased on first sight and reaped later.
func (c *Client) RequeueStale(ctx context.Context, queue string, now time.Time, visibility time.Duration) (int, error) {
	claimed, err := c.rdb.LRange(ctx, c.processingKey(queue), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-visibility).UnixMilli()
	moved := 0
	for _, raw := range claimed {
		leasedAt, err := c.rdb.HGet(ctx, c.leasesKey(queue), raw).Int64()
		if errors.Is(err, redis.Nil) {
			c.rdb.HSetNX(ctx, c.leasesKey(queue), raw, now.UnixMilli())
			continue
		}
		if err != nil {
			return moved, err
		}
		if leasedAt > cutoff {
			continue
		}

		removed, err := c.rdb.LRem(ctx, c.processingKey(queue), 1, raw).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := c.rdb.LPush(ctx, c.readyKey(queue), raw).Err(); err != nil {
			return moved, err
		}
		c.rdb.HDel(ctx, c.leasesKey(queue), raw)
		moved++
	}
	return moved, nil
}

// Processing returns the number of claimed jobs whose outcome is not yet
// recorded.
func (c *Client) Processing(ctx context.Context, queue string) (int64, error) {
	return c.rdb.LLen(ctx, c.processingKey(queue)).Result()
}

// Depth returns the number of ready jobs on a queue.
func (c *Client) Depth(ctx context.Context, queue string) (int64, error) {
	return c.rdb.LLen(ctx, c.readyKey(queue)).Result()
}

// Delayed returns the number of jobs waiting for a retry.
func (c *Client) Delayed(ctx context.Context, queue string) (int64, error) {
	return c.rdb.ZCard(ctx, c.delayedKey(queue)).Result()
}

// Dead returns the dead-lettered jobs of a queue, newest first.
func (c *Client) Dead(ctx context.Context, queue string) ([]Job, error) {
	raws, err := c.rdb.LRange(ctx, c.deadKey(queue), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// PromoteDue moves delayed jobs whose retry time has passed back onto the
// ready list. Each job is claimed with ZREM so concurrent promoters never
// duplicate it.
func (c *Client) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	due, err := c.rdb.ZRangeByScore(ctx, c.delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, raw := range due {
		removed, err := c.rdb.ZRem(ctx, c.delayedKey(queue), raw).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := c.rdb.LPush(ctx, c.readyKey(queue), raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
