package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/david/holiday-watch/internal/config"
	"github.com/david/holiday-watch/internal/monitor"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Enqueues a monitor job for one fingerprint, or today's deal scan, without
// waiting for the scheduler.
func main() {
	fpFlag := flag.String("fingerprint", "", "fingerprint ID to check now")
	dealScan := flag.Bool("deal-scan", false, "enqueue today's deal scan instead")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	jobs := queue.NewClient(rdb, cfg.Redis.Prefix, cfg.Redis.DedupeTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	var (
		queueName string
		jobID     string
		payload   any
	)
	switch {
	case *dealScan:
		queueName = queue.DealScan
		jobID = monitor.DealScanJobID(now)
		payload = monitor.DealScanPayload{Day: now.Format("2006-01-02")}
	case *fpFlag != "":
		fpID, err := uuid.Parse(*fpFlag)
		if err != nil {
			fmt.Printf("Invalid fingerprint ID: %v\n", err)
			os.Exit(1)
		}
		queueName = queue.Monitor
		jobID = monitor.MonitorJobID(fpID, now)
		payload = monitor.MonitorPayload{FingerprintID: fpID, ScheduledFor: now}
	default:
		fmt.Println("Usage: trigger -fingerprint <id> | -deal-scan")
		os.Exit(1)
	}

	added, err := jobs.Enqueue(ctx, queueName, jobID, payload)
	if err != nil {
		fmt.Printf("Error enqueueing job: %v\n", err)
		os.Exit(1)
	}
	if !added {
		fmt.Printf("Job %s already queued this slot\n", jobID)
		return
	}
	fmt.Printf("Enqueued %s job %s\n", queueName, jobID)
}
