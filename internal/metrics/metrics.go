package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_jobs_processed_total",
			Help: "Jobs handled per queue, by outcome",
		},
		[]string{"queue", "outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holidaywatch_job_duration_seconds",
			Help:    "Duration of job handling in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"queue"},
	)

	FetchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_fetch_runs_total",
			Help: "Finished fetch runs per provider, by provider status",
		},
		[]string{"provider", "status"},
	)

	BrowserFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_browser_fallbacks_total",
			Help: "Retrievals that fell back to the headless browser",
		},
		[]string{"provider"},
	)

	ObservationsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_observations_stored_total",
			Help: "Price observations written",
		},
		[]string{"provider"},
	)

	InsightsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_insights_emitted_total",
			Help: "New insights stored, by type",
		},
		[]string{"type"},
	)

	AlertsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_alerts_total",
			Help: "Alert deliveries, by final status",
		},
		[]string{"status"},
	)

	SchedulerCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_scheduler_cycles_total",
			Help: "Scheduler cycles, by result",
		},
		[]string{"result"},
	)

	DealScanOffers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_deal_scan_offers_total",
			Help: "Offers collected by the deal scan",
		},
		[]string{"provider"},
	)

	DealScanFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holidaywatch_deal_scan_failures_total",
			Help: "Providers whose offers could not be fetched or stored",
		},
		[]string{"provider"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holidaywatch_queue_depth",
			Help: "Ready jobs waiting per queue",
		},
		[]string{"queue"},
	)
)
