package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/david/holiday-watch/internal/config"
	"github.com/david/holiday-watch/internal/db"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
)

func main() {
	provider := flag.String("provider", "", "only runs for this provider code")
	status := flag.String("status", "", "only runs with this status (OK, ERROR, BLOCKED, ...)")
	trigger := flag.String("trigger", "", "only runs with this trigger (SCHEDULED, PREVIEW)")
	limit := flag.Int("limit", 20, "max runs to list")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logrus.Fatal(err)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListRuns(ctx, db.RunListParams{
		ProviderCode: *provider,
		RunStatus:    *status,
		Trigger:      *trigger,
		Limit:        *limit,
	})
	if err != nil {
		logrus.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Provider", "Trigger", "Status", "Provider Status", "Candidates", "Stored", "Duration", "Started At", "Error"})

	for _, run := range runs {
		duration := "Running..."
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			run.ProviderCode, run.Trigger, run.RunStatus, run.ProviderStatus,
			run.CandidateCount, run.ObservationCount, duration,
			run.StartedAt.Format("2006-01-02 15:04:05"), truncate(run.ErrorMessage, 60),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "Total", len(runs)})
	t.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
