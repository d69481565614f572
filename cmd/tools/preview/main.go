package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/config"
	"github.com/david/holiday-watch/internal/db"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/logging"
	"github.com/david/holiday-watch/internal/models"
	"github.com/david/holiday-watch/internal/monitor"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
)

// Runs a live preview from the command line. Either -profile or the intent
// flags must be given.
func main() {
	profileFlag := flag.String("profile", "", "profile ID to preview")
	providersFlag := flag.String("providers", "", "comma-separated provider codes")
	adults := flag.Int("adults", 2, "adults in party")
	children := flag.Int("children", 0, "children in party")
	start := flag.String("start", "", "earliest arrival date (YYYY-MM-DD)")
	nights := flag.Int("nights", 7, "minimum nights")
	pets := flag.Bool("pets", false, "travelling with pets")
	limit := flag.Int("limit", monitor.DefaultPreviewLimit, "results per provider")
	sortBy := flag.String("sort", monitor.SortByPrice, "sort by price or date")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup("warn", "text")

	req := monitor.PreviewRequest{Limit: *limit, SortBy: *sortBy}
	if *providersFlag != "" {
		req.Providers = strings.Split(*providersFlag, ",")
	}
	switch {
	case *profileFlag != "":
		id, err := uuid.Parse(*profileFlag)
		if err != nil {
			logrus.Fatalf("Invalid profile ID: %v", err)
		}
		req.ProfileID = &id
	case *start != "":
		req.Intent = &models.UserIntent{Adults: *adults, Children: *children, DateStart: *start, NightsMin: *nights, Pets: *pets}
	default:
		fmt.Println("Usage: preview -profile <id> | -start YYYY-MM-DD [-nights 7 -adults 2]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Preview.Timeout)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Database.URL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logrus.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	providers, err := ingest.LoadProviderRegistry(cfg.Scraping.ProvidersFile)
	if err != nil {
		logrus.Fatalf("Failed to load providers: %v", err)
	}
	adapters := ingest.BuildAdapterRegistry(providers, ingest.DefaultSiteParsers(), ingest.AdapterOptions{
		UserAgent:   cfg.Scraping.UserAgent,
		BrowserPath: cfg.Scraping.BrowserPath,
	})
	defer adapters.Cleanup()

	store := db.NewStore(pool)
	res, err := monitor.NewPreviewer(store, store, adapters).Preview(ctx, req)
	if err != nil {
		logrus.Fatalf("Preview failed: %v", err)
	}

	for _, pp := range res.Providers {
		fmt.Printf("\n%s: %s (%s) fetch=%dms match=%dms\n", pp.Provider, pp.Status, pp.ProviderStatus, pp.Timing.FetchMs, pp.Timing.MatchMs)
		if pp.Error != "" {
			fmt.Printf("  error: %s\n", pp.Error)
			continue
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Verdict", "Arrive", "Nights", "Price", "Property", "Reasons"})
		for _, r := range append(pp.Matched, pp.Other...) {
			c := r.Candidate
			t.AppendRow(table.Row{r.Verdict, c.StayStartDate, c.Nights, fmt.Sprintf("%.2f", c.PriceTotal), c.PropertyName, strings.Join(r.Reasons, "; ")})
		}
		lowest := "-"
		if pp.Summary.LowestMatchedPrice != nil {
			lowest = fmt.Sprintf("%.2f", *pp.Summary.LowestMatchedPrice)
		}
		t.AppendFooter(table.Row{"Strong", pp.Summary.Strong, "Total", pp.Summary.Candidates, "Lowest", lowest})
		t.Render()
	}
	fmt.Printf("\nGenerated at %s\n", res.GeneratedAt.Format(time.RFC3339))
}
