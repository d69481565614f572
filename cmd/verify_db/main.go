package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/david/holiday-watch/internal/config"
	"github.com/david/holiday-watch/internal/db"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logrus.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	files, err := db.MigrationFiles()
	if err != nil {
		logrus.Fatalf("List migrations: %v", err)
	}
	fmt.Printf("Embedded migrations: %d\n", len(files))
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}

	counts, err := db.NewStore(pool).TableCounts(ctx)
	if err != nil {
		logrus.Fatalf("Query failed: %v", err)
	}
	tables := make([]string, 0, len(counts))
	for name := range counts {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Table", "Rows"})
	for _, name := range tables {
		t.AppendRow(table.Row{name, counts[name]})
	}
	t.Render()
}
