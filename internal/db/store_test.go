package db

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/david/holiday-watch/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestBuildRunsQuery_FiltersInOrder(t *testing.T) {
	fpID := uuid.New()
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sql, args := buildRunsQuery(RunListParams{
		FingerprintID: &fpID,
		RunStatus:     "ERROR",
		Since:         &since,
		Limit:         10,
	})

	mustContain := []string{
		"fingerprint_id = $1",
		"run_status = $2",
		"started_at >= $3",
		"LIMIT $4",
		"ORDER BY started_at DESC",
	}
	for _, token := range mustContain {
		if !strings.Contains(sql, token) {
			t.Fatalf("runs query missing %q: %s", token, sql)
		}
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[3] != 10 {
		t.Fatalf("expected limit 10, got %v", args[3])
	}
}

func TestBuildRunsQuery_DefaultLimit(t *testing.T) {
	sql, args := buildRunsQuery(RunListParams{Limit: 10000})
	if !strings.Contains(sql, "LIMIT $1") {
		t.Fatalf("expected only the limit placeholder: %s", sql)
	}
	if args[0] != 50 {
		t.Fatalf("oversized limit should fall back to 50, got %v", args[0])
	}
}

func TestMigrationFiles_Sorted(t *testing.T) {
	files, err := MigrationFiles()
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	if len(files) == 0 || files[0] != "001_init.sql" {
		t.Fatalf("unexpected migrations: %v", files)
	}
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("HW_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("HW_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dbURL, PoolOptions{MaxConns: 4})
	if err != nil {
		t.Skip("Database not reachable, skipping integration test")
	}
	t.Cleanup(pool.Close)
	if _, err := ApplyMigrations(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}

func TestStore_DedupeConstraints(t *testing.T) {
	pool := testPool(t)
	store := NewStore(pool)
	ctx := context.Background()

	intent, _ := json.Marshal(models.UserIntent{Adults: 2, DateStart: "2026-07-10", NightsMin: 7})
	profileID := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO profiles (id, user_id, name, intent, providers, email) VALUES ($1, $2, $3, $4, $5, $6)`,
		profileID, uuid.New(), "integration", intent, []string{"haven"}, "it@example.com"); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	fp := &models.Fingerprint{
		ProfileID:           profileID,
		ProviderCode:        "haven",
		CanonicalHash:       "hash-" + uuid.NewString(),
		CanonicalPayload:    json.RawMessage(`{"provider":"haven"}`),
		CheckFrequencyHours: 24,
		Enabled:             true,
	}
	if err := store.CreateFingerprint(ctx, fp); err != nil {
		t.Fatalf("create fingerprint: %v", err)
	}
	firstID := fp.ID
	dup := *fp
	dup.ID = uuid.Nil
	if err := store.CreateFingerprint(ctx, &dup); err != nil {
		t.Fatalf("duplicate fingerprint should not fail: %v", err)
	}
	if dup.ID != firstID {
		t.Fatalf("duplicate fingerprint should resolve to %s, got %s", firstID, dup.ID)
	}

	now := time.Now().UTC()
	run := &models.FetchRun{ID: uuid.New(), FingerprintID: &fp.ID, ProviderCode: "haven",
		Trigger: models.TriggerScheduled, ScheduledFor: now, StartedAt: now, RunStatus: models.RunStatusRunning}
	if err := store.CreateFetchRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	res := models.RunResult{RunStatus: models.RunStatusOK, ProviderStatus: models.ProviderStatusOK, FinishedAt: now}
	if err := store.FinishFetchRun(ctx, run.ID, res); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	if err := store.FinishFetchRun(ctx, run.ID, res); !errors.Is(err, ErrRunFinished) {
		t.Fatalf("second finish should fail with ErrRunFinished, got %v", err)
	}

	in := &models.Insight{ID: uuid.New(), FingerprintID: fp.ID, SeriesKey: "s", Type: models.InsightPriceDropPercent,
		DedupeKey: "dk-" + uuid.NewString(), Summary: "drop", CreatedAt: now}
	if ok, err := store.InsertInsight(ctx, in); err != nil || !ok {
		t.Fatalf("first insight insert: ok=%v err=%v", ok, err)
	}
	again := *in
	again.ID = uuid.New()
	if ok, err := store.InsertInsight(ctx, &again); err != nil || ok {
		t.Fatalf("duplicate insight insert: ok=%v err=%v", ok, err)
	}

	found, err := store.FindInsightByDedupeKey(ctx, in.DedupeKey)
	if err != nil || found.ID != in.ID {
		t.Fatalf("find insight by dedupe key: got %v err=%v", found, err)
	}

	if _, err := store.GetInsight(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing insight should be ErrNotFound, got %v", err)
	}
}
