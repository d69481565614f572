package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/david/holiday-watch/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dateLayout = "2006-01-02"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Profiles ---

const profileCols = `id, user_id, name, intent, providers, check_frequency_hours, email, phone`

func scanProfile(scan func(dest ...any) error) (models.Profile, error) {
	var p models.Profile
	var intentRaw []byte
	var email, phone *string

	if err := scan(&p.ID, &p.UserID, &p.Name, &intentRaw, &p.Providers, &p.CheckFrequencyHours, &email, &phone); err != nil {
		return p, err
	}
	if err := json.Unmarshal(intentRaw, &p.Intent); err != nil {
		return p, fmt.Errorf("decode intent for profile %s: %w", p.ID, err)
	}
	if email != nil {
		p.Email = *email
	}
	if phone != nil {
		p.Phone = *phone
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row.Scan)
	if err != nil {
		return nil, notFound(err, "profile "+id.String())
	}
	return &p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+profileCols+` FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Fingerprints ---

const fingerprintCols = `id, profile_id, provider_code, canonical_hash, canonical_payload,
	check_frequency_hours, last_scheduled_at, enabled, created_at`

func scanFingerprint(scan func(dest ...any) error) (models.Fingerprint, error) {
	var fp models.Fingerprint
	var payload []byte
	err := scan(&fp.ID, &fp.ProfileID, &fp.ProviderCode, &fp.CanonicalHash, &payload,
		&fp.CheckFrequencyHours, &fp.LastScheduledAt, &fp.Enabled, &fp.CreatedAt)
	fp.CanonicalPayload = payload
	return fp, err
}

func collectFingerprints(rows pgx.Rows) ([]models.Fingerprint, error) {
	defer rows.Close()
	var out []models.Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

func (s *Store) GetFingerprint(ctx context.Context, id uuid.UUID) (*models.Fingerprint, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fingerprintCols+` FROM fingerprints WHERE id = $1`, id)
	fp, err := scanFingerprint(row.Scan)
	if err != nil {
		return nil, notFound(err, "fingerprint "+id.String())
	}
	return &fp, nil
}

func (s *Store) ListDueFingerprints(ctx context.Context, now time.Time) ([]models.Fingerprint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fingerprintCols+`
		FROM fingerprints
		WHERE enabled = true
		  AND (last_scheduled_at IS NULL
		       OR last_scheduled_at < $1::timestamptz - make_interval(hours => check_frequency_hours))
		ORDER BY last_scheduled_at NULLS FIRST, created_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due fingerprints: %w", err)
	}
	return collectFingerprints(rows)
}

func (s *Store) MarkFingerprintScheduled(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE fingerprints SET last_scheduled_at = $2 WHERE id = $1`, id, at)
	return err
}

func (s *Store) ListProfileFingerprints(ctx context.Context, profileID uuid.UUID) ([]models.Fingerprint, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fingerprintCols+` FROM fingerprints WHERE profile_id = $1 ORDER BY created_at`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints for profile %s: %w", profileID, err)
	}
	return collectFingerprints(rows)
}

// CreateFingerprint inserts fp. A concurrent insert of the same
// (profile, provider, hash) is not an error; fp.ID is set to the stored row.
func (s *Store) CreateFingerprint(ctx context.Context, fp *models.Fingerprint) error {
	if fp.ID == uuid.Nil {
		fp.ID = uuid.New()
	}
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO fingerprints (id, profile_id, provider_code, canonical_hash, canonical_payload,
			check_frequency_hours, last_scheduled_at, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (profile_id, provider_code, canonical_hash) DO NOTHING
	`, fp.ID, fp.ProfileID, fp.ProviderCode, fp.CanonicalHash, []byte(fp.CanonicalPayload),
		fp.CheckFrequencyHours, fp.LastScheduledAt, fp.Enabled, fp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fingerprint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.pool.QueryRow(ctx, `
			SELECT id FROM fingerprints
			WHERE profile_id = $1 AND provider_code = $2 AND canonical_hash = $3
		`, fp.ProfileID, fp.ProviderCode, fp.CanonicalHash).Scan(&fp.ID)
	}
	return nil
}

func (s *Store) SetFingerprintEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE fingerprints SET enabled = $2 WHERE id = $1`, id, enabled)
	return err
}

func (s *Store) SetFingerprintFrequency(ctx context.Context, id uuid.UUID, hours int) error {
	_, err := s.pool.Exec(ctx, `UPDATE fingerprints SET check_frequency_hours = $2 WHERE id = $1`, id, hours)
	return err
}

// --- Fetch runs ---

const runCols = `id, fingerprint_id, provider_code, trigger, scheduled_for, started_at, finished_at,
	run_status, provider_status, error_message, candidate_count, observation_count`

func scanRun(scan func(dest ...any) error) (models.FetchRun, error) {
	var r models.FetchRun
	var providerStatus, errMsg *string
	err := scan(&r.ID, &r.FingerprintID, &r.ProviderCode, &r.Trigger, &r.ScheduledFor, &r.StartedAt, &r.FinishedAt,
		&r.RunStatus, &providerStatus, &errMsg, &r.CandidateCount, &r.ObservationCount)
	if providerStatus != nil {
		r.ProviderStatus = models.ProviderStatus(*providerStatus)
	}
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	return r, err
}

func (s *Store) CreateFetchRun(ctx context.Context, run *models.FetchRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fetch_runs (id, fingerprint_id, provider_code, trigger, scheduled_for, started_at, run_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.FingerprintID, run.ProviderCode, string(run.Trigger), run.ScheduledFor, run.StartedAt, string(run.RunStatus))
	if err != nil {
		return fmt.Errorf("insert fetch run: %w", err)
	}
	return nil
}

var ErrRunFinished = errors.New("fetch run is not running")

// FinishFetchRun only touches RUNNING rows, so a run is finished once.
func (s *Store) FinishFetchRun(ctx context.Context, id uuid.UUID, res models.RunResult) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fetch_runs
		SET finished_at = $2, run_status = $3, provider_status = NULLIF($4, ''), error_message = NULLIF($5, ''),
			candidate_count = $6, observation_count = $7
		WHERE id = $1 AND run_status = 'RUNNING'
	`, id, res.FinishedAt, string(res.RunStatus), string(res.ProviderStatus), res.ErrorMessage,
		res.CandidateCount, res.ObservationCount)
	if err != nil {
		return fmt.Errorf("finish fetch run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish fetch run %s: %w", id, ErrRunFinished)
	}
	return nil
}

type RunListParams struct {
	FingerprintID *uuid.UUID
	ProviderCode  string
	Trigger       string
	RunStatus     string
	Since         *time.Time
	Limit         int
}

func buildRunsQuery(params RunListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if params.FingerprintID != nil {
		where += fmt.Sprintf(" AND fingerprint_id = $%d", argIdx)
		args = append(args, *params.FingerprintID)
		argIdx++
	}
	if params.ProviderCode != "" {
		where += fmt.Sprintf(" AND provider_code = $%d", argIdx)
		args = append(args, params.ProviderCode)
		argIdx++
	}
	if params.Trigger != "" {
		where += fmt.Sprintf(" AND trigger = $%d", argIdx)
		args = append(args, params.Trigger)
		argIdx++
	}
	if params.RunStatus != "" {
		where += fmt.Sprintf(" AND run_status = $%d", argIdx)
		args = append(args, params.RunStatus)
		argIdx++
	}
	if params.Since != nil {
		where += fmt.Sprintf(" AND started_at >= $%d", argIdx)
		args = append(args, *params.Since)
		argIdx++
	}

	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit)

	sql := fmt.Sprintf(`SELECT %s FROM fetch_runs %s ORDER BY started_at DESC LIMIT $%d`, runCols, where, argIdx)
	return sql, args
}

func (s *Store) ListRuns(ctx context.Context, params RunListParams) ([]models.FetchRun, error) {
	sql, args := buildRunsQuery(params)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list fetch runs: %w", err)
	}
	defer rows.Close()

	var out []models.FetchRun
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Observations ---

func (s *Store) InsertObservations(ctx context.Context, obs []models.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, o := range obs {
		stay, err := time.Parse(dateLayout, o.StayStartDate)
		if err != nil {
			return 0, fmt.Errorf("observation %s: invalid stay date %q: %w", o.ID, o.StayStartDate, err)
		}
		batch.Queue(`
			INSERT INTO observations (id, fetch_run_id, fingerprint_id, series_key, stay_start_date, stay_nights,
				price_total, price_per_night, availability, observed_at, source_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
			ON CONFLICT (id) DO NOTHING
		`, o.ID, o.FetchRunID, o.FingerprintID, o.SeriesKey, stay, o.StayNights,
			o.PriceTotal, o.PricePerNight, string(o.Availability), o.ObservedAt, o.SourceURL)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range obs {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert observation: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) ListRunSeriesKeys(ctx context.Context, runID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT series_key FROM observations WHERE fetch_run_id = $1 ORDER BY series_key`, runID)
	if err != nil {
		return nil, fmt.Errorf("list series keys for run %s: %w", runID, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) ListSeriesObservations(ctx context.Context, fingerprintID uuid.UUID, seriesKey string) ([]models.Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fetch_run_id, fingerprint_id, series_key, to_char(stay_start_date, 'YYYY-MM-DD'), stay_nights,
			price_total::float8, price_per_night::float8, availability, observed_at, COALESCE(source_url, '')
		FROM observations
		WHERE fingerprint_id = $1 AND series_key = $2
		ORDER BY observed_at
	`, fingerprintID, seriesKey)
	if err != nil {
		return nil, fmt.Errorf("list series observations: %w", err)
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.ID, &o.FetchRunID, &o.FingerprintID, &o.SeriesKey, &o.StayStartDate, &o.StayNights,
			&o.PriceTotal, &o.PricePerNight, &o.Availability, &o.ObservedAt, &o.SourceURL); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Insights ---

func (s *Store) InsertInsight(ctx context.Context, in *models.Insight) (bool, error) {
	details := []byte(in.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO insights (id, fingerprint_id, series_key, type, dedupe_key, summary, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, in.ID, in.FingerprintID, in.SeriesKey, string(in.Type), in.DedupeKey, in.Summary, details, in.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert insight: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetInsight(ctx context.Context, id uuid.UUID) (*models.Insight, error) {
	return s.scanInsight(ctx, "id = $1", id)
}

func (s *Store) FindInsightByDedupeKey(ctx context.Context, key string) (*models.Insight, error) {
	return s.scanInsight(ctx, "dedupe_key = $1", key)
}

func (s *Store) scanInsight(ctx context.Context, where string, arg any) (*models.Insight, error) {
	var in models.Insight
	var details []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, fingerprint_id, series_key, type, dedupe_key, summary, details, created_at
		FROM insights WHERE `+where, arg).Scan(&in.ID, &in.FingerprintID, &in.SeriesKey, &in.Type, &in.DedupeKey, &in.Summary, &details, &in.CreatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("insight %v", arg))
	}
	in.Details = details
	return &in, nil
}

// --- Alerts ---

func (s *Store) FindAlertByDedupeKey(ctx context.Context, key string) (*models.Alert, error) {
	var a models.Alert
	var errMsg *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, insight_id, dedupe_key, status, sent_at, error, created_at, claimed_at
		FROM alerts WHERE dedupe_key = $1
	`, key).Scan(&a.ID, &a.UserID, &a.InsightID, &a.DedupeKey, &a.Status, &a.SentAt, &errMsg, &a.CreatedAt, &a.ClaimedAt)
	if err != nil {
		return nil, notFound(err, "alert")
	}
	if errMsg != nil {
		a.Error = *errMsg
	}
	return &a, nil
}

func (s *Store) InsertAlert(ctx context.Context, a *models.Alert) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (id, user_id, insight_id, dedupe_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, a.ID, a.UserID, a.InsightID, a.DedupeKey, string(a.Status), a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReclaimPendingAlert takes over a PENDING alert last claimed at or before
// staleBefore. Only one caller wins a given stale alert.
func (s *Store) ReclaimPendingAlert(ctx context.Context, id uuid.UUID, staleBefore, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET claimed_at = $3
		WHERE id = $1 AND status = 'PENDING' AND COALESCE(claimed_at, created_at) <= $2
	`, id, staleBefore, now)
	if err != nil {
		return false, fmt.Errorf("reclaim alert %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.AlertStatus, sentAt *time.Time, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE alerts SET status = $2, sent_at = $3, error = NULLIF($4, '') WHERE id = $1
	`, id, string(status), sentAt, errMsg)
	return err
}

// --- Offers ---

func (s *Store) UpsertOffers(ctx context.Context, offers []models.Offer) (int, error) {
	if len(offers) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, o := range offers {
		batch.Queue(`
			INSERT INTO offers (provider_code, title, description, promo_code, discount_percent, valid_until, url, observed_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, 0), $6, NULLIF($7, ''), $8)
			ON CONFLICT (provider_code, title) DO UPDATE SET
				description = EXCLUDED.description,
				promo_code = EXCLUDED.promo_code,
				discount_percent = EXCLUDED.discount_percent,
				valid_until = EXCLUDED.valid_until,
				url = EXCLUDED.url,
				observed_at = EXCLUDED.observed_at
		`, o.ProviderCode, o.Title, o.Description, o.PromoCode, o.DiscountPercent, o.ValidUntil, o.URL, o.ObservedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	n := 0
	for range offers {
		tag, err := results.Exec()
		if err != nil {
			return n, fmt.Errorf("upsert offer: %w", err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}

func (s *Store) ListOffers(ctx context.Context, providerCode string) ([]models.Offer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_code, title, description, COALESCE(promo_code, ''), COALESCE(discount_percent, 0)::float8,
			valid_until, COALESCE(url, ''), observed_at
		FROM offers
		WHERE $1 = '' OR provider_code = $1
		ORDER BY observed_at DESC
	`, providerCode)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var out []models.Offer
	for rows.Next() {
		var o models.Offer
		if err := rows.Scan(&o.ProviderCode, &o.Title, &o.Description, &o.PromoCode, &o.DiscountPercent,
			&o.ValidUntil, &o.URL, &o.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Stats ---

var countedTables = []string{"profiles", "fingerprints", "fetch_runs", "observations", "insights", "alerts", "offers"}

func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(countedTables))
	for _, table := range countedTables {
		var n int64
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return counts, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
