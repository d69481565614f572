package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/models"
	"github.com/david/holiday-watch/internal/notify"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory implementation of every store interface that
// records each write it receives.
type memStore struct {
	mu           sync.Mutex
	fingerprints map[uuid.UUID]*models.Fingerprint
	profiles     map[uuid.UUID]*models.Profile
	runs         map[uuid.UUID]*models.FetchRun
	observations []models.Observation
	insights     map[uuid.UUID]*models.Insight
	insightKeys  map[string]bool
	alerts       map[uuid.UUID]*models.Alert
	offers       []models.Offer
	scheduled    map[uuid.UUID]time.Time
	writes       []string
	failInsert   error
}

func newMemStore() *memStore {
	return &memStore{
		fingerprints: map[uuid.UUID]*models.Fingerprint{},
		profiles:     map[uuid.UUID]*models.Profile{},
		runs:         map[uuid.UUID]*models.FetchRun{},
		insights:     map[uuid.UUID]*models.Insight{},
		insightKeys:  map[string]bool{},
		alerts:       map[uuid.UUID]*models.Alert{},
		scheduled:    map[uuid.UUID]time.Time{},
	}
}

func (m *memStore) record(op string) { m.writes = append(m.writes, op) }

func (m *memStore) GetFingerprint(_ context.Context, id uuid.UUID) (*models.Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.fingerprints[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *fp
	return &cp, nil
}

func (m *memStore) ListDueFingerprints(_ context.Context, now time.Time) ([]models.Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Fingerprint
	for _, fp := range m.fingerprints {
		if !fp.Enabled {
			continue
		}
		if fp.LastScheduledAt == nil || fp.LastScheduledAt.Before(now.Add(-time.Duration(fp.CheckFrequencyHours)*time.Hour)) {
			out = append(out, *fp)
		}
	}
	return out, nil
}

func (m *memStore) MarkFingerprintScheduled(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("mark_scheduled")
	m.scheduled[id] = at
	if fp, ok := m.fingerprints[id]; ok {
		fp.LastScheduledAt = &at
	}
	return nil
}

func (m *memStore) CreateFetchRun(_ context.Context, run *models.FetchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create_run")
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStore) FinishFetchRun(_ context.Context, id uuid.UUID, res models.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("finish_run")
	run, ok := m.runs[id]
	if !ok {
		return models.ErrNotFound
	}
	if run.RunStatus != models.RunStatusRunning {
		return fmt.Errorf("run %s already finished", id)
	}
	finished := res.FinishedAt
	run.FinishedAt = &finished
	run.RunStatus = res.RunStatus
	run.ProviderStatus = res.ProviderStatus
	run.ErrorMessage = res.ErrorMessage
	run.CandidateCount = res.CandidateCount
	run.ObservationCount = res.ObservationCount
	return nil
}

func (m *memStore) InsertObservations(_ context.Context, obs []models.Observation) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return 0, m.failInsert
	}
	m.record("insert_observations")
	m.observations = append(m.observations, obs...)
	return len(obs), nil
}

func (m *memStore) ListRunSeriesKeys(_ context.Context, runID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var keys []string
	for _, o := range m.observations {
		if o.FetchRunID == runID && !seen[o.SeriesKey] {
			seen[o.SeriesKey] = true
			keys = append(keys, o.SeriesKey)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) ListSeriesObservations(_ context.Context, fingerprintID uuid.UUID, seriesKey string) ([]models.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Observation
	for _, o := range m.observations {
		if o.FingerprintID == fingerprintID && o.SeriesKey == seriesKey {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) InsertInsight(_ context.Context, in *models.Insight) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insightKeys[in.DedupeKey] {
		return false, nil
	}
	m.record("insert_insight")
	m.insightKeys[in.DedupeKey] = true
	cp := *in
	m.insights[in.ID] = &cp
	return true, nil
}

func (m *memStore) GetInsight(_ context.Context, id uuid.UUID) (*models.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.insights[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (m *memStore) FindInsightByDedupeKey(_ context.Context, key string) (*models.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.insights {
		if in.DedupeKey == key {
			cp := *in
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) FindAlertByDedupeKey(_ context.Context, key string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.DedupeKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) InsertAlert(_ context.Context, a *models.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.alerts {
		if existing.DedupeKey == a.DedupeKey {
			return false, nil
		}
	}
	m.record("insert_alert")
	cp := *a
	m.alerts[a.ID] = &cp
	return true, nil
}

func (m *memStore) ReclaimPendingAlert(_ context.Context, id uuid.UUID, staleBefore, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.Status != models.AlertPending {
		return false, nil
	}
	last := a.CreatedAt
	if a.ClaimedAt != nil {
		last = *a.ClaimedAt
	}
	if last.After(staleBefore) {
		return false, nil
	}
	claimed := now
	a.ClaimedAt = &claimed
	return true, nil
}

func (m *memStore) UpdateAlertStatus(_ context.Context, id uuid.UUID, status models.AlertStatus, sentAt *time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Status = status
	a.SentAt = sentAt
	a.Error = errMsg
	return nil
}

func (m *memStore) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListProfiles(_ context.Context) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Profile
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) UpsertOffers(_ context.Context, offers []models.Offer) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("upsert_offers")
	m.offers = append(m.offers, offers...)
	return len(offers), nil
}

func (m *memStore) runsByStatus(status models.RunStatus) []models.FetchRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FetchRun
	for _, r := range m.runs {
		if r.RunStatus == status {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memStore) alertList() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Alert
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// recordingEnqueuer dedupes on job ID like the Redis client does.
type recordingEnqueuer struct {
	mu   sync.Mutex
	seen map[string]bool
	jobs []queue.Job
	err  error
}

func newRecordingEnqueuer() *recordingEnqueuer {
	return &recordingEnqueuer{seen: map[string]bool{}}
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, q, jobID string, payload any) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return false, e.err
	}
	key := q + ":" + jobID
	if e.seen[key] {
		return false, nil
	}
	e.seen[key] = true
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	e.jobs = append(e.jobs, queue.Job{ID: jobID, Queue: q, Payload: raw})
	return true, nil
}

func (e *recordingEnqueuer) on(q string) []queue.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []queue.Job
	for _, j := range e.jobs {
		if j.Queue == q {
			out = append(out, j)
		}
	}
	return out
}

// stubAdapter returns canned candidates or an error.
type stubAdapter struct {
	code       string
	enabled    bool
	candidates []models.RawCandidate
	offers     []models.Offer
	meta       ingest.FetchMeta
	err        error
	offersErr  error
	searches   int
	mu         sync.Mutex
}

func (a *stubAdapter) Code() string    { return a.code }
func (a *stubAdapter) IsEnabled() bool { return a.enabled }
func (a *stubAdapter) Cleanup() error  { return nil }

func (a *stubAdapter) Search(_ context.Context, intent models.SearchIntent) ([]models.RawCandidate, ingest.FetchMeta, error) {
	a.mu.Lock()
	a.searches++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.meta, a.err
	}
	return a.candidates, a.meta, nil
}

func (a *stubAdapter) FetchOffers(_ context.Context) ([]models.Offer, ingest.FetchMeta, error) {
	if a.offersErr != nil {
		return nil, a.meta, a.offersErr
	}
	return a.offers, a.meta, nil
}

type stubAdapters map[string]*stubAdapter

func (s stubAdapters) Get(code string) (ingest.Adapter, error) {
	a, ok := s[code]
	if !ok {
		return nil, fmt.Errorf("adapter not found: %s", code)
	}
	return a, nil
}

func (s stubAdapters) Enabled() []ingest.Adapter {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	var out []ingest.Adapter
	for _, c := range codes {
		if s[c].enabled {
			out = append(out, s[c])
		}
	}
	return out
}

// recordingSender captures notifications instead of sending them.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

var errUpstream = errors.New("upstream unavailable")

func testIntent() models.UserIntent {
	return models.UserIntent{
		Adults:      2,
		Children:    1,
		DateStart:   "2026-07-10",
		DateEnd:     "2026-07-24",
		NightsMin:   7,
		NightsMax:   7,
		Pets:        true,
		MinBedrooms: 2,
	}
}

// seedFingerprint stores a profile and one enabled fingerprint for provider.
func seedFingerprint(t *testing.T, store *memStore, provider string) *models.Fingerprint {
	t.Helper()
	profile := &models.Profile{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		Name:                "Summer lodge",
		Intent:              testIntent(),
		Providers:           []string{provider},
		CheckFrequencyHours: 24,
		Email:               "family@example.com",
	}
	store.profiles[profile.ID] = profile

	fp := &models.Fingerprint{
		ID:                  uuid.New(),
		ProfileID:           profile.ID,
		ProviderCode:        provider,
		CheckFrequencyHours: 24,
		Enabled:             true,
	}
	payload, hash, err := fingerprint.Canonicalize(profile.Intent, provider)
	require.NoError(t, err)
	fp.CanonicalPayload = payload
	fp.CanonicalHash = hash
	store.fingerprints[fp.ID] = fp
	return fp
}

func strongCandidate(provider string, price float64) models.RawCandidate {
	beds, pets := 3, true
	return models.RawCandidate{
		ProviderCode:  provider,
		StayStartDate: "2026-07-10",
		Nights:        7,
		PriceTotal:    price,
		Availability:  models.AvailabilityAvailable,
		Bedrooms:      &beds,
		PetsAllowed:   &pets,
		ParkID:        "park-1",
		AccomTypeID:   "lodge-3",
	}
}

func jobFor(t *testing.T, q string, payload any) queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Job{ID: uuid.NewString(), Queue: q, Payload: raw}
}
