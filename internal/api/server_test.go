package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/david/holiday-watch/internal/db"
	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/models"
	"github.com/david/holiday-watch/internal/monitor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-admin-secret"

type fakeStore struct {
	pingErr      error
	profiles     map[uuid.UUID]*models.Profile
	fingerprints map[uuid.UUID]*models.Fingerprint
	runs         []models.FetchRun
	offers       []models.Offer
	lastParams   db.RunListParams
	lastProvider string
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeStore) GetFingerprint(ctx context.Context, id uuid.UUID) (*models.Fingerprint, error) {
	if fp, ok := f.fingerprints[id]; ok {
		return fp, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeStore) ListRuns(ctx context.Context, params db.RunListParams) ([]models.FetchRun, error) {
	f.lastParams = params
	return f.runs, nil
}

func (f *fakeStore) ListOffers(ctx context.Context, providerCode string) ([]models.Offer, error) {
	f.lastProvider = providerCode
	return f.offers, nil
}

type fakePreviewer struct {
	got    monitor.PreviewRequest
	called bool
	err    error
}

func (f *fakePreviewer) Preview(ctx context.Context, req monitor.PreviewRequest) (*monitor.PreviewResult, error) {
	f.called = true
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &monitor.PreviewResult{GeneratedAt: time.Now().UTC()}, nil
}

type fakeSyncer struct {
	res fingerprint.SyncResult
	err error
}

func (f *fakeSyncer) Sync(ctx context.Context, profile models.Profile) (fingerprint.SyncResult, error) {
	return f.res, f.err
}

type fakeAdapter struct {
	code    string
	enabled bool
}

func (a *fakeAdapter) Code() string    { return a.code }
func (a *fakeAdapter) IsEnabled() bool { return a.enabled }
func (a *fakeAdapter) Cleanup() error  { return nil }

func (a *fakeAdapter) Search(ctx context.Context, intent models.SearchIntent) ([]models.RawCandidate, ingest.FetchMeta, error) {
	return nil, ingest.FetchMeta{}, nil
}

func (a *fakeAdapter) FetchOffers(ctx context.Context) ([]models.Offer, ingest.FetchMeta, error) {
	return nil, ingest.FetchMeta{}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeStore, *fakePreviewer, *fakeSyncer) {
	t.Helper()
	store := &fakeStore{
		profiles:     map[uuid.UUID]*models.Profile{},
		fingerprints: map[uuid.UUID]*models.Fingerprint{},
	}
	previewer := &fakePreviewer{}
	syncer := &fakeSyncer{}
	providers := ingest.NewAdapterRegistry()
	providers.Register(&fakeAdapter{code: "haven", enabled: true})
	providers.Register(&fakeAdapter{code: "parkdean"})

	srv := NewServer(store, previewer, syncer, providers, Options{AdminSecret: testSecret, PreviewTimeout: time.Second})
	return srv, store, previewer, syncer
}

func do(srv *Server, method, path, body string, admin bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+testSecret)
	}
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, store, _, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	store.pingErr = errors.New("connection refused")
	rec = do(srv, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListProviders(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/api/v1/providers", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []providerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []providerInfo{
		{Code: "haven", Enabled: true},
		{Code: "parkdean", Enabled: false},
	}, got)
}

func TestListOffers(t *testing.T) {
	srv, store, _, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/api/v1/offers", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	store.offers = []models.Offer{{ProviderCode: "haven", Title: "Spring sale", DiscountPercent: 20}}
	rec = do(srv, http.MethodGet, "/api/v1/offers?provider=Haven", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "haven", store.lastProvider)

	var got []models.Offer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Spring sale", got[0].Title)
}

func TestListFingerprintRuns(t *testing.T) {
	srv, store, _, _ := newTestServer(t)
	fpID := uuid.New()
	store.fingerprints[fpID] = &models.Fingerprint{ID: fpID, ProviderCode: "haven"}
	store.runs = []models.FetchRun{{ID: uuid.New(), ProviderCode: "haven", RunStatus: models.RunStatusOK}}

	rec := do(srv, http.MethodGet, "/api/v1/fingerprints/"+fpID.String()+"/runs?status=ok&limit=5", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.lastParams.FingerprintID)
	assert.Equal(t, fpID, *store.lastParams.FingerprintID)
	assert.Equal(t, "OK", store.lastParams.RunStatus)
	assert.Equal(t, 5, store.lastParams.Limit)

	rec = do(srv, http.MethodGet, "/api/v1/fingerprints/"+uuid.NewString()+"/runs", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(srv, http.MethodGet, "/api/v1/fingerprints/not-a-uuid/runs", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	srv, _, previewer, _ := newTestServer(t)

	rec := do(srv, http.MethodPost, "/api/v1/profiles/"+uuid.NewString()+"/preview", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, previewer.called)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profiles/"+uuid.NewString()+"/sync", nil)
	req.Header.Set("X-Admin-Secret", "wrong")
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfilePreview(t *testing.T) {
	srv, _, previewer, _ := newTestServer(t)
	profileID := uuid.New()

	rec := do(srv, http.MethodPost, "/api/v1/profiles/"+profileID.String()+"/preview",
		`{"providers":["haven"],"limit":5,"sort_by":"date"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, previewer.got.ProfileID)
	assert.Equal(t, profileID, *previewer.got.ProfileID)
	assert.Equal(t, []string{"haven"}, previewer.got.Providers)
	assert.Equal(t, 5, previewer.got.Limit)
	assert.Equal(t, monitor.SortByDate, previewer.got.SortBy)
	assert.Nil(t, previewer.got.Intent)
}

func TestProfilePreview_EmptyBody(t *testing.T) {
	srv, _, previewer, _ := newTestServer(t)

	rec := do(srv, http.MethodPost, "/api/v1/profiles/"+uuid.NewString()+"/preview", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, previewer.called)
}

func TestProfilePreview_RejectsInvalidBody(t *testing.T) {
	srv, _, previewer, _ := newTestServer(t)
	path := "/api/v1/profiles/" + uuid.NewString() + "/preview"

	for name, body := range map[string]string{
		"limit too large": `{"limit":1000}`,
		"bad sort":        `{"sort_by":"rating"}`,
		"unknown field":   `{"colour":"blue"}`,
		"not json":        `{"limit":`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(srv, http.MethodPost, path, body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.False(t, previewer.called)
}

func TestProfilePreview_NotFound(t *testing.T) {
	srv, _, previewer, _ := newTestServer(t)
	previewer.err = models.ErrNotFound

	rec := do(srv, http.MethodPost, "/api/v1/profiles/"+uuid.NewString()+"/preview", "{}", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdhocPreview(t *testing.T) {
	srv, _, previewer, _ := newTestServer(t)

	body := `{"intent":{"adults":2,"date_start":"2026-07-10","nights_min":7,"pets":true},"providers":["haven"]}`
	rec := do(srv, http.MethodPost, "/api/v1/preview", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, previewer.got.Intent)
	assert.Nil(t, previewer.got.ProfileID)
	assert.Equal(t, 2, previewer.got.Intent.Adults)
	assert.True(t, previewer.got.Intent.Pets)

	rec = do(srv, http.MethodPost, "/api/v1/preview", `{"intent":{"adults":2}}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileSync(t *testing.T) {
	srv, store, _, syncer := newTestServer(t)
	profileID := uuid.New()
	store.profiles[profileID] = &models.Profile{ID: profileID, Providers: []string{"haven"}}
	syncer.res = fingerprint.SyncResult{Created: 1}

	rec := do(srv, http.MethodPost, "/api/v1/profiles/"+profileID.String()+"/sync", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var got fingerprint.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Created)

	rec = do(srv, http.MethodPost, "/api/v1/profiles/"+uuid.NewString()+"/sync", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
