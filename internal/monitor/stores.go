package monitor

import (
	"context"
	"time"

	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/models"
	"github.com/google/uuid"
)

// Stores return models.ErrNotFound (possibly wrapped) for missing rows.

type FingerprintStore interface {
	GetFingerprint(ctx context.Context, id uuid.UUID) (*models.Fingerprint, error)
	// ListDueFingerprints returns enabled fingerprints never scheduled, or
	// last scheduled more than their check frequency before now.
	ListDueFingerprints(ctx context.Context, now time.Time) ([]models.Fingerprint, error)
	MarkFingerprintScheduled(ctx context.Context, id uuid.UUID, at time.Time) error
}

type RunStore interface {
	CreateFetchRun(ctx context.Context, run *models.FetchRun) error
	// FinishFetchRun applies the single terminal update to a RUNNING run.
	FinishFetchRun(ctx context.Context, id uuid.UUID, res models.RunResult) error
}

type ObservationStore interface {
	InsertObservations(ctx context.Context, obs []models.Observation) (int, error)
	ListRunSeriesKeys(ctx context.Context, runID uuid.UUID) ([]string, error)
	ListSeriesObservations(ctx context.Context, fingerprintID uuid.UUID, seriesKey string) ([]models.Observation, error)
}

type InsightStore interface {
	// InsertInsight stores the insight unless its dedupe key exists and
	// reports whether a row was written.
	InsertInsight(ctx context.Context, in *models.Insight) (bool, error)
	GetInsight(ctx context.Context, id uuid.UUID) (*models.Insight, error)
	FindInsightByDedupeKey(ctx context.Context, key string) (*models.Insight, error)
}

type AlertStore interface {
	FindAlertByDedupeKey(ctx context.Context, key string) (*models.Alert, error)
	InsertAlert(ctx context.Context, a *models.Alert) (bool, error)
	// ReclaimPendingAlert claims a PENDING alert whose last claim is at or
	// before staleBefore and reports whether this caller won it.
	ReclaimPendingAlert(ctx context.Context, id uuid.UUID, staleBefore, now time.Time) (bool, error)
	UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.AlertStatus, sentAt *time.Time, errMsg string) error
}

// ProfileStore is read only: profiles are owned by the account service.
type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]models.Profile, error)
}

type OfferStore interface {
	UpsertOffers(ctx context.Context, offers []models.Offer) (int, error)
}

// Enqueuer is satisfied by *queue.Client.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, jobID string, payload any) (bool, error)
}

// Adapters is satisfied by *ingest.AdapterRegistry.
type Adapters interface {
	Get(code string) (ingest.Adapter, error)
	Enabled() []ingest.Adapter
}
