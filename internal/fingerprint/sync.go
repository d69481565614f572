package fingerprint

import (
	"context"
	"fmt"
	"time"

	"github.com/david/holiday-watch/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultCheckFrequencyHours = 24

// Repository is the slice of persistence Sync needs.
type Repository interface {
	ListProfileFingerprints(ctx context.Context, profileID uuid.UUID) ([]models.Fingerprint, error)
	CreateFingerprint(ctx context.Context, fp *models.Fingerprint) error
	SetFingerprintEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	SetFingerprintFrequency(ctx context.Context, id uuid.UUID, hours int) error
}

// ProviderSet tells Sync which provider codes resolve to an adapter.
type ProviderSet interface {
	Has(code string) bool
}

// SyncResult counts fingerprints by what Sync did to them. Retuned ones
// only had their check frequency changed.
type SyncResult struct {
	Created   int `json:"created"`
	Reenabled int `json:"reenabled"`
	Retuned   int `json:"retuned"`
	Unchanged int `json:"unchanged"`
	Disabled  int `json:"disabled"`
}

type Syncer struct {
	repo      Repository
	providers ProviderSet
	log       *logrus.Entry
	now       func() time.Time
}

func NewSyncer(repo Repository, providers ProviderSet) *Syncer {
	return &Syncer{
		repo:      repo,
		providers: providers,
		log:       logrus.WithField("component", "fingerprint_sync"),
		now:       time.Now,
	}
}

// Sync brings a profile's fingerprints in line with its current intent and
// provider list. Fingerprints are never deleted: ones that no longer match
// are disabled so their observation history stays chartable.
func (s *Syncer) Sync(ctx context.Context, profile models.Profile) (SyncResult, error) {
	var res SyncResult

	type wantedKey struct{ provider, hash string }
	wanted := make(map[wantedKey][]byte, len(profile.Providers))
	for _, code := range profile.Providers {
		code = normalizeCode(code)
		if code == "" {
			continue
		}
		if s.providers != nil && !s.providers.Has(code) {
			return res, fmt.Errorf("profile %s references unknown provider %q", profile.ID, code)
		}
		payload, hash, err := Canonicalize(profile.Intent, code)
		if err != nil {
			return res, fmt.Errorf("canonicalize %s for profile %s: %w", code, profile.ID, err)
		}
		wanted[wantedKey{code, hash}] = payload
	}

	existing, err := s.repo.ListProfileFingerprints(ctx, profile.ID)
	if err != nil {
		return res, fmt.Errorf("list fingerprints: %w", err)
	}

	have := make(map[wantedKey]models.Fingerprint, len(existing))
	for _, fp := range existing {
		have[wantedKey{normalizeCode(fp.ProviderCode), fp.CanonicalHash}] = fp
	}

	frequency := profile.CheckFrequencyHours
	if frequency <= 0 {
		frequency = DefaultCheckFrequencyHours
	}

	for key, payload := range wanted {
		fp, ok := have[key]
		retuned := false
		if ok && fp.CheckFrequencyHours != frequency {
			if err := s.repo.SetFingerprintFrequency(ctx, fp.ID, frequency); err != nil {
				return res, fmt.Errorf("set frequency of fingerprint %s: %w", fp.ID, err)
			}
			retuned = true
		}
		switch {
		case ok && fp.Enabled && retuned:
			res.Retuned++
		case ok && fp.Enabled:
			res.Unchanged++
		case ok:
			if err := s.repo.SetFingerprintEnabled(ctx, fp.ID, true); err != nil {
				return res, fmt.Errorf("re-enable fingerprint %s: %w", fp.ID, err)
			}
			res.Reenabled++
		default:
			created := &models.Fingerprint{
				ID:                  uuid.New(),
				ProfileID:           profile.ID,
				ProviderCode:        key.provider,
				CanonicalHash:       key.hash,
				CanonicalPayload:    payload,
				CheckFrequencyHours: frequency,
				Enabled:             true,
				CreatedAt:           s.now(),
			}
			if err := s.repo.CreateFingerprint(ctx, created); err != nil {
				return res, fmt.Errorf("create fingerprint for %s: %w", key.provider, err)
			}
			res.Created++
		}
	}

	for key, fp := range have {
		if _, keep := wanted[key]; keep || !fp.Enabled {
			continue
		}
		if err := s.repo.SetFingerprintEnabled(ctx, fp.ID, false); err != nil {
			return res, fmt.Errorf("disable fingerprint %s: %w", fp.ID, err)
		}
		res.Disabled++
	}

	s.log.WithFields(logrus.Fields{
		"profile_id": profile.ID,
		"created":    res.Created,
		"reenabled":  res.Reenabled,
		"retuned":    res.Retuned,
		"unchanged":  res.Unchanged,
		"disabled":   res.Disabled,
	}).Info("Fingerprints synced")

	return res, nil
}
