package monitor

import (
	"context"
	"fmt"

	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/models"
	"github.com/sirupsen/logrus"
)

type ProfileSyncer interface {
	Sync(ctx context.Context, profile models.Profile) (fingerprint.SyncResult, error)
}

// SyncAllProfiles reconciles fingerprints for every profile. One failing
// profile does not stop the rest; the totals cover the ones that succeeded.
func SyncAllProfiles(ctx context.Context, profiles ProfileStore, syncer ProfileSyncer) (fingerprint.SyncResult, error) {
	var total fingerprint.SyncResult
	list, err := profiles.ListProfiles(ctx)
	if err != nil {
		return total, fmt.Errorf("list profiles: %w", err)
	}

	log := logrus.WithField("component", "profile_sync")
	failed := 0
	for _, p := range list {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := syncer.Sync(ctx, p)
		if err != nil {
			failed++
			log.WithError(err).WithField("profile_id", p.ID).Warn("Profile sync failed")
			continue
		}
		total.Created += res.Created
		total.Reenabled += res.Reenabled
		total.Retuned += res.Retuned
		total.Unchanged += res.Unchanged
		total.Disabled += res.Disabled
	}

	log.WithFields(logrus.Fields{
		"profiles":  len(list),
		"failed":    failed,
		"created":   total.Created,
		"disabled":  total.Disabled,
		"reenabled": total.Reenabled,
		"retuned":   total.Retuned,
	}).Info("Profile sync complete")
	return total, nil
}
