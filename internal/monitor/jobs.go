package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type MonitorPayload struct {
	FingerprintID uuid.UUID `json:"fingerprint_id"`
	ScheduledFor  time.Time `json:"scheduled_for"`
}

type InsightPayload struct {
	FingerprintID uuid.UUID `json:"fingerprint_id"`
	FetchRunID    uuid.UUID `json:"fetch_run_id"`
}

type AlertPayload struct {
	InsightID uuid.UUID `json:"insight_id"`
}

type DealScanPayload struct {
	Day string `json:"day"`
}

// MonitorJobID allows one monitor job per fingerprint per clock hour.
func MonitorJobID(fingerprintID uuid.UUID, at time.Time) string {
	slot := at.UTC().Truncate(time.Hour).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(fingerprintID.String() + "|" + slot))
	return hex.EncodeToString(sum[:])
}

func DealScanJobID(at time.Time) string {
	return "deal-scan:" + at.UTC().Format("2006-01-02")
}

func InsightJobID(runID uuid.UUID) string {
	return "insight:" + runID.String()
}

func AlertJobID(insightID uuid.UUID) string {
	return "alert:" + insightID.String()
}
