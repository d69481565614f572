package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UserIntent is the holiday a profile is looking for. It is supplied by the
// profile store and never written by the pipeline.
type UserIntent struct {
	Adults            int      `json:"adults"`
	Children          int      `json:"children"`
	DateStart         string   `json:"date_start"` // YYYY-MM-DD
	DateEnd           string   `json:"date_end"`
	NightsMin         int      `json:"nights_min"`
	NightsMax         int      `json:"nights_max"`
	Pets              bool     `json:"pets"`
	MinBedrooms       int      `json:"min_bedrooms"`
	AccommodationType string   `json:"accommodation_type,omitempty"`
	PeakTolerance     string   `json:"peak_tolerance,omitempty"` // "avoid", "ok"
	Region            string   `json:"region,omitempty"`
	ParkIDs           []string `json:"park_ids,omitempty"`
}

type Profile struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              uuid.UUID  `json:"user_id"`
	Name                string     `json:"name"`
	Intent              UserIntent `json:"intent"`
	Providers           []string   `json:"providers"`
	CheckFrequencyHours int        `json:"check_frequency_hours"`
	Email               string     `json:"email,omitempty"`
	Phone               string     `json:"phone,omitempty"`
}

// Fingerprint is one recurring (profile, provider) search.
type Fingerprint struct {
	ID                  uuid.UUID       `json:"id"`
	ProfileID           uuid.UUID       `json:"profile_id"`
	ProviderCode        string          `json:"provider_code"`
	CanonicalHash       string          `json:"canonical_hash"`
	CanonicalPayload    json.RawMessage `json:"canonical_payload"`
	CheckFrequencyHours int             `json:"check_frequency_hours"`
	LastScheduledAt     *time.Time      `json:"last_scheduled_at"`
	Enabled             bool            `json:"enabled"`
	CreatedAt           time.Time       `json:"created_at"`
}

// SearchIntent is what adapters search for and what the matcher checks
// candidates against.
type SearchIntent struct {
	ProviderCode      string   `json:"provider_code"`
	StayStartDate     string   `json:"stay_start_date"`
	Nights            int      `json:"nights"`
	Adults            int      `json:"adults"`
	Children          int      `json:"children"`
	Pets              bool     `json:"pets"`
	MinBedrooms       int      `json:"min_bedrooms"`
	AccommodationType string   `json:"accommodation_type,omitempty"`
	Region            string   `json:"region,omitempty"`
	ParkIDs           []string `json:"park_ids,omitempty"`
}

type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilitySoldOut   Availability = "SOLD_OUT"
	AvailabilityUnknown   Availability = "UNKNOWN"
)

// RawCandidate is one stay extracted from a provider page. Zero values of
// StayStartDate and Nights, and nil pointers, mean the provider did not say.
type RawCandidate struct {
	ProviderCode      string       `json:"provider_code"`
	StayStartDate     string       `json:"stay_start_date"`
	Nights            int          `json:"nights"`
	PriceTotal        float64      `json:"price_total"`
	Availability      Availability `json:"availability"`
	AccommodationType string       `json:"accommodation_type,omitempty"`
	Bedrooms          *int         `json:"bedrooms,omitempty"`
	PetsAllowed       *bool        `json:"pets_allowed,omitempty"`
	ParkID            string       `json:"park_id,omitempty"`
	AccomTypeID       string       `json:"accom_type_id,omitempty"`
	PropertyName      string       `json:"property_name,omitempty"`
	SourceURL         string       `json:"source_url,omitempty"`
}

type Offer struct {
	ProviderCode    string     `json:"provider_code"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	PromoCode       string     `json:"promo_code,omitempty"`
	DiscountPercent float64    `json:"discount_percent,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	URL             string     `json:"url,omitempty"`
	ObservedAt      time.Time  `json:"observed_at"`
}

type Observation struct {
	ID            uuid.UUID    `json:"id"`
	FetchRunID    uuid.UUID    `json:"fetch_run_id"`
	FingerprintID uuid.UUID    `json:"fingerprint_id"`
	SeriesKey     string       `json:"series_key"`
	StayStartDate string       `json:"stay_start_date"`
	StayNights    int          `json:"stay_nights"`
	PriceTotal    float64      `json:"price_total"`
	PricePerNight float64      `json:"price_per_night"`
	Availability  Availability `json:"availability"`
	ObservedAt    time.Time    `json:"observed_at"`
	SourceURL     string       `json:"source_url,omitempty"`
}

type RunStatus string

const (
	RunStatusRunning     RunStatus = "RUNNING"
	RunStatusOK          RunStatus = "OK"
	RunStatusParseFailed RunStatus = "PARSE_FAILED"
	RunStatusError       RunStatus = "ERROR"
)

// ProviderStatus is the failure taxonomy recorded on a FetchRun.
type ProviderStatus string

const (
	ProviderStatusOK          ProviderStatus = "OK"
	ProviderStatusTimeout     ProviderStatus = "TIMEOUT"
	ProviderStatusBlocked     ProviderStatus = "BLOCKED"
	ProviderStatusParseFailed ProviderStatus = "PARSE_FAILED"
	ProviderStatusFetchFailed ProviderStatus = "FETCH_FAILED"
)

type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerPreview   RunTrigger = "preview"
)

// FetchRun is the audit row of one scrape attempt. It is created before the
// adapter call and finished exactly once.
type FetchRun struct {
	ID               uuid.UUID      `json:"id"`
	FingerprintID    *uuid.UUID     `json:"fingerprint_id,omitempty"`
	ProviderCode     string         `json:"provider_code"`
	Trigger          RunTrigger     `json:"trigger"`
	ScheduledFor     time.Time      `json:"scheduled_for"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	RunStatus        RunStatus      `json:"run_status"`
	ProviderStatus   ProviderStatus `json:"provider_status,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CandidateCount   int            `json:"candidate_count"`
	ObservationCount int            `json:"observation_count"`
}

// RunResult is the single update applied to a FetchRun when it finishes.
type RunResult struct {
	RunStatus        RunStatus
	ProviderStatus   ProviderStatus
	ErrorMessage     string
	CandidateCount   int
	ObservationCount int
	FinishedAt       time.Time
}

type InsightType string

const (
	InsightLowestInWindow    InsightType = "LOWEST_IN_X_DAYS"
	InsightPriceDropPercent  InsightType = "PRICE_DROP_PERCENT"
	InsightPriceDropAbsolute InsightType = "PRICE_DROP_ABSOLUTE"
	InsightRisingRisk        InsightType = "RISING_RISK"
)

type Insight struct {
	ID            uuid.UUID       `json:"id"`
	FingerprintID uuid.UUID       `json:"fingerprint_id"`
	SeriesKey     string          `json:"series_key"`
	Type          InsightType     `json:"type"`
	DedupeKey     string          `json:"dedupe_key"`
	Summary       string          `json:"summary"`
	Details       json.RawMessage `json:"details"`
	CreatedAt     time.Time       `json:"created_at"`
}

type AlertStatus string

const (
	AlertPending AlertStatus = "PENDING"
	AlertSent    AlertStatus = "SENT"
	AlertFailed  AlertStatus = "FAILED"
	AlertSkipped AlertStatus = "SKIPPED"
)

type Alert struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	InsightID uuid.UUID   `json:"insight_id"`
	DedupeKey string      `json:"dedupe_key"`
	Status    AlertStatus `json:"status"`
	SentAt    *time.Time  `json:"sent_at,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	// ClaimedAt is set when a stale PENDING alert is taken over for resend.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}
