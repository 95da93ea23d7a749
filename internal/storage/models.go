package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/rates"
)

// Subscription is one durable subscriber record. Rows are never hard
// deleted: pausing flips the preference and keeps the history.
type Subscription struct {
	ChatID         int64
	Preference     alerting.Preference
	LastNotifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Observation is one persisted per-tenor rate reading.
type Observation struct {
	CapturedAt time.Time
	Tenor      rates.Tenor
	Rate       decimal.Decimal
}

// Suggestion captures free-text feedback left by a subscriber.
type Suggestion struct {
	ID        int64
	ChatID    int64
	Text      string
	CreatedAt time.Time
}

// Stats summarises the persisted state for the admin surface.
type Stats struct {
	SubscribersByKind map[alerting.PreferenceKind]int64
	ObservationCount  int64
	SuggestionCount   int64
}
