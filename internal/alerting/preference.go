package alerting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"caucion-rate-alerts/internal/rates"
)

// ErrInvalidThreshold rejects non-positive threshold preferences at
// configuration time. A zero threshold is not "any change".
var ErrInvalidThreshold = errors.New("alerting: threshold must be strictly positive")

// PreferenceKind discriminates the notification preference variants.
type PreferenceKind string

const (
	PrefPaused    PreferenceKind = "paused"
	PrefAnyChange PreferenceKind = "any_change"
	PrefThreshold PreferenceKind = "threshold"
)

// Preference is a subscriber's notification rule. Threshold carries the
// minimum absolute percent delta; it is meaningful only for PrefThreshold.
type Preference struct {
	Kind      PreferenceKind
	Threshold decimal.Decimal
}

// Paused returns the preference that suppresses all notifications.
func Paused() Preference {
	return Preference{Kind: PrefPaused}
}

// AnyChange returns the preference that fires on every detected change.
func AnyChange() Preference {
	return Preference{Kind: PrefAnyChange}
}

// Threshold builds a threshold preference, validating the value.
func Threshold(minPercent decimal.Decimal) (Preference, error) {
	pref := Preference{Kind: PrefThreshold, Threshold: minPercent}
	if err := pref.Validate(); err != nil {
		return Preference{}, err
	}
	return pref, nil
}

// Validate checks the preference invariants.
func (p Preference) Validate() error {
	switch p.Kind {
	case PrefPaused, PrefAnyChange:
		return nil
	case PrefThreshold:
		if !p.Threshold.IsPositive() {
			return ErrInvalidThreshold
		}
		return nil
	}
	return fmt.Errorf("alerting: unknown preference kind %q", p.Kind)
}

// Active reports whether the subscriber receives notifications at all.
func (p Preference) Active() bool {
	return p.Kind != PrefPaused
}

// Eligible decides whether a change set satisfies this preference.
// Threshold matching is boundary-inclusive: a delta of exactly the
// configured percentage qualifies.
func (p Preference) Eligible(changes rates.ChangeSet) bool {
	switch p.Kind {
	case PrefPaused:
		return false
	case PrefAnyChange:
		return changes.Any()
	case PrefThreshold:
		return changes.AnyPercentAtLeast(p.Threshold)
	}
	return false
}

// Describe renders the preference for the /estado reply.
func (p Preference) Describe() string {
	switch p.Kind {
	case PrefPaused:
		return "pausadas"
	case PrefAnyChange:
		return "cualquier cambio"
	case PrefThreshold:
		return fmt.Sprintf("cambios de al menos %s%%", p.Threshold.String())
	}
	return string(p.Kind)
}
