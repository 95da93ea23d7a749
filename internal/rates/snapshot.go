package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one immutable observation of quoted caución rates (TNA
// percentages) keyed by tenor. Tenors the source did not quote are absent
// from the map, never zero.
type Snapshot struct {
	rates      map[Tenor]decimal.Decimal
	capturedAt time.Time
}

// NewSnapshot builds a snapshot, copying the supplied rate map.
func NewSnapshot(capturedAt time.Time, quoted map[Tenor]decimal.Decimal) Snapshot {
	copied := make(map[Tenor]decimal.Decimal, len(quoted))
	for tenor, rate := range quoted {
		copied[tenor] = rate
	}
	return Snapshot{rates: copied, capturedAt: capturedAt}
}

// CapturedAt returns the market-local capture timestamp.
func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Rate returns the quoted rate for a tenor, if present.
func (s Snapshot) Rate(tenor Tenor) (decimal.Decimal, bool) {
	rate, ok := s.rates[tenor]
	return rate, ok
}

// Tenors lists the quoted tenors in display order.
func (s Snapshot) Tenors() []Tenor {
	present := make([]Tenor, 0, len(s.rates))
	for _, tenor := range AllTenors {
		if _, ok := s.rates[tenor]; ok {
			present = append(present, tenor)
		}
	}
	return present
}

// Len reports how many tenors were quoted.
func (s Snapshot) Len() int {
	return len(s.rates)
}

// Export returns a copy of the underlying rate map for persistence.
func (s Snapshot) Export() map[Tenor]decimal.Decimal {
	copied := make(map[Tenor]decimal.Decimal, len(s.rates))
	for tenor, rate := range s.rates {
		copied[tenor] = rate
	}
	return copied
}
