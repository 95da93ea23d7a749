package rates

import (
	"github.com/shopspring/decimal"
)

// Epsilon is the change floor in percentage points. Upstream data carries
// float noise well below this; anything at or under it is "unchanged".
var Epsilon = decimal.RequireFromString("0.001")

var hundred = decimal.NewFromInt(100)

// Change describes how one tenor moved between two consecutive snapshots.
type Change struct {
	Previous      decimal.Decimal
	Current       decimal.Decimal
	AbsoluteDelta decimal.Decimal
	PercentDelta  decimal.Decimal
	Changed       bool
}

// ChangeSet maps tenors to their computed change records.
type ChangeSet map[Tenor]Change

// Any reports whether at least one tenor actually changed.
func (cs ChangeSet) Any() bool {
	for _, change := range cs {
		if change.Changed {
			return true
		}
	}
	return false
}

// AnyPercentAtLeast reports whether any tenor moved by at least min
// percent, in either direction. The comparison is boundary-inclusive.
func (cs ChangeSet) AnyPercentAtLeast(min decimal.Decimal) bool {
	for _, change := range cs {
		if change.Changed && change.PercentDelta.Abs().GreaterThanOrEqual(min) {
			return true
		}
	}
	return false
}

// AnyRiseAtLeast reports whether any tenor rose by at least min percentage
// points. Drops never qualify.
func (cs ChangeSet) AnyRiseAtLeast(min decimal.Decimal) bool {
	for _, change := range cs {
		if change.Changed && change.AbsoluteDelta.GreaterThanOrEqual(min) {
			return true
		}
	}
	return false
}

// ComputeChanges diffs two consecutive snapshots tenor by tenor.
//
// Only tenors quoted in current are considered. A tenor with no prior value
// (first observation) emits no entry at all: there is nothing to diff
// against. A tenor that vanished from current is likewise not emitted; it
// re-enters the diff once quoted in two consecutive snapshots again.
// PercentDelta is left at zero when the previous rate was zero.
func ComputeChanges(previous, current Snapshot) ChangeSet {
	changes := make(ChangeSet, current.Len())

	for _, tenor := range current.Tenors() {
		currRate, _ := current.Rate(tenor)
		prevRate, ok := previous.Rate(tenor)
		if !ok {
			continue
		}

		delta := currRate.Sub(prevRate)
		change := Change{
			Previous:      prevRate,
			Current:       currRate,
			AbsoluteDelta: delta,
			Changed:       delta.Abs().GreaterThan(Epsilon),
		}
		if !prevRate.IsZero() {
			change.PercentDelta = delta.Div(prevRate).Mul(hundred)
		}
		changes[tenor] = change
	}

	return changes
}
