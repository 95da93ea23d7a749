package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSlotAlignsToInterval(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())

	now := time.Date(2026, 3, 2, 11, 30, 17, 0, time.UTC)
	next := s.nextSlot(now)

	assert.Equal(t, time.Date(2026, 3, 2, 11, 31, 0, 0, time.UTC), next)
}

func TestNextSlotOnExactBoundaryMovesForward(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())

	now := time.Date(2026, 3, 2, 11, 31, 0, 0, time.UTC)
	next := s.nextSlot(now)

	assert.Equal(t, time.Date(2026, 3, 2, 11, 32, 0, 0, time.UTC), next)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(Options{Interval: 50 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Millisecond)
	defer cancel()

	var ticks atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		ticks.Add(1)
		return nil
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, ticks.Load(), int32(1))
}

func TestRunInvalidIntervalPanics(t *testing.T) {
	assert.Panics(t, func() {
		New(Options{Interval: 0}, zerolog.Nop())
	})
}
