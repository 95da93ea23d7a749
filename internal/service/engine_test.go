package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/market"
	"caucion-rate-alerts/internal/rates"
	"caucion-rate-alerts/internal/storage"
)

type fakeSource struct {
	snap  rates.Snapshot
	err   error
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context) (rates.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return rates.Snapshot{}, f.err
	}
	return f.snap, nil
}

type fakeSnapshots struct {
	previous  *rates.Snapshot
	committed []rates.Snapshot
	err       error
}

func (f *fakeSnapshots) Latest(ctx context.Context) (*rates.Snapshot, error) {
	return f.previous, nil
}

func (f *fakeSnapshots) Commit(ctx context.Context, snap rates.Snapshot) (*rates.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	prev := f.previous
	f.committed = append(f.committed, snap)
	f.previous = &snap
	return prev, nil
}

type fakeRegistry struct {
	mu     sync.Mutex
	subs   []storage.Subscription
	marked map[int64]time.Time
}

func (f *fakeRegistry) Get(ctx context.Context, chatID int64) (storage.Subscription, error) {
	return storage.Subscription{ChatID: chatID, Preference: alerting.Paused()}, nil
}

func (f *fakeRegistry) SetPreference(ctx context.Context, chatID int64, pref alerting.Preference) error {
	return nil
}

func (f *fakeRegistry) ListActive(ctx context.Context) ([]storage.Subscription, error) {
	return f.subs, nil
}

func (f *fakeRegistry) MarkNotified(ctx context.Context, chatID int64, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marked == nil {
		f.marked = make(map[int64]time.Time)
	}
	f.marked[chatID] = ts
	return nil
}

type fakeSink struct {
	mu        sync.Mutex
	delivered map[int64]string
	failFor   map[int64]bool
}

func (f *fakeSink) Deliver(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("chat unreachable")
	}
	if f.delivered == nil {
		f.delivered = make(map[int64]string)
	}
	f.delivered[chatID] = text
	return nil
}

func testCalendar() *market.Calendar {
	return market.NewCalendar(market.Window{
		OpenHour: 10, OpenMinute: 30,
		CloseHour: 16, CloseMinute: 30,
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	})
}

func openTick() time.Time {
	return time.Date(2026, 3, 2, 14, 0, 0, 0, market.Location())
}

func snapshotOf(capturedAt time.Time, quotes map[rates.Tenor]string) rates.Snapshot {
	quoted := make(map[rates.Tenor]decimal.Decimal, len(quotes))
	for tenor, raw := range quotes {
		quoted[tenor] = decimal.RequireFromString(raw)
	}
	return rates.NewSnapshot(capturedAt, quoted)
}

func anyChangeSub(chatID int64) storage.Subscription {
	return storage.Subscription{ChatID: chatID, Preference: alerting.AnyChange()}
}

func thresholdSub(t *testing.T, chatID int64, minPercent string) storage.Subscription {
	pref, err := alerting.Threshold(decimal.RequireFromString(minPercent))
	require.NoError(t, err)
	return storage.Subscription{ChatID: chatID, Preference: pref}
}

func newTestEngine(source *fakeSource, snaps *fakeSnapshots, registry *fakeRegistry, sink *fakeSink) *Engine {
	return NewEngine(Options{
		Calendar:        testCalendar(),
		Source:          source,
		Snapshots:       snaps,
		Subscriptions:   registry,
		Sink:            sink,
		DeliveryTimeout: time.Second,
	}, zerolog.Nop())
}

func TestTickMarketClosedSkipsFetch(t *testing.T) {
	source := &fakeSource{}
	snaps := &fakeSnapshots{}
	engine := newTestEngine(source, snaps, &fakeRegistry{}, &fakeSink{})

	saturday := time.Date(2026, 3, 7, 14, 0, 0, 0, market.Location())
	err := engine.ProcessTick(context.Background(), saturday)

	require.NoError(t, err)
	assert.Zero(t, source.calls)
	assert.Empty(t, snaps.committed)
}

func TestTickFetchFailureCommitsNothing(t *testing.T) {
	source := &fakeSource{err: errors.New("broker down")}
	snaps := &fakeSnapshots{}
	sink := &fakeSink{}
	engine := newTestEngine(source, snaps, &fakeRegistry{subs: []storage.Subscription{anyChangeSub(1)}}, sink)

	err := engine.ProcessTick(context.Background(), openTick())

	require.Error(t, err)
	assert.Empty(t, snaps.committed)
	assert.Empty(t, sink.delivered)
}

func TestTickBaselineSnapshotNotifiesNobody(t *testing.T) {
	tick := openTick()
	source := &fakeSource{snap: snapshotOf(tick, map[rates.Tenor]string{rates.TenorD1: "35.50"})}
	snaps := &fakeSnapshots{}
	sink := &fakeSink{}
	engine := newTestEngine(source, snaps, &fakeRegistry{subs: []storage.Subscription{anyChangeSub(1)}}, sink)

	err := engine.ProcessTick(context.Background(), tick)

	require.NoError(t, err)
	require.Len(t, snaps.committed, 1)
	assert.Empty(t, sink.delivered)
}

func TestTickNoChangeNotifiesNobody(t *testing.T) {
	tick := openTick()
	quotes := map[rates.Tenor]string{rates.TenorD1: "35.50", rates.TenorD2: "36.10"}
	prev := snapshotOf(tick.Add(-time.Minute), quotes)
	source := &fakeSource{snap: snapshotOf(tick, quotes)}
	snaps := &fakeSnapshots{previous: &prev}
	sink := &fakeSink{}
	engine := newTestEngine(source, snaps, &fakeRegistry{subs: []storage.Subscription{anyChangeSub(1)}}, sink)

	err := engine.ProcessTick(context.Background(), tick)

	require.NoError(t, err)
	require.Len(t, snaps.committed, 1)
	assert.Empty(t, sink.delivered)
}

func TestTickDispatchesByPreference(t *testing.T) {
	tick := openTick()
	prev := snapshotOf(tick.Add(-time.Minute), map[rates.Tenor]string{rates.TenorD1: "35.50"})
	source := &fakeSource{snap: snapshotOf(tick, map[rates.Tenor]string{rates.TenorD1: "35.55"})}
	snaps := &fakeSnapshots{previous: &prev}
	sink := &fakeSink{}
	registry := &fakeRegistry{subs: []storage.Subscription{
		anyChangeSub(1),
		thresholdSub(t, 2, "1.0"),
	}}
	engine := newTestEngine(source, snaps, registry, sink)

	err := engine.ProcessTick(context.Background(), tick)

	require.NoError(t, err)
	// +0.05pp is roughly 0.14%: enough for any-change, below a 1% threshold.
	assert.Contains(t, sink.delivered, int64(1))
	assert.NotContains(t, sink.delivered, int64(2))
	assert.Equal(t, tick, registry.marked[1])
	assert.NotContains(t, registry.marked, int64(2))
}

func TestTickThresholdBoundaryInclusive(t *testing.T) {
	tick := openTick()
	prev := snapshotOf(tick.Add(-time.Minute), map[rates.Tenor]string{rates.TenorD1: "100"})
	source := &fakeSource{snap: snapshotOf(tick, map[rates.Tenor]string{rates.TenorD1: "101"})}
	snaps := &fakeSnapshots{previous: &prev}
	sink := &fakeSink{}
	registry := &fakeRegistry{subs: []storage.Subscription{thresholdSub(t, 7, "1.0")}}
	engine := newTestEngine(source, snaps, registry, sink)

	err := engine.ProcessTick(context.Background(), tick)

	require.NoError(t, err)
	assert.Contains(t, sink.delivered, int64(7))
}

func TestTickDeliveryFailureIsolated(t *testing.T) {
	tick := openTick()
	prev := snapshotOf(tick.Add(-time.Minute), map[rates.Tenor]string{rates.TenorD1: "35.50"})
	source := &fakeSource{snap: snapshotOf(tick, map[rates.Tenor]string{rates.TenorD1: "36.00"})}
	snaps := &fakeSnapshots{previous: &prev}
	sink := &fakeSink{failFor: map[int64]bool{1: true}}
	registry := &fakeRegistry{subs: []storage.Subscription{anyChangeSub(1), anyChangeSub(2)}}
	engine := newTestEngine(source, snaps, registry, sink)

	err := engine.ProcessTick(context.Background(), tick)

	require.NoError(t, err)
	assert.NotContains(t, sink.delivered, int64(1))
	assert.Contains(t, sink.delivered, int64(2))
	assert.NotContains(t, registry.marked, int64(1))
	assert.Equal(t, tick, registry.marked[2])
}

func TestTickBroadcastOnSharpRise(t *testing.T) {
	tick := openTick()
	prev := snapshotOf(tick.Add(-time.Minute), map[rates.Tenor]string{rates.TenorD1: "18.00"})
	source := &fakeSource{snap: snapshotOf(tick, map[rates.Tenor]string{rates.TenorD1: "25.00"})}
	snaps := &fakeSnapshots{previous: &prev}
	channelSink := &fakeSink{}
	publisher := alerting.NewPublisher(channelSink, 999, decimal.RequireFromString("5.0"), zerolog.Nop())

	engine := NewEngine(Options{
		Calendar:        testCalendar(),
		Source:          source,
		Snapshots:       snaps,
		Subscriptions:   &fakeRegistry{},
		Sink:            &fakeSink{},
		Publisher:       publisher,
		DeliveryTimeout: time.Second,
	}, zerolog.Nop())

	err := engine.ProcessTick(context.Background(), tick)

	require.NoError(t, err)
	assert.Contains(t, channelSink.delivered, int64(999))
}
