package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/fetcher"
	"caucion-rate-alerts/internal/market"
	"caucion-rate-alerts/internal/metrics"
	"caucion-rate-alerts/internal/rates"
	"caucion-rate-alerts/internal/storage"
)

// Engine runs the poll, change detection, and notification pipeline.
// One tick is in flight at a time; a tick arriving while another runs is
// skipped, not queued.
type Engine struct {
	calendar  *market.Calendar
	source    fetcher.Source
	snapshots storage.SnapshotStore
	subs      storage.SubscriptionRegistry
	sink      alerting.Sink
	publisher *alerting.Publisher

	deliveryTimeout time.Duration
	metrics         *metrics.Set
	logger          zerolog.Logger

	mu sync.Mutex
}

// Options collect the engine's collaborators.
type Options struct {
	Calendar        *market.Calendar
	Source          fetcher.Source
	Snapshots       storage.SnapshotStore
	Subscriptions   storage.SubscriptionRegistry
	Sink            alerting.Sink
	Publisher       *alerting.Publisher
	DeliveryTimeout time.Duration
	Metrics         *metrics.Set
}

// NewEngine wires the notification engine.
func NewEngine(opts Options, logger zerolog.Logger) *Engine {
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		calendar:        opts.Calendar,
		source:          opts.Source,
		snapshots:       opts.Snapshots,
		subs:            opts.Subscriptions,
		sink:            opts.Sink,
		publisher:       opts.Publisher,
		deliveryTimeout: timeout,
		metrics:         opts.Metrics,
		logger:          logger.With().Str("component", "engine").Logger(),
	}
}

// ProcessTick executes one polling cycle. Stages run in order and each can
// end the tick early: market gate, fetch, commit, diff, dispatch. A tick
// that ends early leaves no partial state behind.
func (e *Engine) ProcessTick(ctx context.Context, tick time.Time) error {
	if !e.mu.TryLock() {
		e.logger.Warn().Time("tick", tick).Msg("previous tick still running, skipping")
		e.metrics.ObserveTick(metrics.TickSkipped)
		return nil
	}
	defer e.mu.Unlock()

	if !e.calendar.IsOpen(tick) {
		e.logger.Debug().Time("tick", tick).Msg("market closed, tick ends")
		e.metrics.ObserveTick(metrics.TickMarketClosed)
		return nil
	}

	snap, err := e.source.Fetch(ctx)
	if err != nil {
		e.metrics.ObserveFetchError()
		e.metrics.ObserveTick(metrics.TickFetchFailed)
		return fmt.Errorf("fetch rates: %w", err)
	}

	previous, err := e.snapshots.Commit(ctx, snap)
	if err != nil {
		e.metrics.ObserveTick(metrics.TickCommitFailed)
		return fmt.Errorf("commit snapshot: %w", err)
	}

	if previous == nil {
		e.logger.Info().Int("tenors", snap.Len()).Msg("baseline snapshot committed")
		e.metrics.ObserveTick(metrics.TickBaseline)
		return nil
	}

	changes := rates.ComputeChanges(*previous, snap)
	if !changes.Any() {
		e.metrics.ObserveTick(metrics.TickNoChange)
		return nil
	}

	e.logger.Info().Int("changed_tenors", countChanged(changes)).Msg("rate change detected")
	e.dispatch(ctx, snap, changes)
	e.broadcast(ctx, snap, changes)
	e.metrics.ObserveTick(metrics.TickNotified)
	return nil
}

// dispatch fans the change alert out to every eligible subscriber. Each
// delivery runs under its own timeout; one subscriber's failure never
// blocks or cancels the rest.
func (e *Engine) dispatch(ctx context.Context, snap rates.Snapshot, changes rates.ChangeSet) {
	subscribers, err := e.subs.ListActive(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("list active subscribers failed, no notifications sent")
		return
	}
	if len(subscribers) == 0 {
		return
	}

	text := alerting.RenderChangeAlert(snap, changes)

	var wg sync.WaitGroup
	for _, sub := range subscribers {
		if !sub.Preference.Eligible(changes) {
			continue
		}

		wg.Add(1)
		go func(sub storage.Subscription) {
			defer wg.Done()
			e.deliverOne(ctx, sub, text, snap.CapturedAt())
		}(sub)
	}
	wg.Wait()
}

func (e *Engine) deliverOne(ctx context.Context, sub storage.Subscription, text string, capturedAt time.Time) {
	deliverCtx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
	defer cancel()

	if err := e.sink.Deliver(deliverCtx, sub.ChatID, text); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", sub.ChatID).Msg("notification delivery failed")
		e.metrics.ObserveDelivery(false)
		return
	}

	e.metrics.ObserveDelivery(true)
	if err := e.subs.MarkNotified(ctx, sub.ChatID, capturedAt); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", sub.ChatID).Msg("mark notified failed")
	}
}

func (e *Engine) broadcast(ctx context.Context, snap rates.Snapshot, changes rates.ChangeSet) {
	if e.publisher == nil || !e.publisher.ShouldPublish(changes) {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
	defer cancel()

	if err := e.publisher.Publish(pubCtx, snap, changes); err != nil {
		e.logger.Error().Err(err).Msg("channel broadcast failed")
	}
}

func countChanged(changes rates.ChangeSet) int {
	n := 0
	for _, change := range changes {
		if change.Changed {
			n++
		}
	}
	return n
}
