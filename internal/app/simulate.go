package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/fetcher"
	"caucion-rate-alerts/internal/market"
	"caucion-rate-alerts/internal/rates"
	"caucion-rate-alerts/internal/service"
)

// SimulateChange runs one engine tick against a fixed pair of snapshots to
// exercise the full change-detection and delivery path without touching the
// broker. The synthetic observations are committed like real ones.
func (a *App) SimulateChange(ctx context.Context, previous, current decimal.Decimal) error {
	if !previous.IsPositive() || !current.IsPositive() {
		return errors.New("previous and current rates must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	botAPI, err := a.newBot()
	if err != nil {
		return err
	}
	sink := alerting.NewTelegramSink(botAPI, a.Logger)

	now := time.Now().In(market.Location())
	first := rates.NewSnapshot(now.Add(-time.Minute), map[rates.Tenor]decimal.Decimal{rates.TenorD1: previous})
	second := rates.NewSnapshot(now, map[rates.Tenor]decimal.Decimal{rates.TenorD1: current})

	// An always-open calendar so the simulation works outside trading hours.
	openAlways := market.NewCalendar(market.Window{
		OpenHour: 0, OpenMinute: 0, CloseHour: 23, CloseMinute: 59,
		Weekdays: []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		},
	})

	engine := service.NewEngine(service.Options{
		Calendar:        openAlways,
		Source:          &staticSource{snap: second},
		Snapshots:       store,
		Subscriptions:   store,
		Sink:            sink,
		DeliveryTimeout: a.Config.Alerting.DeliveryTimeout,
	}, a.Logger)

	if _, err := store.Commit(ctx, first); err != nil {
		return err
	}
	return engine.ProcessTick(ctx, now)
}

type staticSource struct {
	snap rates.Snapshot
}

func (s *staticSource) Fetch(ctx context.Context) (rates.Snapshot, error) {
	return s.snap, nil
}

var _ fetcher.Source = (*staticSource)(nil)
