package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/storage"
)

// ExportOptions parameterise the export command.
type ExportOptions struct {
	From            *time.Time
	To              *time.Time
	HistoryPath     string
	SubscribersPath string
	MaxPoints       int
}

// Export dumps rate history and, optionally, the subscription table as CSV.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.HistoryPath == "" && opts.SubscribersPath == "" {
		return errors.New("at least one of --history or --subscribers must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.HistoryPath != "" {
		if err := a.exportHistory(ctx, store, opts); err != nil {
			return err
		}
	}

	if opts.SubscribersPath != "" {
		if err := a.exportSubscribers(ctx, store, opts.SubscribersPath); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) exportHistory(ctx context.Context, store *storage.Store, opts ExportOptions) error {
	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	observations, err := store.ListObservationsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Msg("no observations found for export window")
		return nil
	}

	downsampled := downsampleObservations(observations, opts.MaxPoints)
	a.Logger.Info().Int("total", len(observations)).Int("exported", len(downsampled)).Msg("exporting rate history")

	return writeHistoryCSV(opts.HistoryPath, downsampled)
}

func (a *App) exportSubscribers(ctx context.Context, store *storage.Store, path string) error {
	subscriptions, err := store.ListAll(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("count", len(subscriptions)).Msg("exporting subscriptions")
	return writeSubscribersCSV(path, subscriptions)
}

func downsampleObservations(observations []storage.Observation, max int) []storage.Observation {
	if max <= 0 || len(observations) <= max {
		return observations
	}

	result := make([]storage.Observation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

func writeHistoryCSV(path string, observations []storage.Observation) error {
	writer, file, err := openCSV(path)
	if err != nil {
		return err
	}
	defer file.Close()
	defer writer.Flush()

	if err := writer.Write([]string{"captured_at", "tenor", "tna_pct"}); err != nil {
		return err
	}

	for _, obs := range observations {
		record := []string{
			obs.CapturedAt.UTC().Format(time.RFC3339),
			string(obs.Tenor),
			obs.Rate.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSubscribersCSV(path string, subscriptions []storage.Subscription) error {
	writer, file, err := openCSV(path)
	if err != nil {
		return err
	}
	defer file.Close()
	defer writer.Flush()

	if err := writer.Write([]string{"chat_id", "preference", "threshold", "last_notified_at", "created_at"}); err != nil {
		return err
	}

	for _, sub := range subscriptions {
		threshold := ""
		if sub.Preference.Kind == alerting.PrefThreshold {
			threshold = sub.Preference.Threshold.String()
		}
		lastNotified := ""
		if sub.LastNotifiedAt != nil {
			lastNotified = sub.LastNotifiedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			strconv.FormatInt(sub.ChatID, 10),
			string(sub.Preference.Kind),
			threshold,
			lastNotified,
			sub.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func openCSV(path string) (*csv.Writer, *os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return csv.NewWriter(file), file, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
