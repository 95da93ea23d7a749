package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// ShowOptions parameterise the show command.
type ShowOptions struct {
	Limit int
}

// Show prints the most recent persisted rate observations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	observations, err := store.ListRecentObservations(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Captured (UTC)\tTenor\tTNA%")

	for _, obs := range observations {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			obs.CapturedAt.UTC().Format(time.RFC3339),
			obs.Tenor,
			obs.Rate.StringFixed(2),
		)
	}

	return writer.Flush()
}
