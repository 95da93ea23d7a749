package app

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DBCheck verifies database connectivity and schema, then prints the
// persisted counters. Exit status is the only contract: non-nil error means
// the deployment is not ready.
func (a *App) DBCheck(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	fmt.Fprintln(os.Stdout, "connection: ok")

	missing, err := store.MissingTables(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables: %s (run the migrations in migrations/)", strings.Join(missing, ", "))
	}
	fmt.Fprintln(os.Stdout, "schema: ok")

	stats, err := store.CollectStats(ctx)
	if err != nil {
		return err
	}

	total := int64(0)
	for _, count := range stats.SubscribersByKind {
		total += count
	}
	fmt.Fprintf(os.Stdout, "subscriptions: %d\n", total)
	fmt.Fprintf(os.Stdout, "observations: %d\n", stats.ObservationCount)
	fmt.Fprintf(os.Stdout, "suggestions: %d\n", stats.SuggestionCount)
	return nil
}
