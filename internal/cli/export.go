package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"caucion-rate-alerts/internal/app"
)

var (
	exportFrom        string
	exportTo          string
	exportHistory     string
	exportSubscribers string
	exportMaxPoints   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rate history and subscriptions as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			HistoryPath:     exportHistory,
			SubscribersPath: exportSubscribers,
			MaxPoints:       exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportCmd.Flags().StringVar(&exportHistory, "history", "", "Path to write the rate history CSV")
	exportCmd.Flags().StringVar(&exportSubscribers, "subscribers", "", "Path to write the subscriptions CSV")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum history rows to export (defaults to config)")
}
