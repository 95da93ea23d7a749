package cli

import (
	"github.com/spf13/cobra"
)

var dbcheckCmd = &cobra.Command{
	Use:   "dbcheck",
	Short: "Verify database connectivity and schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DBCheck(cmd.Context())
	},
}
