package cli

import (
	"os"

	"github.com/spf13/cobra"

	"oracle-miss-alerts/internal/app"
	"oracle-miss-alerts/internal/logging"
)

var previewThreshold float64

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Fetch current chain state and print the report without delivering",
	RunE: func(cmd *cobra.Command, args []string) error {
		base := getApp()

		// the rendered report owns stdout, so logs move to stderr
		logger := logging.NewLoggerTo(base.Config.Logging, os.Stderr)
		quiet := app.NewApp(base.Config, logger)

		return quiet.Preview(cmd.Context(), app.PreviewOptions{Threshold: previewThreshold})
	},
}

func init() {
	previewCmd.Flags().Float64Var(&previewThreshold, "threshold", 0, "Override low balance threshold in MLD")
}
