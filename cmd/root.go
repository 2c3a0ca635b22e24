package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/logging"
)

// app carries state shared by every subcommand once the root has run.
type app struct {
	configPath string
	cfg        *config.Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "shelfscan",
		Short: "Inventory item image ingestion with vision-model analysis",
		Long: `Shelfscan turns photos of packaged inventory items into canonical item records.

Clients upload captures to blob storage, then ask the server over a WebSocket
session to analyze them. Each capture is sent to a vision model, its text and
observations are merged into the item's record, and every stage is streamed
back to the client as it happens.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "shelfscan.yaml", "Path to YAML configuration file (optional)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newPresignCmd(a))
	cmd.AddCommand(newAnalyzeCmd(a))
	cmd.AddCommand(newRecordCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newOperationsCmd(a))

	return cmd
}
