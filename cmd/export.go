package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

func newExportCmd(a *app) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all stored records",
		Long: `Writes every stored record to a Parquet file or JSON lines.

Parquet rows carry the flattened identity, code and brand fields plus the full
record as JSON, which makes them convenient for training and diagnostic
analysis.`,
		Example: `  shelfscan export --format parquet --output records.parquet
  shelfscan export --format jsonl > records.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(a.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "parquet":
				err = storage.ExportParquet(w, records)
			case "jsonl":
				err = storage.ExportJSONL(w, records)
			default:
				return fmt.Errorf("unsupported format: %s", format)
			}
			if err != nil {
				return err
			}
			slog.Info("Export complete", "format", format, "records", len(records), "output", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "parquet", "Export format (parquet or jsonl)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}
