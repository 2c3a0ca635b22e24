package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

func newRecordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect stored item records",
	}
	cmd.AddCommand(newRecordShowCmd(a))
	cmd.AddCommand(newRecordListCmd(a))
	return cmd
}

func newRecordShowCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <identifier>",
		Short: "Print one stored record",
		Args:  cobra.ExactArgs(1),
		Example: `  shelfscan record show H10011
  shelfscan record show H10011 --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(a.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no record for %s", args[0])
			}
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return printJSON(r)
			case "yaml":
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(r)
			default:
				return fmt.Errorf("unsupported format: %s", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format (json or yaml)")
	return cmd
}

func newRecordListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored records",
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

			if len(records) == 0 {
				fmt.Println("No records stored")
				return nil
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Identifier", "Name", "Brand", "Media", "Updated"})
			for _, r := range records {
				tw.AppendRow(table.Row{r.Identifier, r.Item.Name, r.Brand.Name, strconv.Itoa(len(r.Media)), r.Meta.UpdatedAt})
			}
			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
			})
			fmt.Println(tw.Render())
			return nil
		},
	}
}
