package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/ledger"
	"github.com/lehigh-university-libraries/shelfscan/internal/session"
)

func newOperationsCmd(a *app) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "Show recent ingest operations on a running server",
		Long: `Connects to a running server and prints the operation snapshot it replays to
every new session, most recently updated first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = a.cfg.Client.URL
			}

			var entries []ledger.Entry
			client, err := session.Dial(cmd.Context(), url, session.ClientOptions{
				Timeout:    a.cfg.Client.RequestTimeout,
				OnSnapshot: func(e []ledger.Entry) { entries = e },
			})
			if err != nil {
				return err
			}
			defer client.Close()

			// the server writes the snapshot before it reads any request, so
			// a pong means the snapshot, if any, has been delivered
			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("No recent operations")
				return nil
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Identifier", "Status", "Last stage", "Events", "Updated"})
			for _, e := range entries {
				last := ""
				if n := len(e.Events); n > 0 {
					last = string(e.Events[n-1].Stage)
				}
				tw.AppendRow(table.Row{e.Identifier, string(e.Status), last, strconv.Itoa(len(e.Events)), e.UpdatedAt.Local().Format(time.DateTime)})
			}
			fmt.Println(tw.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server WebSocket URL (defaults to client.url)")
	return cmd
}
