package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/pipeline"
	"github.com/lehigh-university-libraries/shelfscan/internal/status"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var req pipeline.Request
	var capturedAt int64

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the analysis pipeline in-process for one blob",
		Long: `Runs fetch, inference, merge and persist for one capture without a server.

The blob store, inference provider and record store come from the configuration,
exactly as the server would use them. Stage events are printed to stderr and the
result is written to stdout as JSON.`,
		Example: `  shelfscan analyze --identifier H10011 --key items/H10011/camera-1/abc.jpg --camera 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.store.Close()

			if capturedAt > 0 {
				req.CapturedAt = time.UnixMilli(capturedAt).UTC()
			}
			if req.Camera < 1 {
				return fmt.Errorf("--camera must be 1 or greater")
			}

			sink := status.SinkFunc(func(e status.Event) {
				fmt.Fprintf(os.Stderr, "%s  %-12s %s\n", e.Timestamp.Format(time.TimeOnly), e.Stage, e.Message)
			})
			result, err := c.pipeline.Run(cmd.Context(), req, sink)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&req.Identifier, "identifier", "", "Item identifier")
	cmd.Flags().StringVar(&req.BlobKey, "key", "", "Blob key of the capture")
	cmd.Flags().StringVar(&req.ContentType, "content-type", "", "Image content type (sniffed when omitted)")
	cmd.Flags().IntVar(&req.Camera, "camera", 1, "Camera index that took the capture")
	cmd.Flags().StringVar(&req.Filename, "filename", "", "Original capture filename")
	cmd.Flags().Int64Var(&capturedAt, "captured-at", 0, "Capture time in Unix milliseconds (defaults to now)")
	_ = cmd.MarkFlagRequired("identifier")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
