package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/blobstore"
	"github.com/lehigh-university-libraries/shelfscan/internal/images"
	"github.com/lehigh-university-libraries/shelfscan/internal/session"
	"github.com/lehigh-university-libraries/shelfscan/internal/status"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		url         string
		timeout     time.Duration
		identifier  string
		key         string
		file        string
		contentType string
		camera      int
		filename    string
		capturedAt  int64
		ocrLines    []string
		reanalyze   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submit a capture to a running server and stream its progress",
		Long: `Connects to a shelfscan server as a session client and asks it to analyze a capture.

With --file the image is first uploaded through a presigned authorization; with
--key an already uploaded blob is analyzed. Status events are printed as they
arrive and the final result is written to stdout as JSON.`,
		Example: `  # Upload and analyze the front of an item
  shelfscan ingest --identifier H10011 --camera 1 --file front.jpg

  # Re-run analysis for a blob that was already ingested
  shelfscan ingest --identifier H10011 --key items/H10011/camera-1/abc.jpg --reanalyze`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = a.cfg.Client.URL
			}
			if timeout == 0 {
				timeout = a.cfg.Client.RequestTimeout
			}
			if key == "" && file == "" {
				return fmt.Errorf("one of --key or --file is required")
			}

			ctx := cmd.Context()
			client, err := session.Dial(ctx, url, session.ClientOptions{
				Timeout: timeout,
				OnStatus: func(id string, e status.Event) {
					fmt.Fprintf(os.Stderr, "%s  %-12s %s\n", e.Timestamp.Format(time.TimeOnly), e.Stage, e.Message)
				},
			})
			if err != nil {
				return err
			}
			defer client.Close()

			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				if filename == "" {
					filename = filepath.Base(file)
				}
				if contentType == "" {
					contentType = images.ContentType(data, a.cfg.Pipeline.DefaultContentType)
				}
				key, err = presignAndUpload(ctx, client, blobstore.PresignRequest{
					Identifier:  identifier,
					Filename:    filename,
					ContentType: contentType,
					Camera:      camera,
				}, data)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "uploaded %s as %s\n", file, key)
			}

			payload := session.IngestPayload{
				Identifier:       identifier,
				BlobKey:          key,
				ContentType:      contentType,
				CameraIndex:      camera,
				CapturedAtMillis: capturedAt,
				Filename:         filename,
			}
			if len(ocrLines) > 0 {
				payload.Extra = map[string]any{"ocr_lines": ocrLines}
			}

			send := client.Ingest
			if reanalyze {
				send = client.Reanalyze
			}
			result, err := send(ctx, payload)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server WebSocket URL (defaults to client.url)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Time to wait for the result (defaults to client.request_timeout)")
	cmd.Flags().StringVar(&identifier, "identifier", "", "Item identifier")
	cmd.Flags().StringVar(&key, "key", "", "Blob key of an uploaded capture")
	cmd.Flags().StringVar(&file, "file", "", "Local image to upload before analysis")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Image content type (sniffed from --file when omitted)")
	cmd.Flags().IntVar(&camera, "camera", 1, "Camera index that took the capture")
	cmd.Flags().StringVar(&filename, "filename", "", "Original capture filename")
	cmd.Flags().Int64Var(&capturedAt, "captured-at", 0, "Capture time in Unix milliseconds (defaults to now)")
	cmd.Flags().StringSliceVar(&ocrLines, "ocr-line", nil, "Text recognised on the device, repeatable")
	cmd.Flags().BoolVar(&reanalyze, "reanalyze", false, "Send a reanalyze_request instead of ingest_complete")
	_ = cmd.MarkFlagRequired("identifier")

	return cmd
}

func newPresignCmd(a *app) *cobra.Command {
	var (
		url string
		req blobstore.PresignRequest
	)

	cmd := &cobra.Command{
		Use:   "presign",
		Short: "Request an upload authorization from a running server",
		Example: `  shelfscan presign --identifier H10011 --camera 2 --filename back.jpg --content-type image/jpeg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = a.cfg.Client.URL
			}
			client, err := session.Dial(cmd.Context(), url, session.ClientOptions{Timeout: a.cfg.Client.RequestTimeout})
			if err != nil {
				return err
			}
			defer client.Close()

			auth, err := client.Presign(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(auth)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server WebSocket URL (defaults to client.url)")
	cmd.Flags().StringVar(&req.Identifier, "identifier", "", "Item identifier")
	cmd.Flags().StringVar(&req.Filename, "filename", "", "Capture filename")
	cmd.Flags().StringVar(&req.ContentType, "content-type", "image/jpeg", "Capture content type")
	cmd.Flags().IntVar(&req.Camera, "camera", 1, "Camera index")
	_ = cmd.MarkFlagRequired("identifier")

	return cmd
}

func presignAndUpload(ctx context.Context, client *session.Client, req blobstore.PresignRequest, data []byte) (string, error) {
	auth, err := client.Presign(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}
	if err := blobstore.Upload(ctx, nil, auth, req.Filename, data); err != nil {
		return "", err
	}
	return auth.FinalKey, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
