package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/shelfscan/internal/blobstore"
	"github.com/lehigh-university-libraries/shelfscan/internal/handlers"
	"github.com/lehigh-university-libraries/shelfscan/internal/session"
)

const drainTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ingest server",
		Long: `Starts the WebSocket ingest server and its HTTP endpoints.

Clients connect to /ws, receive a snapshot of recent operations and send
presign_request, ingest_complete and reanalyze_request messages. The server
also exposes /api/operations, /api/records/{identifier}, /api/uploads (local
blob backend) and /healthcheck.`,
		Example: `  # Start server on the configured address (default :8888)
  shelfscan serve

  # Start server on a custom address
  shelfscan serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cfg.Server.PublicURL == "" {
				cfg.Server.PublicURL = "http://localhost" + cfg.Server.Addr
			}

			c, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.store.Close()

			hub := session.NewServer(c.pipeline, c.presigner, c.ledger, session.Options{
				SnapshotSize:       cfg.Server.SnapshotSize,
				PingInterval:       cfg.Server.PingInterval,
				DefaultContentType: cfg.Pipeline.DefaultContentType,
			})

			var uploads handlers.Uploader
			if local, ok := c.blobs.(*blobstore.Local); ok {
				uploads = local
			}
			handler := handlers.New(c.ledger, c.store, c.blobs, uploads, cfg.Server.SnapshotSize)

			mux := http.NewServeMux()
			mux.Handle("/ws", hub)
			handler.Routes(mux)

			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				slog.Info("Shelfscan server available", "addr", cfg.Server.Addr, "ws", "ws://localhost"+cfg.Server.Addr+"/ws")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return hub.Run(ctx)
			})
			g.Go(func() error {
				<-ctx.Done()
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			})

			err = g.Wait()

			// runs outlive their connections; let them reach the store
			// before it is closed
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if werr := hub.Wait(drainCtx); werr != nil {
				slog.Warn("Abandoning in-flight analyses", "err", werr)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides server.addr)")

	return cmd
}
