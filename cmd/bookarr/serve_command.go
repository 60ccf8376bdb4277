package main

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bookarr/bookarr/internal/bootstrap"
	"github.com/bookarr/bookarr/internal/httpapi"
)

// defaultAllowedOrigins are the origins the /metrics and /health
// endpoints accept cross-origin requests from - local dashboard/dev
// ports, mirroring the teacher's own localhost defaults since bookarr
// has no web UI of its own to derive a BaseURL from.
var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// RunServeCommand builds and runs the process: opens the database,
// wires every §4 component, starts the monitor loop (§4.J) and serves
// the ambient health/metrics surface until the process receives a
// shutdown signal.
func RunServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bookarr server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pcfg, err := loadProcessConfig(cmd)
			if err != nil {
				return err
			}
			bootstrap.ConfigureLogging(pcfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bootstrap.WatchLogLevel(ctx, pcfg.ConfigPath)

			a, err := buildApp(ctx, pcfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error().Err(err).Msg("serve: failed to close database cleanly")
				}
			}()

			if a.monitor != nil {
				go a.monitor.Run(ctx)
			} else {
				log.Warn().Msg("serve: no torrent client configured, download monitor is idle")
			}

			addr := pcfg.Host + ":" + strconv.Itoa(pcfg.Port)
			srv := &http.Server{
				Addr:    addr,
				Handler: httpapi.NewRouter(a.requests, a.sessions, defaultAllowedOrigins),
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("serve: listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Info().Msg("serve: shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	return cmd
}
