package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rvol-scanner/internal/server"
	"rvol-scanner/internal/watch"
)

// newServeCmd runs the HTTP API and the watch loop in one process; both
// stop on SIGINT/SIGTERM.
func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the price watch loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Config.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(app.Store, app.Engine, app.Sink, app.Config.ScanSnapshot(), app.Config.Capital.Starting, app.Logger)

			loop := watch.NewLoop(app.Store, app.Bucket, app.Quotes, app.Sink, watch.Config{
				Interval:     app.Config.Watch.Interval,
				WatchlistCap: app.Config.Watch.WatchlistCap,
				TokenWait:    app.Config.Watch.TokenWaitTime,
			}, app.Logger).OnTrigger(srv.BroadcastTrigger)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 2)
			go func() {
				app.Logger.Info().Str("addr", addr).Msg("HTTP server listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			go func() {
				if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				stop()
				shutdownHTTP(httpServer, app)
				return err
			}

			shutdownHTTP(httpServer, app)
			app.Logger.Info().Msg("Shutdown complete")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from config)")
	return cmd
}

func shutdownHTTP(httpServer *http.Server, app *App) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
}

// newWatchCmd runs only the watch loop, without the HTTP surface.
func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the price watch loop in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}

			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				interval = app.Config.Watch.Interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loop := watch.NewLoop(app.Store, app.Bucket, app.Quotes, app.Sink, watch.Config{
				Interval:     interval,
				WatchlistCap: app.Config.Watch.WatchlistCap,
				TokenWait:    app.Config.Watch.TokenWaitTime,
			}, app.Logger)

			if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().Duration("interval", 0, "poll interval (default from config)")
	return cmd
}
