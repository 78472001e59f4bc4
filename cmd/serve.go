package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	_ "predictive_alerts/docs"
	"predictive_alerts/internal/handlers"
	"predictive_alerts/internal/server"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Seeds risk profiles, then serves the REST API, /metrics, /swagger and the
/ws status stream. config.yml is watched and reloaded without a restart.`,
	RunE: runServe,
}

// @title                       Predictive Alerts API
// @version                     1.0
// @description                 Alert evaluation and lifecycle for industrial sensor measurements.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := a.seedProfiles(ctx, "", false); err != nil {
		return err
	}
	a.loader.Watch(a.store, a.log)

	h := handlers.NewHandler(a.services, a.log, a.metrics)
	srv := &server.Server{}
	errc := make(chan error, 1)
	go func() {
		port := a.store.Get().Port
		a.log.Infow("http_listening", "port", port)
		errc <- srv.Run(port, h.InitRoutes())
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.log.Infow("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Errorw("server forced to shutdown", "err", err)
		return err
	}
	return <-errc
}
