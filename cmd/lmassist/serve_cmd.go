package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langmartai/lmassist/internal/cli"
	"github.com/langmartai/lmassist/internal/httpapi"
	"github.com/langmartai/lmassist/internal/relay"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP API (and relay, if a hub is configured)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	return cmd
}

func runServe() error {
	app, err := newAppContext(true)
	if err != nil {
		return err
	}
	defer app.Close()

	hubClient, err := app.newHubClient()
	if err != nil {
		return err
	}

	syncSvc := app.newSyncService()
	server := httpapi.NewServer(app.Store, app.DB, app.Provider, syncSvc, hubClient, app.Logger)

	cli.Logo(Version)
	cli.Footer("listening on " + app.Config.HTTP.Addr)

	httpServer := &http.Server{Addr: app.Config.HTTP.Addr, Handler: server}

	stop := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if hubClient != nil && app.Config.Hub.URL != "" {
		routes := []relay.Route{
			{Prefix: "/knowledge", StripPrefix: false},
			{Prefix: "/v1", StripPrefix: false},
		}
		handler := relay.NewHandler(server, routes, app.Logger)
		relayConn, err := relay.NewConn(app.Config.Hub.URL, app.Config.Hub.APIKey, handler, app.Logger)
		if err != nil {
			app.Logger.Warn("relay not started", zap.Error(err))
		} else {
			go relayConn.Run(stop)
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		close(stop)
		return err
	case <-sigc:
		cli.Footer("shutting down")
	}

	close(stop)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
