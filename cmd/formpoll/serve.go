package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/formpoll/internal/api"
	"github.com/nhle/formpoll/internal/notify"
	"github.com/nhle/formpoll/internal/reconcile"
	"github.com/nhle/formpoll/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll mailboxes on a schedule and stream completion events",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hub := notify.NewHub(a.logger)
		worker := reconcile.NewWorker(a.sessions, a.store, hub, buildRegistry(a.cfg),
			reconcile.WithFetchTimeout(a.cfg.Poll.FetchTimeout()),
			reconcile.WithLogger(a.logger),
		)
		poller := sync.New(a.store, worker, a.cfg.Poll.Interval(), a.cfg.Poll.Concurrency, a.logger)

		// The poller outlives the signal so Stop can drain the batch.
		if err := poller.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		a.logger.Info("poller started",
			"interval", a.cfg.Poll.Interval(),
			"concurrency", a.cfg.Poll.Concurrency,
			"sessions", a.cfg.Sessions.Backend,
		)

		var srv *http.Server
		errCh := make(chan error, 1)
		if a.cfg.Server.Enabled {
			srv = &http.Server{
				Addr:    a.cfg.Server.Addr,
				Handler: api.NewRouter(poller, hub, a.logger),
				BaseContext: func(_ net.Listener) context.Context {
					return ctx
				},
			}
			go func() {
				a.logger.Info("listening", "addr", a.cfg.Server.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
		}

		var serveErr error
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				serveErr = fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("server shutdown", "error", err)
			}
		}
		if err := poller.Stop(shutdownCtx); err != nil {
			return errors.Join(serveErr, fmt.Errorf("stopping poller: %w", err))
		}
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
