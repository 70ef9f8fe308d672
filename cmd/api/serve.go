package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/router"
)

func serveCmd() *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

Examples:
  tipsctl serve
  tipsctl serve --memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, memory)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "use in-memory stores and a fake payment provider")
	return cmd
}

func runServe(cmd *cobra.Command, memory bool) error {
	a, err := newApp(cmd, memory)
	if err != nil {
		return err
	}
	defer a.Close()
	sugar := a.log
	sugar.Infow("starting service-tips-go", "version", Version, "addr", a.cfg.HTTPAddr)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           router.RegisterRoutes(sugar, a.handlers()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sugar.Info("service is running; press Ctrl+C to stop")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			sugar.Errorw("http server failed", "err", err)
			return err
		}
	}

	sugar.Info("shutting down")

	// give a short grace period for in-flight requests
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.users.Ping(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
	return nil
}
