package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstgnz/academypay/handler"
	"github.com/mstgnz/academypay/infra/config"
	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/router"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var (
		reconcileEvery time.Duration
		staleAfter     time.Duration
		staleBatch     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and webhook receiver",
		Long: `Start the HTTP API and webhook receiver.

Examples:
  academypay serve
  academypay serve --reconcile-every 5m --stale-after 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, appConfig(), reconcileEvery, staleAfter, staleBatch)
		},
	}

	cmd.Flags().DurationVar(&reconcileEvery, "reconcile-every", 0, "reconcile stale payments on this interval (0 disables)")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 30*time.Minute, "age after which an unfinished payment counts as stale")
	cmd.Flags().IntVar(&staleBatch, "stale-batch", 100, "maximum stale payments reconciled per run")

	return cmd
}

func runServe(ctx context.Context, cfg *config.AppConfig, reconcileEvery, staleAfter time.Duration, staleBatch int) error {
	if cfg.APIKey == "" {
		return errors.New("API_KEY must be set")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	var search handler.Pinger
	var trail handler.AuditTrailInterface
	if a.search != nil {
		search = a.search
		trail = a.recorder
	}

	h := router.New(router.Handlers{
		Payment: handler.NewPaymentHandler(a.service, trail),
		Webhook: handler.NewWebhookHandler(a.service),
		Config:  handler.NewConfigHandler(a.gateways, a.registry),
		Health: handler.NewHealthHandler(handler.HealthDeps{
			DB:           a.db,
			DatabasePath: cfg.DatabasePath,
			Search:       search,
			Gateways:     a.registry.Names(),
			Notifier:     a.dispatcher,
			Environment:  cfg.Environment,
			Version:      Version,
		}),
	}, router.Options{
		APIKey:            cfg.APIKey,
		TrustProxy:        cfg.TrustProxy,
		CORSOrigins:       cfg.CORSOrigins,
		WebhookAllowlists: cfg.WebhookAllowlists,
		WebhookRateLimit:  cfg.WebhookRateLimit,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if reconcileEvery > 0 {
		go reconcileLoop(ctx, a, reconcileEvery, staleAfter, staleBatch)
	}

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{
		"port":     cfg.Port,
		"gateways": a.registry.Names(),
	}})

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			a.close(context.Background())
			return err
		}
	}

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	return errors.Join(shutdownErr, a.close(shutdownCtx))
}

// reconcileLoop periodically asks gateways about payments that never got a
// callback
func reconcileLoop(ctx context.Context, a *app, every, staleAfter time.Duration, batch int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcomes, err := a.service.ReconcileStale(ctx, staleAfter, batch)
			if err != nil {
				logger.Error("stale reconciliation finished with errors", err)
			}
			if len(outcomes) > 0 {
				logger.Info("stale payments reconciled", logger.LogContext{Fields: map[string]any{"count": len(outcomes)}})
			}
		}
	}
}
