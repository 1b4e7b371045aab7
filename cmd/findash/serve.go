package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/handler"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/cache"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/events"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/port"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides PORT)")
	_ = v.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	return cmd
}

func runServer(ctx context.Context) error {
	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("store_timeout", cfg.StoreTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("jwt_expires_in", cfg.JWTExpiresIn),
		zap.Bool("seed_sample_data", cfg.SeedSampleData),
		zap.Bool("events_enabled", cfg.AMQPURL != ""),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "findash-api")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	be, err := openBackend(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer be.close()

	// --- Cache ---
	dashCache := cache.New[any](cfg.CacheTTL)
	defer dashCache.Close()

	// --- Events ---
	var publisher port.EventPublisher = events.Noop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			defer p.Close()
			publisher = p
		}
	}

	// --- Router ---
	svcs := buildServices(cfg, be, publisher, dashCache, metrics, logger)
	router := handler.NewRouter(svcs, metrics, logger, cfg.CORSOrigins)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- Graceful shutdown ---
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
