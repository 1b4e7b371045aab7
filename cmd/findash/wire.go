package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/finance-dashboard-api/internal/config"
	"github.com/boddenberg/finance-dashboard-api/internal/handler"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/memstore"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/resilience"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/sqlstore"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/supabase"
	"github.com/boddenberg/finance-dashboard-api/internal/port"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// backend is the opened store, already wrapped in the resilience guard.
type backend struct {
	txs   port.TransactionStore
	users port.UserStore
	guard *resilience.Guard
	close func() error
}

func resilienceConfig(c *config.Config) resilience.Config {
	return resilience.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxConcurrency: c.MaxConcurrency,
		CallTimeout:    c.StoreTimeout,
	}
}

func storeDSN(c *config.Config, d sqlstore.Dialect) string {
	if d == sqlstore.SQLite {
		return sqlstore.SQLiteDSN(c.SQLitePath)
	}
	return c.DatabaseURL
}

// openBackend connects the configured store, retrying only the initial
// connection, and applies pending migrations for SQL backends.
func openBackend(ctx context.Context, c *config.Config, metrics *observability.Metrics, logger *zap.Logger) (*backend, error) {
	rcfg := resilienceConfig(c)
	be := &backend{close: func() error { return nil }}

	var (
		txs   port.TransactionStore
		users port.UserStore
	)

	switch c.StoreBackend {
	case "sqlite", "postgres":
		d, err := sqlstore.ParseDialect(c.StoreBackend)
		if err != nil {
			return nil, err
		}
		dsn := storeDSN(c, d)

		var st *sqlstore.Store
		err = resilience.RetryWithBackoff(ctx, rcfg, func() error {
			var openErr error
			st, openErr = sqlstore.Open(ctx, d, dsn, logger)
			if openErr != nil {
				logger.Warn("store not ready, retrying", zap.Error(openErr))
			}
			return openErr
		})
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", d, err)
		}
		if err := sqlstore.RunMigrations(d, dsn); err != nil {
			st.Close()
			return nil, err
		}
		txs, users, be.close = st, st, st.Close

	case "supabase":
		client := supabase.NewClient(
			&http.Client{Timeout: c.HTTPTimeout},
			c.SupabaseURL,
			c.SupabaseAnonKey,
			c.SupabaseServiceKey,
			logger,
		)
		err := resilience.RetryWithBackoff(ctx, rcfg, func() error {
			return client.Ping(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("reach supabase: %w", err)
		}
		txs, users = client, client

	case "memory":
		logger.Warn("using in-memory store: data is lost on restart")
		m := memstore.New()
		txs, users = m, m

	default:
		return nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	be.guard = resilience.NewGuard(c.StoreBackend, rcfg, func(name string, from, to gobreaker.State) {
		logger.Warn("store circuit state changed",
			zap.String("store", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.SetCircuitState(name, int(to))
	}, metrics, logger)
	be.txs = resilience.NewGuardedTransactionStore(txs, be.guard)
	be.users = resilience.NewGuardedUserStore(users, be.guard)

	logger.Info("store ready", zap.String("backend", c.StoreBackend))
	return be, nil
}

// buildServices wires the services on top of be. The dashboard cache is
// shared so transaction writes can invalidate it.
func buildServices(c *config.Config, be *backend, events port.EventPublisher, dashCache port.Cache[any], metrics *observability.Metrics, logger *zap.Logger) handler.Services {
	onboarding := service.NewOnboardingService(be.users, be.txs, dashCache, logger)

	var onboarder service.Onboarder
	if c.SeedSampleData {
		onboarder = onboarding
	}

	return handler.Services{
		Auth:         service.NewAuthService(be.users, onboarder, c.JWTSecret, c.JWTExpiresIn, metrics, logger),
		Transactions: service.NewTransactionService(be.txs, events, dashCache, logger),
		Dashboard:    service.NewDashboardService(be.txs, dashCache, metrics, logger),
		Export:       service.NewExportService(be.txs, metrics, logger),
		Store:        be.txs,
		StoreName:    c.StoreBackend,
		CircuitState: be.guard.State,
	}
}
