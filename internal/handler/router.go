package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the router dispatches to.
type Services struct {
	Auth         *service.AuthService
	Transactions *service.TransactionService
	Dashboard    *service.DashboardService
	Export       *service.ExportService

	// Store is pinged by /healthz and admin stats. Nil skips the check.
	Store     Pinger
	StoreName string
	// CircuitState reports the store breaker state ("closed", "open", ...).
	CircuitState func() string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, metrics *observability.Metrics, logger *zap.Logger, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Store, svcs.StoreName))
	r.Get("/readyz", readyzHandler(svcs.Store, svcs.StoreName))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API ---
	r.Route("/api", func(r chi.Router) {

		// =============================================
		// Auth (public)
		// POST /api/auth/register
		// POST /api/auth/login
		// =============================================
		r.Post("/auth/register", authRegisterHandler(svcs.Auth, logger))
		r.Post("/auth/login", authLoginHandler(svcs.Auth, logger))

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, metrics, logger))

			r.Get("/auth/me", authMeHandler(svcs.Auth, logger))

			// =============================================
			// Transactions
			// =============================================
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", listTransactionsHandler(svcs.Transactions, logger))
				r.Post("/", createTransactionHandler(svcs.Transactions, logger))
				r.Get("/categories", categoriesHandler(svcs.Transactions, logger))
				r.Get("/{id}", getTransactionHandler(svcs.Transactions, logger))
				r.Put("/{id}", updateTransactionHandler(svcs.Transactions, logger))
				r.Delete("/{id}", deleteTransactionHandler(svcs.Transactions, logger))
			})

			// =============================================
			// Dashboard
			// =============================================
			r.Get("/dashboard/summary", summaryHandler(svcs.Dashboard, logger))
			r.Get("/dashboard/charts/revenue-expense", revenueExpenseHandler(svcs.Dashboard, logger))
			r.Get("/dashboard/charts/category-breakdown", categoryBreakdownHandler(svcs.Dashboard, logger))

			// =============================================
			// Export
			// =============================================
			r.Post("/export/csv", exportCSVHandler(svcs.Export, logger))

			// =============================================
			// Admin
			// =============================================
			r.With(RequireRole(logger, domain.RoleAdmin)).
				Get("/admin/stats", adminStatsHandler(svcs, metrics))
		})
	})

	return r
}
