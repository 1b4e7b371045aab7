package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
)

const pingTimeout = 2 * time.Second

// ============================================================
// Health & admin
// ============================================================

func healthzHandler(store Pinger, storeName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "findash-api", Status: "healthy", LastChecked: now},
		}
		if store != nil {
			services = append(services, checkStore(r.Context(), store, storeName))
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

// readyzHandler reports not ready while the store cannot be reached.
func readyzHandler(store Pinger, storeName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if h := checkStore(r.Context(), store, storeName); h.Status != "healthy" {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": h.Error})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func adminStatsHandler(svcs Services, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/admin/stats")
		defer span.End()

		circuit := "closed"
		if svcs.CircuitState != nil {
			circuit = svcs.CircuitState()
		}

		stats := domain.AdminStats{
			Store:   domain.ServiceHealth{Name: svcs.StoreName, Status: "unknown"},
			Metrics: metrics.Snapshot(circuit),
		}
		if svcs.Store != nil {
			stats.Store = checkStore(ctx, svcs.Store, svcs.StoreName)
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func checkStore(ctx context.Context, store Pinger, name string) domain.ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := store.Ping(ctx)
	h := domain.ServiceHealth{
		Name:        name,
		Status:      "healthy",
		LatencyMs:   time.Since(start).Milliseconds(),
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		h.Status = "degraded"
		h.Error = err.Error()
	}
	return h
}
