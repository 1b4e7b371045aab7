package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Dashboard
// ============================================================

func summaryHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/dashboard/summary")
		defer span.End()

		sum, err := svc.Summary(ctx, ownerFrom(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, sum)
	}
}

func revenueExpenseHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/dashboard/charts/revenue-expense")
		defer span.End()

		series, err := svc.MonthlySeries(ctx, ownerFrom(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, series)
	}
}

func categoryBreakdownHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/dashboard/charts/category-breakdown")
		defer span.End()

		q := r.URL.Query()
		filter := domain.BreakdownFilter{
			Type:      strings.TrimSpace(q.Get("type")),
			StartDate: strings.TrimSpace(q.Get("startDate")),
			EndDate:   strings.TrimSpace(q.Get("endDate")),
		}

		shares, err := svc.CategoryBreakdown(ctx, ownerFrom(r), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, shares)
	}
}
