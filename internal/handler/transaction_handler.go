package handler

import (
	"net/http"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transactions
// ============================================================

func listTransactionsHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/transactions")
		defer span.End()

		spec, err := parseQuerySpec(r, ownerFrom(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := svc.List(ctx, spec)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		span.SetAttributes(attribute.Int("result.count", len(resp.Data)))
		writeJSON(w, http.StatusOK, resp)
	}
}

func createTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/transactions")
		defer span.End()

		var in domain.TransactionInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		t, err := svc.Create(ctx, ownerFrom(r), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, t)
	}
}

func getTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/transactions/{id}")
		defer span.End()

		t, err := svc.Get(ctx, ownerFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, t)
	}
}

func updateTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/transactions/{id}")
		defer span.End()

		var in domain.TransactionInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		t, err := svc.Update(ctx, ownerFrom(r), chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/transactions/{id}")
		defer span.End()

		if err := svc.Delete(ctx, ownerFrom(r), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "Transaction deleted successfully"})
	}
}

func categoriesHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/transactions/categories")
		defer span.End()

		cats, err := svc.Categories(ctx, ownerFrom(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, cats)
	}
}
