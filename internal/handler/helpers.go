package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// ownerFrom returns the authenticated user's id. Routes using it sit behind
// JWTAuthMiddleware, so the identity is always present.
func ownerFrom(r *http.Request) string {
	id, _ := IdentityFromContext(r.Context())
	return id.UserID
}

// parseQuerySpec reads the list filters, paging and sort parameters.
// Malformed numbers are rejected here, before any store access.
func parseQuerySpec(r *http.Request, owner string) (domain.QuerySpec, error) {
	q := r.URL.Query()
	spec := domain.QuerySpec{
		Owner:     owner,
		StartDate: strings.TrimSpace(q.Get("startDate")),
		EndDate:   strings.TrimSpace(q.Get("endDate")),
		Type:      strings.TrimSpace(q.Get("type")),
		Category:  strings.TrimSpace(q.Get("category")),
		Status:    strings.TrimSpace(q.Get("status")),
		Search:    q.Get("search"),
		SortField: strings.TrimSpace(q.Get("sortField")),
		SortOrder: strings.TrimSpace(q.Get("sortOrder")),
	}

	var err error
	if spec.Page, err = intParam(q, "page"); err != nil {
		return spec, err
	}
	if spec.Limit, err = intParam(q, "limit"); err != nil {
		return spec, err
	}
	if spec.MinAmount, err = amountParam(q, "minAmount"); err != nil {
		return spec, err
	}
	if spec.MaxAmount, err = amountParam(q, "maxAmount"); err != nil {
		return spec, err
	}
	return spec, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ErrInvalidQuery{Reason: name + " must be an integer"}
	}
	return n, nil
}

func amountParam(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &domain.ErrInvalidFilter{Field: name, Value: raw, Reason: "must be a number"}
	}
	return &f, nil
}

// handleServiceError maps domain errors to HTTP responses. Anything not
// recognised is logged and reported without detail.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var noResults *domain.ErrNoResults
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var invalidQuery *domain.ErrInvalidQuery
	var invalidFilter *domain.ErrInvalidFilter
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, notFoundMessage(notFound))
	case errors.As(err, &noResults):
		writeError(w, http.StatusNotFound, noResults.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		msg := validation.Message
		if msg == "" {
			msg = "Validation failed"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msg, Errors: validation.Errors})
	case errors.As(err, &invalidQuery), errors.As(err, &invalidFilter):
		logger.Debug("invalid query", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, "Insufficient permissions")
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// notFoundMessage renders "Transaction not found" without echoing the id.
func notFoundMessage(e *domain.ErrNotFound) string {
	if e.Resource == "" {
		return "Resource not found"
	}
	return strings.ToUpper(e.Resource[:1]) + e.Resource[1:] + " not found"
}
