package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const exportFilename = "transactions.csv"

// exportCSVHandler buffers the document so a failure can still be reported
// as JSON with the right status.
func exportCSVHandler(svc *service.ExportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/export/csv")
		defer span.End()

		var req domain.ExportRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		var buf bytes.Buffer
		rows, err := svc.WriteCSV(ctx, &buf, ownerFrom(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("export.rows", rows))

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buf.Bytes()); err != nil {
			logger.Warn("export: write response", zap.Error(err))
		}
	}
}
