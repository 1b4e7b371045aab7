package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/port"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var exportTracer = otel.Tracer("service/export")

const exportDateLayout = "2006-01-02"

// ExportService projects filtered transactions onto caller-chosen columns.
type ExportService struct {
	store   port.TransactionStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewExportService creates a new export service.
func NewExportService(store port.TransactionStore, metrics *observability.Metrics, logger *zap.Logger) *ExportService {
	return &ExportService{store: store, metrics: metrics, logger: logger}
}

// Export renders the CSV document in memory.
func (s *ExportService) Export(ctx context.Context, owner string, req *domain.ExportRequest) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.WriteCSV(ctx, &buf, owner, req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV fetches every matching row (no pagination) and writes a header
// plus one record per row to w. Nothing is written when validation fails or
// nothing matches.
func (s *ExportService) WriteCSV(ctx context.Context, w io.Writer, owner string, req *domain.ExportRequest) (int, error) {
	ctx, span := exportTracer.Start(ctx, "ExportService.WriteCSV")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", owner))

	if req == nil || len(req.Fields) == 0 {
		return 0, &domain.ErrValidation{Field: "fields", Message: "Fields are required for CSV export"}
	}
	fields := make([]string, 0, len(req.Fields))
	for _, f := range req.Fields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return 0, &domain.ErrValidation{Field: "fields", Message: "Fields are required for CSV export"}
	}

	spec := domain.QuerySpec{Owner: owner}
	if f := req.Filters; f != nil {
		spec.StartDate = f.StartDate
		spec.EndDate = f.EndDate
		spec.MinAmount = f.MinAmount
		spec.MaxAmount = f.MaxAmount
		spec.Type = f.Type
		spec.Category = f.Category
		spec.Status = f.Status
		spec.Search = f.Search
	}
	pred, err := query.Build(spec)
	if err != nil {
		return 0, err
	}

	txs, err := s.store.Find(ctx, pred, query.Unbounded())
	if err != nil {
		return 0, fmt.Errorf("export transactions: %w", err)
	}
	if len(txs) == 0 {
		return 0, &domain.ErrNoResults{}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(fields); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(fields))
	for i := range txs {
		for j, f := range fields {
			record[j] = exportValue(&txs[i], f)
		}
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(txs), fmt.Errorf("flush csv: %w", err)
	}

	span.SetAttributes(attribute.Int("export.rows", len(txs)))
	s.metrics.RecordExport(len(txs))
	s.logger.Info("transactions exported",
		zap.String("user_id", owner),
		zap.Int("rows", len(txs)),
		zap.Strings("fields", fields),
	)
	return len(txs), nil
}

// exportValue renders one field of t. Unknown fields are empty.
func exportValue(t *domain.Transaction, field string) string {
	switch field {
	case "_id", "id":
		return t.ID
	case "userId":
		return t.UserID
	case "date":
		return exportDate(t.Date)
	case "amount":
		return t.Amount.String()
	case "type":
		return string(t.Type)
	case "category":
		return t.Category
	case "description":
		return t.Description
	case "status":
		return string(t.Status)
	case "createdAt":
		return exportDate(t.CreatedAt)
	case "updatedAt":
		return exportDate(t.UpdatedAt)
	}
	return ""
}

func exportDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(exportDateLayout)
}
