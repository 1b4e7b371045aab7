// Package service provides the business logic layer (use cases).
// TransactionService handles transaction CRUD, listing and categories.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/port"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var txTracer = otel.Tracer("service/transactions")

// TransactionService orchestrates owner-scoped transaction operations.
type TransactionService struct {
	store  port.TransactionStore
	events port.EventPublisher
	cache  port.Cache[any]
	logger *zap.Logger
	now    func() time.Time
}

// NewTransactionService creates a new transaction service. cache holds the
// owner's dashboard aggregates and is invalidated on every write.
func NewTransactionService(store port.TransactionStore, events port.EventPublisher, cache port.Cache[any], logger *zap.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		events: events,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================
// Create - POST /api/transactions
// ============================================================

func (s *TransactionService) Create(ctx context.Context, owner string, in *domain.TransactionInput) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", owner))

	patch, err := validateInput(in, true)
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &domain.Transaction{
		ID:        uuid.NewString(),
		UserID:    owner,
		Date:      now,
		Status:    domain.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	patch.Apply(t)

	if err := s.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	s.logger.Info("transaction created",
		zap.String("user_id", owner),
		zap.String("transaction_id", t.ID),
		zap.String("type", string(t.Type)),
	)
	s.afterWrite(ctx, domain.EventTransactionCreated, owner, t.ID, t)
	return t, nil
}

// ============================================================
// Get - GET /api/transactions/{id}
// ============================================================

func (s *TransactionService) Get(ctx context.Context, owner, id string) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if !validID(id) {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	t, err := s.store.FindOne(ctx, owner, id)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if t == nil {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return t, nil
}

// ============================================================
// Update - PUT /api/transactions/{id}
// ============================================================

// Update applies the fields present in in. The owner never changes: a
// userId in the body is ignored.
func (s *TransactionService) Update(ctx context.Context, owner, id string, in *domain.TransactionInput) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if !validID(id) {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	patch, err := validateInput(in, false)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.Get(ctx, owner, id)
	}
	patch.UpdatedAt = s.now()

	t, err := s.store.UpdateOne(ctx, owner, id, *patch)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if t == nil {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	s.logger.Info("transaction updated",
		zap.String("user_id", owner),
		zap.String("transaction_id", id),
	)
	s.afterWrite(ctx, domain.EventTransactionUpdated, owner, id, t)
	return t, nil
}

// ============================================================
// Delete - DELETE /api/transactions/{id}
// ============================================================

func (s *TransactionService) Delete(ctx context.Context, owner, id string) error {
	ctx, span := txTracer.Start(ctx, "TransactionService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if !validID(id) {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	deleted, err := s.store.DeleteOne(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if !deleted {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	s.logger.Info("transaction deleted",
		zap.String("user_id", owner),
		zap.String("transaction_id", id),
	)
	s.afterWrite(ctx, domain.EventTransactionDeleted, owner, id, nil)
	return nil
}

// ============================================================
// List - GET /api/transactions
// ============================================================

// List validates spec, then fetches the page and the total count
// concurrently.
func (s *TransactionService) List(ctx context.Context, spec domain.QuerySpec) (*domain.PaginatedTransactions, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.List")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", spec.Owner))

	pred, err := query.Build(spec)
	if err != nil {
		return nil, err
	}
	page, err := query.Paginate(spec.Page, spec.Limit, spec.SortField, spec.SortOrder)
	if err != nil {
		return nil, err
	}

	var (
		data  []domain.Transaction
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = s.store.Find(gctx, pred, page)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, pred)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	if data == nil {
		data = []domain.Transaction{}
	}
	span.SetAttributes(attribute.Int("result.total", total))
	return &domain.PaginatedTransactions{Data: data, Pagination: query.NewPageInfo(total, page)}, nil
}

// ============================================================
// Categories - GET /api/transactions/categories
// ============================================================

func (s *TransactionService) Categories(ctx context.Context, owner string) ([]string, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.Categories")
	defer span.End()

	cats, err := s.store.DistinctCategories(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	if cats == nil {
		cats = []string{}
	}
	return cats, nil
}

// ============================================================
// Internal helpers
// ============================================================

// afterWrite drops cached aggregates and announces the change. Publishing
// failures are logged; the write already succeeded.
func (s *TransactionService) afterWrite(ctx context.Context, kind, owner, id string, t *domain.Transaction) {
	if s.cache != nil {
		s.cache.DeletePrefix(owner + ":")
	}
	if s.events == nil {
		return
	}
	evt := domain.TransactionEvent{
		Kind:          kind,
		TransactionID: id,
		UserID:        owner,
		OccurredAt:    s.now(),
		Transaction:   t,
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish transaction event",
			zap.String("kind", kind),
			zap.String("transaction_id", id),
			zap.Error(err),
		)
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// validateInput turns a request body into a patch, collecting every field
// problem. create requires amount, type and category.
func validateInput(in *domain.TransactionInput, create bool) (*domain.TransactionPatch, error) {
	if in == nil {
		in = &domain.TransactionInput{}
	}
	var (
		patch domain.TransactionPatch
		errs  []domain.FieldError
	)
	fail := func(field, msg string) {
		errs = append(errs, domain.FieldError{Field: field, Message: msg})
	}

	switch {
	case in.Amount == nil:
		if create {
			fail("amount", "Amount must be a number")
		}
	case in.Amount.IsNegative():
		fail("amount", "Amount must be a non-negative number")
	case in.Amount.GreaterThan(domain.MaxAmount):
		fail("amount", "Amount must not exceed "+domain.MaxAmount.String())
	default:
		amt := roundAmount(*in.Amount)
		patch.Amount = &amt
	}

	switch {
	case in.Type == nil:
		if create {
			fail("type", "Type must be either income or expense")
		}
	default:
		typ := domain.TransactionType(strings.ToLower(strings.TrimSpace(*in.Type)))
		if !typ.Valid() {
			fail("type", "Type must be either income or expense")
		} else {
			patch.Type = &typ
		}
	}

	switch {
	case in.Category == nil:
		if create {
			fail("category", "Category is required")
		}
	case strings.TrimSpace(*in.Category) == "":
		if create {
			fail("category", "Category is required")
		} else {
			fail("category", "Category cannot be empty")
		}
	default:
		cat := strings.TrimSpace(*in.Category)
		patch.Category = &cat
	}

	if in.Date != nil && strings.TrimSpace(*in.Date) != "" {
		d, _, err := query.ParseDate(strings.TrimSpace(*in.Date))
		if err != nil {
			fail("date", "Invalid date format")
		} else {
			patch.Date = &d
		}
	}

	if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
		st := domain.TransactionStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !st.Valid() {
			fail("status", "Invalid status")
		} else {
			patch.Status = &st
		}
	}

	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		patch.Description = &desc
	}

	if len(errs) > 0 {
		return nil, &domain.ErrValidation{Message: "Validation failed", Errors: errs}
	}
	return &patch, nil
}

// roundAmount is the single money rounding rule: half-up to cents.
func roundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
