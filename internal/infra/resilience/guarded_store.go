package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/port"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrorRecorder receives the operation name of every failed store call.
type ErrorRecorder interface {
	IncrStoreError(operation string)
}

// Guard bounds store calls with a timeout, a bulkhead and a circuit breaker.
// It never retries.
type Guard struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	bulkhead *Bulkhead
	timeout  time.Duration
	recorder ErrorRecorder
	logger   *zap.Logger
}

// NewGuard creates a guard. recorder may be nil.
func NewGuard(name string, cfg Config, onChange StateChangeFunc, recorder ErrorRecorder, logger *zap.Logger) *Guard {
	return &Guard{
		name:     name,
		cb:       NewCircuitBreaker(name, countsAsSuccess, onChange),
		bulkhead: NewBulkhead(cfg.MaxConcurrency),
		timeout:  cfg.CallTimeout,
		recorder: recorder,
		logger:   logger,
	}
}

// State reports the breaker state ("closed", "half-open", "open").
func (g *Guard) State() string {
	return g.cb.State().String()
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the
// breaker; only backend failures count.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var (
		notFound *domain.ErrNotFound
		conflict *domain.ErrConflict
		valid    *domain.ErrValidation
		filter   *domain.ErrInvalidFilter
		badQuery *domain.ErrInvalidQuery
	)
	return errors.As(err, &notFound) || errors.As(err, &conflict) ||
		errors.As(err, &valid) || errors.As(err, &filter) || errors.As(err, &badQuery)
}

func guarded[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.bulkhead.Acquire(ctx); err != nil {
		return zero, g.translate(ctx, op, err)
	}
	defer g.bulkhead.Release()

	res, err := g.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, g.translate(ctx, op, err)
	}
	v, _ := res.(T)
	return v, nil
}

func (g *Guard) translate(ctx context.Context, op string, err error) error {
	if countsAsSuccess(err) {
		return err
	}
	if g.recorder != nil {
		g.recorder.IncrStoreError(op)
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, g.name+"."+op+" failed")

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.logger.Warn("store call rejected by circuit breaker",
			zap.String("store", g.name),
			zap.String("operation", op),
		)
		return &domain.ErrCircuitOpen{Service: g.name}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		g.logger.Error("store call timed out",
			zap.String("store", g.name),
			zap.String("operation", op),
			zap.Duration("timeout", g.timeout),
		)
		return &domain.ErrTimeout{Operation: g.name + "." + op}
	}

	g.logger.Error("store call failed",
		zap.String("store", g.name),
		zap.String("operation", op),
		zap.Error(err),
	)
	return &domain.ErrExternalService{Service: g.name, Err: err}
}

// ============================================================
// Transaction store decorator
// ============================================================

// GuardedTransactionStore wraps a TransactionStore with a Guard.
type GuardedTransactionStore struct {
	next  port.TransactionStore
	guard *Guard
}

var _ port.TransactionStore = (*GuardedTransactionStore)(nil)

// NewGuardedTransactionStore decorates next.
func NewGuardedTransactionStore(next port.TransactionStore, guard *Guard) *GuardedTransactionStore {
	return &GuardedTransactionStore{next: next, guard: guard}
}

func (s *GuardedTransactionStore) Insert(ctx context.Context, t *domain.Transaction) error {
	_, err := guarded(ctx, s.guard, "Insert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.Insert(ctx, t)
	})
	return err
}

func (s *GuardedTransactionStore) InsertMany(ctx context.Context, txs []domain.Transaction) error {
	_, err := guarded(ctx, s.guard, "InsertMany", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.InsertMany(ctx, txs)
	})
	return err
}

func (s *GuardedTransactionStore) FindOne(ctx context.Context, owner, id string) (*domain.Transaction, error) {
	return guarded(ctx, s.guard, "FindOne", func(ctx context.Context) (*domain.Transaction, error) {
		return s.next.FindOne(ctx, owner, id)
	})
}

func (s *GuardedTransactionStore) Find(ctx context.Context, pred query.Predicate, page query.Page) ([]domain.Transaction, error) {
	return guarded(ctx, s.guard, "Find", func(ctx context.Context) ([]domain.Transaction, error) {
		return s.next.Find(ctx, pred, page)
	})
}

func (s *GuardedTransactionStore) Count(ctx context.Context, pred query.Predicate) (int, error) {
	return guarded(ctx, s.guard, "Count", func(ctx context.Context) (int, error) {
		return s.next.Count(ctx, pred)
	})
}

func (s *GuardedTransactionStore) UpdateOne(ctx context.Context, owner, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	return guarded(ctx, s.guard, "UpdateOne", func(ctx context.Context) (*domain.Transaction, error) {
		return s.next.UpdateOne(ctx, owner, id, patch)
	})
}

func (s *GuardedTransactionStore) DeleteOne(ctx context.Context, owner, id string) (bool, error) {
	return guarded(ctx, s.guard, "DeleteOne", func(ctx context.Context) (bool, error) {
		return s.next.DeleteOne(ctx, owner, id)
	})
}

func (s *GuardedTransactionStore) DistinctCategories(ctx context.Context, owner string) ([]string, error) {
	return guarded(ctx, s.guard, "DistinctCategories", func(ctx context.Context) ([]string, error) {
		return s.next.DistinctCategories(ctx, owner)
	})
}

func (s *GuardedTransactionStore) Group(ctx context.Context, pred query.Predicate, keys []query.GroupKey) ([]query.GroupRow, error) {
	return guarded(ctx, s.guard, "Group", func(ctx context.Context) ([]query.GroupRow, error) {
		return s.next.Group(ctx, pred, keys)
	})
}

// Ping bypasses the breaker so health checks observe the real backend.
func (s *GuardedTransactionStore) Ping(ctx context.Context) error {
	if s.guard.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.guard.timeout)
		defer cancel()
	}
	return s.next.Ping(ctx)
}

// ============================================================
// User store decorator
// ============================================================

// GuardedUserStore wraps a UserStore with a Guard.
type GuardedUserStore struct {
	next  port.UserStore
	guard *Guard
}

var _ port.UserStore = (*GuardedUserStore)(nil)

// NewGuardedUserStore decorates next.
func NewGuardedUserStore(next port.UserStore, guard *Guard) *GuardedUserStore {
	return &GuardedUserStore{next: next, guard: guard}
}

func (s *GuardedUserStore) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := guarded(ctx, s.guard, "CreateUser", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.CreateUser(ctx, u)
	})
	return err
}

func (s *GuardedUserStore) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	return guarded(ctx, s.guard, "FindUserByEmailOrUsername", func(ctx context.Context) (*domain.User, error) {
		return s.next.FindUserByEmailOrUsername(ctx, email, username)
	})
}

func (s *GuardedUserStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return guarded(ctx, s.guard, "GetUserByID", func(ctx context.Context) (*domain.User, error) {
		return s.next.GetUserByID(ctx, id)
	})
}

func (s *GuardedUserStore) MarkOnboarded(ctx context.Context, id string) error {
	_, err := guarded(ctx, s.guard, "MarkOnboarded", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.MarkOnboarded(ctx, id)
	})
	return err
}
