// Package port defines the interfaces (ports) for external dependencies.
// This enables dependency inversion and makes the service layer testable.
package port

import (
	"context"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/query"
)

// TransactionStore persists transactions. Every method is owner-scoped,
// either through an explicit owner argument or the predicate's Owner.
type TransactionStore interface {
	Insert(ctx context.Context, t *domain.Transaction) error
	InsertMany(ctx context.Context, txs []domain.Transaction) error
	// FindOne returns nil, nil when no transaction matches id and owner.
	FindOne(ctx context.Context, owner, id string) (*domain.Transaction, error)
	Find(ctx context.Context, pred query.Predicate, page query.Page) ([]domain.Transaction, error)
	Count(ctx context.Context, pred query.Predicate) (int, error)
	// UpdateOne atomically applies patch to the row matching id and owner.
	// It returns nil, nil when nothing matched.
	UpdateOne(ctx context.Context, owner, id string, patch domain.TransactionPatch) (*domain.Transaction, error)
	DeleteOne(ctx context.Context, owner, id string) (bool, error)
	DistinctCategories(ctx context.Context, owner string) ([]string, error)
	Group(ctx context.Context, pred query.Predicate, keys []query.GroupKey) ([]query.GroupRow, error)
	Ping(ctx context.Context) error
}

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser returns *domain.ErrConflict when email or username is taken.
	CreateUser(ctx context.Context, u *domain.User) error
	// FindUserByEmailOrUsername returns nil, nil when neither matches.
	FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	MarkOnboarded(ctx context.Context, id string) error
}

// EventPublisher announces transaction changes to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.TransactionEvent) error
}

// Cache abstracts caching for testability.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	DeletePrefix(prefix string)
	Generation(prefix string) uint64
	SetIfGeneration(key, prefix string, gen uint64, value T) bool
}
