// Package memstore is an in-process implementation of the transaction and
// user stores. It backs tests and the "memory" store backend.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/port"
	"github.com/boddenberg/finance-dashboard-api/internal/query"
)

// Store keeps transactions and users in maps guarded by one RWMutex.
type Store struct {
	mu    sync.RWMutex
	txs   map[string]domain.Transaction
	users map[string]domain.User
}

var (
	_ port.TransactionStore = (*Store)(nil)
	_ port.UserStore        = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		txs:   make(map[string]domain.Transaction),
		users: make(map[string]domain.User),
	}
}

// ============================================================
// Transactions
// ============================================================

func (s *Store) Insert(ctx context.Context, t *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[t.ID] = *t
	return nil
}

func (s *Store) InsertMany(ctx context.Context, txs []domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txs {
		s.txs[t.ID] = t
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, owner, id string) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.txs[id]
	if !ok || t.UserID != owner {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) Find(ctx context.Context, pred query.Predicate, page query.Page) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched := s.match(pred)
	query.SortTransactions(matched, page)
	return query.Window(matched, page), nil
}

func (s *Store) Count(ctx context.Context, pred query.Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(s.match(pred)), nil
}

func (s *Store) UpdateOne(ctx context.Context, owner, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txs[id]
	if !ok || t.UserID != owner {
		return nil, nil
	}
	patch.Apply(&t)
	s.txs[id] = t
	return &t, nil
}

func (s *Store) DeleteOne(ctx context.Context, owner, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txs[id]
	if !ok || t.UserID != owner {
		return false, nil
	}
	delete(s.txs, id)
	return true, nil
}

func (s *Store) DistinctCategories(ctx context.Context, owner string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, t := range s.txs {
		if t.UserID == owner {
			seen[t.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Group(ctx context.Context, pred query.Predicate, keys []query.GroupKey) ([]query.GroupRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return query.GroupRows(s.match(pred), keys), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) match(pred query.Predicate) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, t := range s.txs {
		if pred.Match(&t) {
			out = append(out, t)
		}
	}
	return out
}

// ============================================================
// Users
// ============================================================

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return &domain.ErrConflict{Message: "Email already registered"}
		}
		if existing.Username == u.Username {
			return &domain.ErrConflict{Message: "Username already taken"}
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if (email != "" && strings.EqualFold(u.Email, email)) || (username != "" && u.Username == username) {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) MarkOnboarded(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: id}
	}
	u.Onboarded = true
	s.users[id] = u
	return nil
}
