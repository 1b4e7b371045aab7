package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := SQLiteDSN(filepath.Join(t.TempDir(), "findash.db"))
	require.NoError(t, RunMigrations(SQLite, dsn))

	s, err := Open(context.Background(), SQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mkTx(id, owner, date, amount string, typ domain.TransactionType, category, desc string, status domain.TransactionStatus) domain.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Transaction{
		ID: id, UserID: owner, Date: d, Amount: decimal.RequireFromString(amount),
		Type: typ, Category: category, Description: desc, Status: status,
		CreatedAt: now, UpdatedAt: now,
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.InsertMany(context.Background(), []domain.Transaction{
		mkTx("a1", "alice", "2024-01-05", "1000", domain.TypeIncome, "Salary", "January pay", domain.StatusCompleted),
		mkTx("a2", "alice", "2024-01-10", "200.50", domain.TypeExpense, "Food", "Groceries 50% off", domain.StatusCompleted),
		mkTx("a3", "alice", "2024-02-03", "300", domain.TypeExpense, "Rent", "", domain.StatusPending),
		mkTx("b1", "bob", "2024-01-07", "999", domain.TypeIncome, "Salary", "", domain.StatusCompleted),
	}))
}

func TestRunMigrations_Idempotent(t *testing.T) {
	dsn := SQLiteDSN(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, RunMigrations(SQLite, dsn))
	require.NoError(t, RunMigrations(SQLite, dsn))

	v, dirty, ok, err := MigrationVersion(SQLite, dsn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), v)
}

func TestStore_FindOwnerScopedAndPaged(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	pred := query.Predicate{Owner: "alice"}
	page, err := query.Paginate(1, 2, "date", "desc")
	require.NoError(t, err)

	got, err := s.Find(ctx, pred, page)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a3", got[0].ID)
	assert.Equal(t, "a2", got[1].ID)
	assert.True(t, got[1].Amount.Equal(decimal.RequireFromString("200.50")))
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), got[1].Date)

	n, err := s.Count(ctx, pred)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := s.Find(ctx, pred, query.Unbounded())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_FindFilters(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	from := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	minAmt := decimal.NewFromInt(250)

	tests := []struct {
		name string
		pred query.Predicate
		want []string
	}{
		{"date lower bound", query.Predicate{Owner: "alice", From: &from}, []string{"a3", "a2"}},
		{"min amount", query.Predicate{Owner: "alice", MinAmount: &minAmt}, []string{"a3", "a1"}},
		{"type", query.Predicate{Owner: "alice", Type: domain.TypeExpense}, []string{"a3", "a2"}},
		{"status", query.Predicate{Owner: "alice", Status: domain.StatusPending}, []string{"a3"}},
		{"search description", query.Predicate{Owner: "alice", Search: query.NewSearch("GROC")}, []string{"a2"}},
		{"search literal percent", query.Predicate{Owner: "alice", Search: query.NewSearch("50%")}, []string{"a2"}},
		{"search amount", query.Predicate{Owner: "alice", Search: query.NewSearch("1000")}, []string{"a1"}},
		{"search other owner", query.Predicate{Owner: "bob", Search: query.NewSearch("january")}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(ctx, tt.pred, query.Unbounded())
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, tx := range got {
				ids = append(ids, tx.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_Group(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	rows, err := s.Group(context.Background(), query.Predicate{Owner: "alice"},
		[]query.GroupKey{query.KeyYear, query.KeyMonth, query.KeyType})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2024, rows[0].Year)
	assert.Equal(t, 1, rows[0].Month)
	assert.Equal(t, domain.TypeExpense, rows[0].Type)
	assert.True(t, rows[0].Total.Equal(decimal.RequireFromString("200.5")))
	assert.Equal(t, 2, rows[2].Month)

	totals, err := s.Group(context.Background(), query.Predicate{Owner: "nobody"}, nil)
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	amt := decimal.RequireFromString("42.10")
	cat := "Dining"
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	got, err := s.UpdateOne(ctx, "alice", "a2", domain.TransactionPatch{Amount: &amt, Category: &cat, UpdatedAt: now})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(amt))
	assert.Equal(t, "Dining", got.Category)
	assert.Equal(t, now, got.UpdatedAt)
	assert.Equal(t, "alice", got.UserID)

	none, err := s.UpdateOne(ctx, "bob", "a2", domain.TransactionPatch{Category: &cat, UpdatedAt: now})
	require.NoError(t, err)
	assert.Nil(t, none)

	deleted, err := s.DeleteOne(ctx, "bob", "a1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.DeleteOne(ctx, "alice", "a1")
	require.NoError(t, err)
	assert.True(t, deleted)

	gone, err := s.FindOne(ctx, "alice", "a1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	cats, err := s.DistinctCategories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dining", "Rent"}, cats)
}

func TestStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := &domain.User{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "x", Role: domain.RoleUser, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateUser(ctx, u))

	dup := *u
	dup.ID = "u2"
	dup.Username = "other"
	err := s.CreateUser(ctx, &dup)
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Email already registered", conflict.Message)

	found, err := s.FindUserByEmailOrUsername(ctx, "ALICE@example.com", "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u1", found.ID)
	assert.False(t, found.Onboarded)

	require.NoError(t, s.MarkOnboarded(ctx, "u1"))
	got, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Onboarded)

	var notFound *domain.ErrNotFound
	assert.ErrorAs(t, s.MarkOnboarded(ctx, "missing"), &notFound)
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Postgres.rebind(q))
}

func TestStore_RejectsAmountsBeyondCents(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	for _, amount := range []string{"184467440737095516.21", "100000000000000000"} {
		t.Run(amount, func(t *testing.T) {
			tx := mkTx("huge-"+amount, "alice", "2024-03-01", amount, domain.TypeIncome, "Lottery", "", domain.StatusCompleted)
			var valid *domain.ErrValidation
			require.ErrorAs(t, s.Insert(ctx, &tx), &valid)
			assert.Equal(t, "amount", valid.Field)

			huge := decimal.RequireFromString(amount)
			_, err := s.UpdateOne(ctx, "alice", "a1", domain.TransactionPatch{Amount: &huge})
			assert.ErrorAs(t, err, &valid)

			_, err = s.Count(ctx, query.Predicate{Owner: "alice", MinAmount: &huge})
			assert.ErrorAs(t, err, &valid)
		})
	}

	rows, err := s.Group(ctx, query.Predicate{Owner: "alice"}, []query.GroupKey{query.KeyType})
	require.NoError(t, err)
	totals := make(map[domain.TransactionType]string)
	for _, r := range rows {
		totals[r.Type] = r.Total.String()
	}
	assert.Equal(t, "1000", totals[domain.TypeIncome])
	assert.Equal(t, "500.5", totals[domain.TypeExpense])

	a1, err := s.FindOne(ctx, "alice", "a1")
	require.NoError(t, err)
	assert.Equal(t, "1000", a1.Amount.String())
}

func TestWhere_SearchAmountBeyondCentsIsIgnored(t *testing.T) {
	huge := decimal.RequireFromString("1e30")
	clause, args, err := SQLite.where(query.Predicate{Owner: "u", Search: &query.Search{Term: "1e30", Amount: &huge}})
	require.NoError(t, err)
	assert.NotContains(t, clause, "amount_cents = ?")
	assert.Len(t, args, 4)
}

func TestStore_SearchFoldsNonASCIICase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tx := mkTx("e1", "alice", "2024-04-01", "12", domain.TypeExpense, "Éducation", "CAFÉ au lait", domain.StatusCompleted)
	require.NoError(t, s.Insert(ctx, &tx))

	for _, term := range []string{"éducation", "ÉDUC", "café"} {
		t.Run(term, func(t *testing.T) {
			pred := query.Predicate{Owner: "alice", Search: query.NewSearch(term)}
			require.True(t, pred.Match(&tx), "in-memory predicate should match")

			got, err := s.Find(ctx, pred, query.Unbounded())
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "e1", got[0].ID)
		})
	}
}
