package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_VisibleOnlyToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, "owner-u", input("100", "expense", "Groceries", "2024-01-08"))
	assert.Equal(t, domain.StatusCompleted, created.Status)
	assert.Equal(t, "owner-u", created.UserID)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), created.Date)

	got, err := f.txs.List(ctx, domain.QuerySpec{Owner: "owner-u", Category: "Groceries"})
	require.NoError(t, err)
	require.Len(t, got.Data, 1)
	assert.Equal(t, created.ID, got.Data[0].ID)
	assert.Equal(t, 1, got.Pagination.Total)

	other, err := f.txs.List(ctx, domain.QuerySpec{Owner: "owner-v", Category: "Groceries"})
	require.NoError(t, err)
	assert.Empty(t, other.Data)
	assert.NotNil(t, other.Data)
	assert.Equal(t, 0, other.Pagination.Pages)

	assert.Equal(t, []string{domain.EventTransactionCreated}, f.events.kinds())
}

func TestCreate_ValidationCollectsFieldErrors(t *testing.T) {
	f := newFixture(t)

	neg := decimal.NewFromInt(-5)
	_, err := f.txs.Create(context.Background(), "u", &domain.TransactionInput{
		Amount: &neg,
		Type:   strp("transfer"),
		Date:   strp("08/01/2024"),
		Status: strp("done"),
	})

	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{"amount", "type", "category", "date", "status"}, fields)
	assert.Empty(t, f.events.kinds())
}

func TestCreate_RejectsAmountAboveMaximum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.txs.Create(ctx, "u", input("184467440737095516.21", "income", "Lottery", "2024-01-01"))
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "amount", verr.Errors[0].Field)

	created := f.create(t, "u", input(domain.MaxAmount.String(), "income", "Lottery", "2024-01-01"))
	assert.True(t, created.Amount.Equal(domain.MaxAmount))

	huge := domain.MaxAmount.Add(decimal.New(1, -2))
	_, err = f.txs.Update(ctx, "u", created.ID, &domain.TransactionInput{Amount: &huge})
	require.ErrorAs(t, err, &verr)

	got, err := f.txs.Get(ctx, "u", created.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(domain.MaxAmount))
}

func TestCreate_RoundsAmountToCents(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "u", input("10.005", "income", "Gift", ""))
	assert.True(t, created.Amount.Equal(decimal.RequireFromString("10.01")), created.Amount.String())
}

func TestUpdate_OwnerIsWriteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, "alice", input("50", "expense", "Food", "2024-02-01"))

	updated, err := f.txs.Update(ctx, "alice", created.ID, &domain.TransactionInput{
		Category: strp("Dining"),
		UserID:   strp("mallory"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Dining", updated.Category)
	assert.Equal(t, "alice", updated.UserID)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(50)))

	var nf *domain.ErrNotFound
	_, err = f.txs.Update(ctx, "mallory", created.ID, &domain.TransactionInput{Category: strp("Stolen")})
	assert.ErrorAs(t, err, &nf)

	_, err = f.txs.Update(ctx, "alice", created.ID, &domain.TransactionInput{Category: strp("  ")})
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)

	_, err = f.txs.Update(ctx, "alice", "not-a-uuid", &domain.TransactionInput{Category: strp("X")})
	assert.ErrorAs(t, err, &nf)
}

func TestDelete_OwnerIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, "alice", input("50", "expense", "Food", ""))

	var nf *domain.ErrNotFound
	assert.ErrorAs(t, f.txs.Delete(ctx, "bob", created.ID), &nf)
	require.NoError(t, f.txs.Delete(ctx, "alice", created.ID))
	assert.ErrorAs(t, f.txs.Delete(ctx, "alice", created.ID), &nf)

	_, err := f.txs.Get(ctx, "alice", created.ID)
	assert.ErrorAs(t, err, &nf)

	assert.Equal(t, []string{domain.EventTransactionCreated, domain.EventTransactionDeleted}, f.events.kinds())
}

func TestCreate_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	created := f.create(t, "u", input("1", "income", "Misc", ""))
	assert.NotEmpty(t, created.ID)
}

func TestList_PaginationMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 25; i++ {
		f.create(t, "u", input(fmt.Sprint(i), "expense", "Bulk", fmt.Sprintf("2024-03-%02d", i)))
	}

	tests := []struct {
		name     string
		spec     domain.QuerySpec
		wantLen  int
		wantInfo domain.PageInfo
	}{
		{
			name:     "last partial page",
			spec:     domain.QuerySpec{Owner: "u", Page: 3, Limit: 10},
			wantLen:  5,
			wantInfo: domain.PageInfo{Total: 25, Page: 3, Limit: 10, Pages: 3, HasNextPage: false, HasPrevPage: true},
		},
		{
			name:     "page zero clamps to first",
			spec:     domain.QuerySpec{Owner: "u", Page: 0, Limit: 10},
			wantLen:  10,
			wantInfo: domain.PageInfo{Total: 25, Page: 1, Limit: 10, Pages: 3, HasNextPage: true, HasPrevPage: false},
		},
		{
			name:     "limit clamps to max",
			spec:     domain.QuerySpec{Owner: "u", Page: 1, Limit: 1000},
			wantLen:  25,
			wantInfo: domain.PageInfo{Total: 25, Page: 1, Limit: 100, Pages: 1, HasNextPage: false, HasPrevPage: false},
		},
		{
			name:     "beyond last page",
			spec:     domain.QuerySpec{Owner: "u", Page: 9, Limit: 10},
			wantLen:  0,
			wantInfo: domain.PageInfo{Total: 25, Page: 9, Limit: 10, Pages: 3, HasNextPage: false, HasPrevPage: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.txs.List(ctx, tt.spec)
			require.NoError(t, err)
			assert.Len(t, got.Data, tt.wantLen)
			assert.Equal(t, tt.wantInfo, got.Pagination)
		})
	}

	first, err := f.txs.List(ctx, domain.QuerySpec{Owner: "u", Limit: 1, SortField: "amount", SortOrder: "asc"})
	require.NoError(t, err)
	assert.True(t, first.Data[0].Amount.Equal(decimal.NewFromInt(1)))
}

func TestList_HugePageIsEmptyNotFatal(t *testing.T) {
	f := newFixture(t)
	f.create(t, "u1", input("5", "expense", "Food", "2024-01-01"))

	got, err := f.txs.List(context.Background(), domain.QuerySpec{Owner: "u1", Page: 100000000000000000, Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Equal(t, 1, got.Pagination.Total)
	assert.Positive(t, got.Pagination.Page)
	assert.False(t, got.Pagination.HasNextPage)
}

func TestList_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var iq *domain.ErrInvalidQuery
	_, err := f.txs.List(ctx, domain.QuerySpec{Owner: "u", SortField: "password"})
	assert.ErrorAs(t, err, &iq)

	_, err = f.txs.List(ctx, domain.QuerySpec{})
	assert.ErrorAs(t, err, &iq)

	var inf *domain.ErrInvalidFilter
	_, err = f.txs.List(ctx, domain.QuerySpec{Owner: "u", StartDate: "yesterday"})
	assert.ErrorAs(t, err, &inf)
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	f.create(t, "u", input("1", "expense", "Rent", ""))
	f.create(t, "u", input("1", "expense", "Food", ""))
	f.create(t, "u", input("1", "expense", "Food", ""))
	f.create(t, "other", input("1", "expense", "Secret", ""))

	cats, err := f.txs.Categories(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"Food", "Rent"}, cats)

	none, err := f.txs.Categories(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, []string{}, none)
}
