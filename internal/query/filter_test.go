package query_test

import (
	"math"
	"testing"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func tx(owner string, date string, amount string, typ domain.TransactionType, category, description string, status domain.TransactionStatus) domain.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	return domain.Transaction{
		ID:          owner + "-" + date + "-" + category,
		UserID:      owner,
		Date:        d,
		Amount:      decimal.RequireFromString(amount),
		Type:        typ,
		Category:    category,
		Description: description,
		Status:      status,
	}
}

func TestBuild_RequiresOwner(t *testing.T) {
	_, err := query.Build(domain.QuerySpec{Owner: "  "})

	var invalid *domain.ErrInvalidQuery
	require.ErrorAs(t, err, &invalid)
}

func TestBuild_InvalidInputs(t *testing.T) {
	tests := []struct {
		name  string
		spec  domain.QuerySpec
		field string
	}{
		{"bad start date", domain.QuerySpec{Owner: "u1", StartDate: "08/01/2024"}, "startDate"},
		{"bad end date", domain.QuerySpec{Owner: "u1", EndDate: "tomorrow"}, "endDate"},
		{"NaN min amount", domain.QuerySpec{Owner: "u1", MinAmount: ptr(math.NaN())}, "minAmount"},
		{"NaN max amount", domain.QuerySpec{Owner: "u1", MaxAmount: ptr(math.NaN())}, "maxAmount"},
		{"min amount beyond range", domain.QuerySpec{Owner: "u1", MinAmount: ptr(1e17)}, "minAmount"},
		{"max amount beyond range", domain.QuerySpec{Owner: "u1", MaxAmount: ptr(-1.8446744073709552e17)}, "maxAmount"},
		{"unknown type", domain.QuerySpec{Owner: "u1", Type: "transfer"}, "type"},
		{"unknown status", domain.QuerySpec{Owner: "u1", Status: "void"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := query.Build(tt.spec)

			var invalid *domain.ErrInvalidFilter
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestBuild_BlankSearchIsAbsent(t *testing.T) {
	p, err := query.Build(domain.QuerySpec{Owner: "u1", Search: "   \t"})
	require.NoError(t, err)
	assert.Nil(t, p.Search)
}

func TestBuild_DateOnlyEndIsInclusive(t *testing.T) {
	p, err := query.Build(domain.QuerySpec{Owner: "u1", StartDate: "2024-01-08", EndDate: "2024-01-08"})
	require.NoError(t, err)

	late := tx("u1", "2024-01-08", "10", domain.TypeExpense, "Food", "", domain.StatusCompleted)
	late.Date = late.Date.Add(23 * time.Hour)
	next := tx("u1", "2024-01-09", "10", domain.TypeExpense, "Food", "", domain.StatusCompleted)

	assert.True(t, p.Match(&late))
	assert.False(t, p.Match(&next))
}

func TestPredicate_Match(t *testing.T) {
	groceries := tx("u1", "2024-01-08", "100", domain.TypeExpense, "Groceries", "Weekly shop", domain.StatusCompleted)
	salary := tx("u1", "2024-01-01", "3500", domain.TypeIncome, "Salary", "January pay", domain.StatusPending)
	foreign := tx("u2", "2024-01-08", "100", domain.TypeExpense, "Groceries", "Weekly shop", domain.StatusCompleted)

	tests := []struct {
		name string
		spec domain.QuerySpec
		want map[string]bool
	}{
		{
			name: "owner only",
			spec: domain.QuerySpec{Owner: "u1"},
			want: map[string]bool{groceries.ID: true, salary.ID: true, foreign.ID: false},
		},
		{
			name: "category exact",
			spec: domain.QuerySpec{Owner: "u1", Category: "Groceries"},
			want: map[string]bool{groceries.ID: true, salary.ID: false},
		},
		{
			name: "amount range inclusive",
			spec: domain.QuerySpec{Owner: "u1", MinAmount: ptr(100.0), MaxAmount: ptr(100.0)},
			want: map[string]bool{groceries.ID: true, salary.ID: false},
		},
		{
			name: "search description case-insensitive",
			spec: domain.QuerySpec{Owner: "u1", Search: "WEEKLY"},
			want: map[string]bool{groceries.ID: true, salary.ID: false},
		},
		{
			name: "search status substring",
			spec: domain.QuerySpec{Owner: "u1", Search: "pend"},
			want: map[string]bool{groceries.ID: false, salary.ID: true},
		},
		{
			name: "search numeric equals amount",
			spec: domain.QuerySpec{Owner: "u1", Search: "3500.00"},
			want: map[string]bool{groceries.ID: false, salary.ID: true},
		},
		{
			name: "search ANDed with type",
			spec: domain.QuerySpec{Owner: "u1", Search: "a", Type: "income"},
			want: map[string]bool{groceries.ID: false, salary.ID: true},
		},
		{
			name: "date range",
			spec: domain.QuerySpec{Owner: "u1", StartDate: "2024-01-02"},
			want: map[string]bool{groceries.ID: true, salary.ID: false},
		},
	}

	all := map[string]*domain.Transaction{groceries.ID: &groceries, salary.ID: &salary, foreign.ID: &foreign}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := query.Build(tt.spec)
			require.NoError(t, err)
			for id, want := range tt.want {
				assert.Equal(t, want, p.Match(all[id]), id)
			}
		})
	}
}
