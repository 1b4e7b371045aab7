package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/port"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var dashTracer = otel.Tracer("service/dashboard")

const dashboardCache = "dashboard"

var hundred = decimal.NewFromInt(100)

// DashboardService computes per-owner aggregates for the dashboard charts.
type DashboardService struct {
	store   port.TransactionStore
	cache   port.Cache[any]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDashboardService creates a new dashboard service. cache may be shared
// with TransactionService, which invalidates it on writes.
func NewDashboardService(store port.TransactionStore, cache port.Cache[any], metrics *observability.Metrics, logger *zap.Logger) *DashboardService {
	return &DashboardService{store: store, cache: cache, metrics: metrics, logger: logger}
}

// ============================================================
// Summary - GET /api/dashboard/summary
// ============================================================

func (s *DashboardService) Summary(ctx context.Context, owner string) (*domain.Summary, error) {
	ctx, span := dashTracer.Start(ctx, "DashboardService.Summary")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", owner))

	key := owner + ":summary"
	gen := s.cache.Generation(owner + ":")
	if cached, ok := s.cached(key); ok {
		return cached.(*domain.Summary), nil
	}

	pred, err := query.Build(domain.QuerySpec{Owner: owner})
	if err != nil {
		return nil, err
	}
	pending := pred
	pending.Status = domain.StatusPending

	var (
		byType       []query.GroupRow
		total, npend int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byType, err = s.store.Group(gctx, pred, []query.GroupKey{query.KeyType})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, pred)
		return err
	})
	g.Go(func() error {
		var err error
		npend, err = s.store.Count(gctx, pending)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard summary: %w", err)
	}

	sum := &domain.Summary{
		TotalRevenue:        decimal.Zero,
		TotalExpenses:       decimal.Zero,
		TotalTransactions:   total,
		PendingTransactions: npend,
	}
	for _, row := range byType {
		switch row.Type {
		case domain.TypeIncome:
			sum.TotalRevenue = row.Total
		case domain.TypeExpense:
			sum.TotalExpenses = row.Total
		}
	}
	sum.NetBalance = sum.TotalRevenue.Sub(sum.TotalExpenses)

	s.remember(key, owner, gen, sum)
	return sum, nil
}

// ============================================================
// Monthly series - GET /api/dashboard/charts/revenue-expense
// ============================================================

// MonthlySeries returns one point per calendar month that has at least one
// transaction, oldest first.
func (s *DashboardService) MonthlySeries(ctx context.Context, owner string) ([]domain.MonthlyPoint, error) {
	ctx, span := dashTracer.Start(ctx, "DashboardService.MonthlySeries")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", owner))

	key := owner + ":monthly"
	gen := s.cache.Generation(owner + ":")
	if cached, ok := s.cached(key); ok {
		return cached.([]domain.MonthlyPoint), nil
	}

	pred, err := query.Build(domain.QuerySpec{Owner: owner})
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Group(ctx, pred, []query.GroupKey{query.KeyYear, query.KeyMonth, query.KeyType})
	if err != nil {
		return nil, fmt.Errorf("monthly series: %w", err)
	}

	series := pivotMonthly(rows)
	s.remember(key, owner, gen, series)
	return series, nil
}

type yearMonth struct {
	year  int
	month int
}

func pivotMonthly(rows []query.GroupRow) []domain.MonthlyPoint {
	points := make(map[yearMonth]*domain.MonthlyPoint)
	order := make([]yearMonth, 0)

	for _, row := range rows {
		ym := yearMonth{row.Year, row.Month}
		p, ok := points[ym]
		if !ok {
			p = &domain.MonthlyPoint{
				Month:   monthLabel(row.Year, row.Month),
				Income:  decimal.Zero,
				Expense: decimal.Zero,
			}
			points[ym] = p
			order = append(order, ym)
		}
		switch row.Type {
		case domain.TypeIncome:
			p.Income = p.Income.Add(row.Total)
		case domain.TypeExpense:
			p.Expense = p.Expense.Add(row.Total)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].year != order[j].year {
			return order[i].year < order[j].year
		}
		return order[i].month < order[j].month
	})

	out := make([]domain.MonthlyPoint, 0, len(order))
	for _, ym := range order {
		out = append(out, *points[ym])
	}
	return out
}

// monthLabel renders "Jan 2024".
func monthLabel(year, month int) string {
	return fmt.Sprintf("%s %04d", time.Month(month).String()[:3], year)
}

// ============================================================
// Category breakdown - GET /api/dashboard/charts/category-breakdown
// ============================================================

// CategoryBreakdown sums amounts per category under the optional filter,
// largest first. Percentages are of the grand total, half-up to 2 places.
func (s *DashboardService) CategoryBreakdown(ctx context.Context, owner string, f domain.BreakdownFilter) ([]domain.CategoryShare, error) {
	ctx, span := dashTracer.Start(ctx, "DashboardService.CategoryBreakdown")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", owner),
		attribute.String("filter.type", f.Type),
	)

	pred, err := query.Build(domain.QuerySpec{
		Owner:     owner,
		Type:      f.Type,
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
	})
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:breakdown:%s:%s:%s", owner, pred.Type, f.StartDate, f.EndDate)
	gen := s.cache.Generation(owner + ":")
	if cached, ok := s.cached(key); ok {
		return cached.([]domain.CategoryShare), nil
	}

	rows, err := s.store.Group(ctx, pred, []query.GroupKey{query.KeyCategory})
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}

	shares := breakdown(rows)
	s.remember(key, owner, gen, shares)
	return shares, nil
}

func breakdown(rows []query.GroupRow) []domain.CategoryShare {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Total)
	}
	if total.IsZero() {
		return []domain.CategoryShare{}
	}

	out := make([]domain.CategoryShare, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.CategoryShare{
			Category:   row.Category,
			Amount:     row.Total,
			Percentage: roundAmount(row.Total.Mul(hundred).Div(total)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (s *DashboardService) cached(key string) (any, bool) {
	v, ok := s.cache.Get(key)
	if ok {
		s.metrics.IncrCacheHit(dashboardCache)
		s.logger.Debug("dashboard cache hit", zap.String("key", key))
		return v, true
	}
	s.metrics.IncrCacheMiss(dashboardCache)
	return nil, false
}

// remember caches v unless a write for owner invalidated the cache after
// gen was read, in which case v may predate that write.
func (s *DashboardService) remember(key, owner string, gen uint64, v any) {
	if !s.cache.SetIfGeneration(key, owner+":", gen, v) {
		s.logger.Debug("dashboard result not cached: invalidated during read", zap.String("key", key))
	}
}
