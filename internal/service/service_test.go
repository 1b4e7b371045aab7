package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/cache"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/memstore"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TransactionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

// --- Fixture ---

type fixture struct {
	store      *memstore.Store
	cache      *cache.InMemory[any]
	metrics    *observability.Metrics
	events     *recordingPublisher
	txs        *service.TransactionService
	dashboard  *service.DashboardService
	export     *service.ExportService
	onboarding *service.OnboardingService
	auth       *service.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		cache:   cache.New[any](time.Minute),
		metrics: observability.NewMetrics(),
		events:  &recordingPublisher{},
	}
	t.Cleanup(f.cache.Close)

	logger := zap.NewNop()
	f.txs = service.NewTransactionService(f.store, f.events, f.cache, logger)
	f.dashboard = service.NewDashboardService(f.store, f.cache, f.metrics, logger)
	f.export = service.NewExportService(f.store, f.metrics, logger)
	f.onboarding = service.NewOnboardingService(f.store, f.store, f.cache, logger)
	f.auth = service.NewAuthService(f.store, f.onboarding, "test-secret", time.Hour, f.metrics, logger)
	return f
}

func strp(s string) *string { return &s }

func input(amount, typ, category, date string) *domain.TransactionInput {
	amt := decimal.RequireFromString(amount)
	in := &domain.TransactionInput{Amount: &amt, Type: strp(typ), Category: strp(category)}
	if date != "" {
		in.Date = strp(date)
	}
	return in
}

func (f *fixture) create(t *testing.T, owner string, in *domain.TransactionInput) *domain.Transaction {
	t.Helper()
	tx, err := f.txs.Create(context.Background(), owner, in)
	require.NoError(t, err)
	return tx
}
