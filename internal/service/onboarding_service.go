package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/port"
	"github.com/boddenberg/finance-dashboard-api/internal/query"
	"github.com/boddenberg/finance-dashboard-api/internal/service/sampledata"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var onboardTracer = otel.Tracer("service/onboarding")

// OnboardingService loads the demo transaction set into new accounts.
type OnboardingService struct {
	users  port.UserStore
	txs    port.TransactionStore
	cache  port.Cache[any]
	logger *zap.Logger
}

// NewOnboardingService creates a new onboarding service.
func NewOnboardingService(users port.UserStore, txs port.TransactionStore, cache port.Cache[any], logger *zap.Logger) *OnboardingService {
	return &OnboardingService{users: users, txs: txs, cache: cache, logger: logger}
}

// EnsureSampleData is idempotent: a user that is already onboarded, or that
// already owns transactions, is only marked and never seeded twice.
func (s *OnboardingService) EnsureSampleData(ctx context.Context, userID string) error {
	ctx, span := onboardTracer.Start(ctx, "OnboardingService.EnsureSampleData")
	defer span.End()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	if user.Onboarded {
		return nil
	}

	existing, err := s.txs.Count(ctx, query.Predicate{Owner: userID})
	if err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	if existing > 0 {
		s.logger.Info("onboarding skipped: user already has transactions",
			zap.String("user_id", userID),
			zap.Int("transactions", existing),
		)
		return s.users.MarkOnboarded(ctx, userID)
	}

	txs, err := SampleTransactions(userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := s.txs.InsertMany(ctx, txs); err != nil {
		return fmt.Errorf("insert sample transactions: %w", err)
	}
	if s.cache != nil {
		s.cache.DeletePrefix(userID + ":")
	}
	if err := s.users.MarkOnboarded(ctx, userID); err != nil {
		return fmt.Errorf("mark onboarded: %w", err)
	}

	s.logger.Info("sample transactions created",
		zap.String("user_id", userID),
		zap.Int("transactions", len(txs)),
	)
	return nil
}

// SampleTransactions maps the embedded statement records onto owner.
func SampleTransactions(owner string, now time.Time) ([]domain.Transaction, error) {
	recs, err := sampledata.Records()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, 0, len(recs))
	for _, r := range recs {
		t := domain.Transaction{
			ID:          uuid.NewString(),
			UserID:      owner,
			Date:        r.Date.UTC(),
			Amount:      roundAmount(r.Amount.Abs()),
			Type:        domain.TypeExpense,
			Category:    r.Category,
			Description: r.Category + " transaction",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if r.Category == "Revenue" {
			t.Type = domain.TypeIncome
			t.Category = "Income"
		}
		switch r.Status {
		case "Paid":
			t.Status = domain.StatusCompleted
		case "Pending":
			t.Status = domain.StatusPending
		default:
			t.Status = domain.StatusCancelled
		}
		out = append(out, t)
	}
	return out, nil
}
