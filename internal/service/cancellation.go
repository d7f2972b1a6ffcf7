package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CancellationConfig tunes early-exit penalties.
type CancellationConfig struct {
	// PenaltyRate applies to the principal when the owner cancels within the
	// grace window.
	PenaltyRate decimal.Decimal
	// GracePeriod measures the window from subscription start during which
	// the penalty applies. Cancelling after it refunds the full principal.
	GracePeriod time.Duration
}

func DefaultCancellationConfig() CancellationConfig {
	return CancellationConfig{
		PenaltyRate: decimal.NewFromFloat(0.10),
		GracePeriod: 30 * 24 * time.Hour,
	}
}

// CancellationService handles owner-initiated early exits from active
// subscriptions.
type CancellationService struct {
	store     QueryStore
	processor *TransactionProcessor
	notifier  Notifier
	cfg       CancellationConfig

	now func() time.Time
}

func NewCancellationService(store QueryStore, processor *TransactionProcessor, notifier Notifier, cfg CancellationConfig) *CancellationService {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &CancellationService{
		store:     store,
		processor: processor,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CancellationResult reports the split applied to the principal. Refund plus
// penalty always equals the principal; accrued earnings already paid out are
// kept by the owner.
type CancellationResult struct {
	Subscription *models.Subscription
	Refund       decimal.Decimal
	Penalty      decimal.Decimal
}

// Cancel closes an active subscription before maturity, refunding the
// principal to the owner's settlement wallet minus the grace-window penalty.
func (s *CancellationService) Cancel(ctx context.Context, ownerID, subscriptionID uuid.UUID) (*CancellationResult, error) {
	var result CancellationResult
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		sub, err := q.GetSubscriptionForUpdate(ctx, subscriptionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrSubscriptionNotFound
			}
			return fmt.Errorf("lock subscription: %w", err)
		}
		if sub.OwnerID != ownerID {
			return models.ErrNotSubscriptionOwner
		}
		if sub.Status != domain.SubscriptionStatusActive {
			return models.ErrSubscriptionNotActive
		}

		now := s.now()
		settlement := s.processor.SettlementAsset()
		penaltyRate := decimal.Zero
		if now.Before(sub.StartAt.Add(s.cfg.GracePeriod)) {
			penaltyRate = s.cfg.PenaltyRate
		}
		refund, penalty := domain.SplitCancellation(sub.Principal, penaltyRate, settlement)

		creditNote := "principal refunded on cancellation"
		var fee *decimal.Decimal
		if penalty.IsPositive() {
			p := penalty
			fee = &p
			creditNote = "principal refunded on early cancellation"
		}
		if _, err := s.processor.creditSettlementTx(ctx, q, settlementCredit{
			OwnerID:        sub.OwnerID,
			Amount:         refund,
			SubscriptionID: sub.ID,
			Note:           creditNote,
			FeeAmount:      fee,
			Action:         "cancellation_settled",
		}); err != nil {
			return err
		}

		rows, err := q.CloseSubscription(ctx, sub.ID, domain.SubscriptionStatusCancelled)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "close cancelled subscription"); err != nil {
			return err
		}
		if err := s.processor.audit.Write(ctx, q, "subscription", sub.ID, &ownerID, "subscription_cancelled",
			domain.SubscriptionStatusActive, domain.SubscriptionStatusCancelled, nil); err != nil {
			return err
		}

		sub.Status = domain.SubscriptionStatusCancelled
		result = CancellationResult{Subscription: sub, Refund: refund, Penalty: penalty}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SubscriptionCancelled(ctx, result.Subscription, result.Penalty.String())
	zap.L().Info("subscription cancelled",
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("refund", result.Refund.String()),
		zap.String("penalty", result.Penalty.String()),
	)
	return &result, nil
}
