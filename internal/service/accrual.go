package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/observability"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/davidocha/coinvault/internal/sweeplock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// AccrualConfig tunes the daily sweep.
type AccrualConfig struct {
	// Period is the minimum gap between two accruals of the same
	// subscription. Production runs with 24h.
	Period time.Duration
	// BatchSize caps how many due subscriptions one pass loads.
	BatchSize int32
}

func DefaultAccrualConfig() AccrualConfig {
	return AccrualConfig{
		Period:    24 * time.Hour,
		BatchSize: 200,
	}
}

// AccrualService runs the periodic earnings sweep over active subscriptions.
// Each subscription is settled in its own database transaction: the earnings
// credit and the advance of the last-accrual marker commit together, and the
// marker guard makes a repeated sweep for the same period a no-op.
type AccrualService struct {
	store     QueryStore
	processor *TransactionProcessor
	notifier  Notifier
	lock      sweeplock.Locker
	cfg       AccrualConfig

	now func() time.Time
}

func NewAccrualService(store QueryStore, processor *TransactionProcessor, notifier Notifier, lock sweeplock.Locker, cfg AccrualConfig) *AccrualService {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	if lock == nil {
		lock = sweeplock.NoopLock{}
	}
	if cfg.Period <= 0 {
		cfg.Period = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &AccrualService{
		store:     store,
		processor: processor,
		notifier:  notifier,
		lock:      lock,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Accrued int
	Matured int
	Skipped int
	Failed  int
}

// RunSweep accrues earnings for every due subscription and settles matured
// ones. A failure on one subscription is logged and does not stop the sweep.
func (s *AccrualService) RunSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		observability.IncrementSweepSkipped()
		zap.L().Debug("accrual sweep skipped: lease held elsewhere")
		return result, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			zap.L().Warn("release sweep lease failed", zap.Error(err))
		}
	}()

	now := s.now()
	cutoff := now.Add(-s.cfg.Period)

	// Batches walk forward by id so each subscription is visited at most
	// once per sweep; a failed one keeps its marker and is retried on the
	// next scheduled sweep, not within this one.
	var afterID uuid.UUID
	for {
		ids, err := s.store.Queries().ListDueSubscriptionIDs(ctx, cutoff, afterID, s.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list due subscriptions: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		for _, id := range ids {
			outcome, err := s.accrueOne(ctx, id, now, cutoff)
			switch {
			case err != nil:
				result.Failed++
				observability.IncrementAccrual("failed")
				zap.L().Error("subscription accrual failed",
					zap.Error(err),
					zap.String("subscription_id", id.String()),
				)
			case outcome.skipped:
				result.Skipped++
				observability.IncrementAccrual("skipped")
			case outcome.matured:
				result.Matured++
				observability.IncrementAccrual("matured")
				s.notifier.SubscriptionMatured(ctx, outcome.sub)
			default:
				result.Accrued++
				observability.IncrementAccrual("accrued")
			}
		}

		if int32(len(ids)) < s.cfg.BatchSize {
			break
		}
	}

	zap.L().Info("accrual sweep finished",
		zap.Int("accrued", result.Accrued),
		zap.Int("matured", result.Matured),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

type accrualOutcome struct {
	skipped bool
	matured bool
	sub     *models.Subscription
}

// accrueOne settles one subscription for the current period inside a single
// database transaction. The guarded marker update decides whether the credit
// happens at all; any crash before commit leaves both untouched.
func (s *AccrualService) accrueOne(ctx context.Context, id uuid.UUID, now, cutoff time.Time) (accrualOutcome, error) {
	var outcome accrualOutcome
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		sub, err := q.GetSubscriptionForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrSubscriptionNotFound
			}
			return fmt.Errorf("lock subscription: %w", err)
		}
		if sub.Status != domain.SubscriptionStatusActive {
			outcome.skipped = true
			return nil
		}

		settlement := s.processor.SettlementAsset()
		earnings := domain.RoundForAsset(domain.DailyEarnings(sub.Principal, sub.YieldRate), settlement)

		rows, err := q.RecordSubscriptionAccrual(ctx, sub.ID, earnings, now, cutoff)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Another sweep already settled this period.
			outcome.skipped = true
			return nil
		}

		if earnings.IsPositive() {
			if _, err := s.processor.creditSettlementTx(ctx, q, settlementCredit{
				OwnerID:        sub.OwnerID,
				Amount:         earnings,
				SubscriptionID: sub.ID,
				Note:           "daily yield",
				Action:         "accrual_credited",
			}); err != nil {
				return err
			}
		}
		sub.Earned = sub.Earned.Add(earnings)
		sub.LastAccruedAt = &now

		if !now.Before(sub.EndAt) {
			return s.matureTx(ctx, q, sub, &outcome)
		}
		outcome.sub = sub
		return nil
	})
	return outcome, err
}

// matureTx returns the principal to the owner's settlement wallet and closes
// the subscription, inside the same transaction as the final accrual.
func (s *AccrualService) matureTx(ctx context.Context, q *repository.Queries, sub *models.Subscription, outcome *accrualOutcome) error {
	if _, err := s.processor.creditSettlementTx(ctx, q, settlementCredit{
		OwnerID:        sub.OwnerID,
		Amount:         sub.Principal,
		SubscriptionID: sub.ID,
		Note:           "principal returned at maturity",
		Action:         "maturity_settled",
	}); err != nil {
		return err
	}

	rows, err := q.CloseSubscription(ctx, sub.ID, domain.SubscriptionStatusCompleted)
	if err != nil {
		return err
	}
	if err := requireExactlyOne(rows, "close matured subscription"); err != nil {
		return err
	}
	if err := s.processor.audit.Write(ctx, q, "subscription", sub.ID, nil, "subscription_matured",
		domain.SubscriptionStatusActive, domain.SubscriptionStatusCompleted, nil); err != nil {
		return err
	}

	sub.Status = domain.SubscriptionStatusCompleted
	outcome.matured = true
	outcome.sub = sub
	return nil
}
