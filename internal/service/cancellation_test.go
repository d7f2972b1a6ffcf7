package service

import (
	"context"
	"testing"
	"time"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCancellation(processor *TransactionProcessor, store QueryStore) *CancellationService {
	return NewCancellationService(store, processor, nil, DefaultCancellationConfig())
}

func TestCancelWithinGraceAppliesPenalty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	cancellation := newTestCancellation(processor, store)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.08"), 90)
	subID := investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(1000))

	result, err := cancellation.Cancel(ctx, owner, subID)
	require.NoError(t, err)

	assert.True(t, result.Penalty.Equal(decimal.NewFromInt(100)), "penalty = %s", result.Penalty)
	assert.True(t, result.Refund.Equal(decimal.NewFromInt(900)), "refund = %s", result.Refund)
	assert.True(t, result.Refund.Add(result.Penalty).Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, domain.SubscriptionStatusCancelled, result.Subscription.Status)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(4900)), "balance = %s", balance)

	var status string
	require.NoError(t, db.QueryRow(ctx, `SELECT status FROM subscriptions WHERE id = $1`, subID).Scan(&status))
	assert.Equal(t, domain.SubscriptionStatusCancelled, status)
}

func TestCancelAfterGraceRefundsInFull(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	cancellation := newTestCancellation(processor, store)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.08"), 180)
	subID := investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(1000))

	// Start the subscription well past the 30-day grace window.
	backdateSubscription(t, db, subID, 45*24*time.Hour, -135*24*time.Hour)

	result, err := cancellation.Cancel(ctx, owner, subID)
	require.NoError(t, err)
	assert.True(t, result.Penalty.IsZero(), "penalty = %s", result.Penalty)
	assert.True(t, result.Refund.Equal(decimal.NewFromInt(1000)), "refund = %s", result.Refund)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(5000)), "balance = %s", balance)
}

func TestCancelPenaltySplitIsExact(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	cancellation := newTestCancellation(processor, store)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.08"), 90)

	// A principal whose 10% penalty does not land on the asset precision.
	principal := decimal.RequireFromString("333.3333333")
	subID := investSubscription(t, processor, owner, plan.ID, principal)

	result, err := cancellation.Cancel(ctx, owner, subID)
	require.NoError(t, err)
	assert.True(t, result.Refund.Add(result.Penalty).Equal(principal),
		"refund %s + penalty %s != principal %s", result.Refund, result.Penalty, principal)
}

func TestCancelRejectsWrongOwnerAndClosedSubscriptions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	cancellation := newTestCancellation(processor, store)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.08"), 90)
	subID := investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(1000))

	_, err := cancellation.Cancel(ctx, uuid.New(), subID)
	assert.ErrorIs(t, err, models.ErrNotSubscriptionOwner)

	_, err = cancellation.Cancel(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, models.ErrSubscriptionNotFound)

	_, err = cancellation.Cancel(ctx, owner, subID)
	require.NoError(t, err)

	_, err = cancellation.Cancel(ctx, owner, subID)
	assert.ErrorIs(t, err, models.ErrSubscriptionNotActive)

	// The failed attempts did not move funds; only the one refund did.
	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(4900)), "balance = %s", balance)
}
