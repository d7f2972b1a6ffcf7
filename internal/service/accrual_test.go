package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deniedLock struct{}

func (deniedLock) Acquire(ctx context.Context) (bool, error) { return false, nil }
func (deniedLock) Release(ctx context.Context) error         { return nil }

func investSubscription(t *testing.T, p *TransactionProcessor, owner uuid.UUID, planID uuid.UUID, amount decimal.Decimal) uuid.UUID {
	t.Helper()

	tx, err := p.Submit(context.Background(), InvestRequest{
		OwnerID: owner,
		PlanID:  planID,
		Asset:   domain.AssetUSDT,
		Amount:  amount,
	})
	require.NoError(t, err)
	require.NotNil(t, tx.SubscriptionID)
	return *tx.SubscriptionID
}

func TestSweepAccruesOncePerPeriod(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	accrual := NewAccrualService(store, processor, nil, nil, DefaultAccrualConfig())

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	// 36.5% annualized on 1000 is exactly 1 per day.
	plan := seedPlan(t, db, decimal.RequireFromString("0.365"), 90)
	subID := investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(1000))

	result, err := accrual.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accrued)
	assert.Equal(t, 0, result.Failed)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(4001)), "balance = %s", balance)

	var earned decimal.Decimal
	var lastAccruedAt *time.Time
	require.NoError(t, db.QueryRow(ctx,
		`SELECT earned, last_accrued_at FROM subscriptions WHERE id = $1`, subID,
	).Scan(&earned, &lastAccruedAt))
	assert.True(t, earned.Equal(decimal.NewFromInt(1)), "earned = %s", earned)
	require.NotNil(t, lastAccruedAt)

	// Re-running inside the same period settles nothing.
	result, err = accrual.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Accrued)

	balance = walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(4001)), "balance = %s", balance)
}

func TestSweepAccruesAgainAfterPeriodElapses(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	accrual := NewAccrualService(store, processor, nil, nil, DefaultAccrualConfig())

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.365"), 90)
	subID := investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(1000))

	_, err := accrual.RunSweep(ctx)
	require.NoError(t, err)

	// Advance the clock one period; the marker is now past the cutoff again.
	accrual.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	result, err := accrual.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accrued)

	var earned decimal.Decimal
	require.NoError(t, db.QueryRow(ctx, `SELECT earned FROM subscriptions WHERE id = $1`, subID).Scan(&earned))
	assert.True(t, earned.Equal(decimal.NewFromInt(2)), "earned = %s", earned)
}

func TestSweepSettlesMaturity(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	accrual := NewAccrualService(store, processor, nil, nil, DefaultAccrualConfig())

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.365"), 30)
	subID := investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(1000))

	// Push the whole term into the past.
	backdateSubscription(t, db, subID, 31*24*time.Hour, 24*time.Hour)

	result, err := accrual.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matured)
	assert.Equal(t, 0, result.Accrued)

	// Final period's yield plus the principal came back.
	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(5001)), "balance = %s", balance)

	var status string
	require.NoError(t, db.QueryRow(ctx, `SELECT status FROM subscriptions WHERE id = $1`, subID).Scan(&status))
	assert.Equal(t, domain.SubscriptionStatusCompleted, status)

	// A matured subscription never shows up in a later sweep.
	result, err = accrual.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matured)
	assert.Equal(t, 0, result.Accrued)
}

// failingTxStore serves reads from the real store but fails every settlement
// transaction, mimicking a degraded database during a sweep.
type failingTxStore struct {
	inner    *repository.Store
	attempts int
}

func (s *failingTxStore) Queries() *repository.Queries { return s.inner.Queries() }

func (s *failingTxStore) RunInTx(ctx context.Context, fn func(q *repository.Queries) error) error {
	s.attempts++
	return errors.New("store unavailable")
}

func TestSweepVisitsFailingSubscriptionsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.365"), 90)
	for i := 0; i < 3; i++ {
		investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(100))
	}

	// Every subscription in the batch fails and no marker advances. The
	// sweep must still terminate after one attempt per subscription; the
	// failures wait for the next scheduled sweep.
	failing := &failingTxStore{inner: store}
	accrual := NewAccrualService(failing, processor, nil, nil, AccrualConfig{
		Period:    24 * time.Hour,
		BatchSize: 3,
	})

	result, err := accrual.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 3, failing.attempts)
}

func TestSweepSkipsWhenLeaseHeld(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)
	accrual := NewAccrualService(store, processor, nil, deniedLock{}, DefaultAccrualConfig())

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.365"), 90)
	investSubscription(t, processor, owner, plan.ID, decimal.NewFromInt(1000))

	result, err := accrual.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(4000)), "balance = %s", balance)
}
