package service

import (
	"context"
	"testing"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/gateway"
	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositCreditsWallet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()

	tx, err := processor.Submit(ctx, DepositRequest{
		OwnerID: owner,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	assert.NotNil(t, tx.CompletedAt)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)), "balance = %s", balance)
}

func TestDepositReferenceReplayReturnsOriginal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	req := DepositRequest{
		OwnerID:     owner,
		Asset:       domain.AssetBTC,
		Amount:      decimal.RequireFromString("0.5"),
		ReferenceID: "chain-tx-abc",
	}

	first, err := processor.Submit(ctx, req)
	require.NoError(t, err)

	second, err := processor.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Only one credit despite two submissions.
	balance := walletBalance(t, db, &owner, domain.AssetBTC)
	assert.True(t, balance.Equal(decimal.RequireFromString("0.5")), "balance = %s", balance)
}

// racingDepositStore lets a rival delivery commit between the replay check
// and the ledger transaction, reproducing two concurrent deliveries of the
// same deposit reference.
type racingDepositStore struct {
	inner *repository.Store
	rival func()
}

func (s *racingDepositStore) Queries() *repository.Queries { return s.inner.Queries() }

func (s *racingDepositStore) RunInTx(ctx context.Context, fn func(q *repository.Queries) error) error {
	if s.rival != nil {
		rival := s.rival
		s.rival = nil
		rival()
	}
	return s.inner.RunInTx(ctx, fn)
}

func TestDepositConcurrentReferenceDelivery(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	rivalProcessor, store := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	req := DepositRequest{
		OwnerID:     owner,
		Asset:       domain.AssetUSDT,
		Amount:      decimal.NewFromInt(100),
		ReferenceID: "chain-tx-race",
	}

	// The rival wins the race just before the loser's ledger transaction.
	var rivalTx *models.Transaction
	racing := &racingDepositStore{inner: store}
	racing.rival = func() {
		tx, err := rivalProcessor.Submit(ctx, req)
		require.NoError(t, err)
		rivalTx = tx
	}
	loser := NewTransactionProcessor(racing, gateway.NewMockAddressProvider(), nil, DefaultProcessorConfig())

	tx, err := loser.Submit(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, rivalTx)
	assert.Equal(t, rivalTx.ID, tx.ID)

	// One credit despite both deliveries succeeding.
	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "balance = %s", balance)
}

func TestDepositRejectsInvalidRequests(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()

	_, err := processor.Submit(ctx, DepositRequest{OwnerID: uuid.New(), Asset: domain.AssetUSDT, Amount: decimal.Zero})
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = processor.Submit(ctx, DepositRequest{OwnerID: uuid.New(), Asset: "DOGE", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, models.ErrUnsupportedAsset)
}

func TestWithdrawLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	admin := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(1000))

	tx, err := processor.Submit(ctx, WithdrawRequest{
		OwnerID: owner,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(400),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, tx.Status)

	// Submission must not move funds.
	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)), "balance = %s", balance)

	approved, err := processor.Approve(ctx, tx.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, approved.Status)

	balance = walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(600)), "balance = %s", balance)

	// Terminal states are immutable.
	_, err = processor.Approve(ctx, tx.ID, admin)
	assert.ErrorIs(t, err, models.ErrNotPending)
	_, err = processor.Reject(ctx, tx.ID, admin, "too late")
	assert.ErrorIs(t, err, models.ErrNotPending)
}

func TestWithdrawRejectLeavesBalance(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	admin := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(1000))

	tx, err := processor.Submit(ctx, WithdrawRequest{
		OwnerID: owner,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	rejected, err := processor.Reject(ctx, tx.ID, admin, "kyc review")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusRejected, rejected.Status)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)), "balance = %s", balance)
}

func TestWithdrawValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(100))

	// Below the per-asset minimum.
	_, err := processor.Submit(ctx, WithdrawRequest{
		OwnerID: owner,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, err, models.ErrBelowWithdrawalMin)

	// More than the balance.
	_, err = processor.Submit(ctx, WithdrawRequest{
		OwnerID: owner,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(500),
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// No wallet at all.
	_, err = processor.Submit(ctx, WithdrawRequest{
		OwnerID: owner,
		Asset:   domain.AssetBTC,
		Amount:  decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, models.ErrWalletNotFound)
}

func TestApproveRevalidatesBalance(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	admin := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(1000))

	tx, err := processor.Submit(ctx, WithdrawRequest{
		OwnerID: owner,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(800),
	})
	require.NoError(t, err)

	// Funds move out between submission and approval.
	_, err = db.Exec(ctx, `UPDATE wallets SET balance = 100 WHERE owner_id = $1 AND asset = $2`, owner, domain.AssetUSDT)
	require.NoError(t, err)

	_, err = processor.Approve(ctx, tx.ID, admin)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// The withdrawal stays pending and the remaining balance is untouched.
	var status string
	require.NoError(t, db.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, tx.ID).Scan(&status))
	assert.Equal(t, domain.TxStatusPending, status)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "balance = %s", balance)
}

func TestExchangeMovesBothLegsAtomically(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetBTC, decimal.NewFromInt(2))

	tx, err := processor.Submit(ctx, ExchangeRequest{
		OwnerID:   owner,
		FromAsset: domain.AssetBTC,
		ToAsset:   domain.AssetUSDT,
		Amount:    decimal.NewFromInt(1),
		Rate:      decimal.NewFromInt(60000),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	require.NotNil(t, tx.CounterAmount)

	// 0.5% fee on the source leg: 0.005 BTC to the house, 0.995 BTC * 60000
	// credited as USDT.
	btcBalance := walletBalance(t, db, &owner, domain.AssetBTC)
	assert.True(t, btcBalance.Equal(decimal.NewFromInt(1)), "btc = %s", btcBalance)

	usdtBalance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, usdtBalance.Equal(decimal.NewFromInt(59700)), "usdt = %s", usdtBalance)

	masterBTC := walletBalance(t, db, nil, domain.AssetBTC)
	assert.True(t, masterBTC.Equal(decimal.RequireFromString("0.005")), "master btc = %s", masterBTC)
}

func TestExchangeInsufficientFundsLeavesNothingBehind(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetBTC, decimal.RequireFromString("0.1"))

	_, err := processor.Submit(ctx, ExchangeRequest{
		OwnerID:   owner,
		FromAsset: domain.AssetBTC,
		ToAsset:   domain.AssetUSDT,
		Amount:    decimal.NewFromInt(1),
		Rate:      decimal.NewFromInt(60000),
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// No destination wallet, no partial transfer, no transaction row.
	btcBalance := walletBalance(t, db, &owner, domain.AssetBTC)
	assert.True(t, btcBalance.Equal(decimal.RequireFromString("0.1")), "btc = %s", btcBalance)

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM wallets WHERE owner_id = $1 AND asset = $2`, owner, domain.AssetUSDT).Scan(&count))
	assert.Equal(t, 0, count)
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE owner_id = $1`, owner).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestExchangeRejectsSameAsset(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	_, err := processor.Submit(context.Background(), ExchangeRequest{
		OwnerID:   uuid.New(),
		FromAsset: domain.AssetUSDT,
		ToAsset:   domain.AssetUSDT,
		Amount:    decimal.NewFromInt(10),
		Rate:      decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, models.ErrSameAsset)
}

func TestInvestEscrowsPrincipal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.125"), 90)

	tx, err := processor.Submit(ctx, InvestRequest{
		OwnerID: owner,
		PlanID:  plan.ID,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	require.NotNil(t, tx.SubscriptionID)

	balance := walletBalance(t, db, &owner, domain.AssetUSDT)
	assert.True(t, balance.Equal(decimal.NewFromInt(4000)), "balance = %s", balance)

	masterBalance := walletBalance(t, db, nil, domain.AssetUSDT)
	assert.True(t, masterBalance.Equal(decimal.NewFromInt(1000)), "master = %s", masterBalance)

	// Terms captured at subscription time.
	var yieldRate decimal.Decimal
	var durationDays int
	var status string
	require.NoError(t, db.QueryRow(ctx,
		`SELECT yield_rate, duration_days, status FROM subscriptions WHERE id = $1`, *tx.SubscriptionID,
	).Scan(&yieldRate, &durationDays, &status))
	assert.True(t, yieldRate.Equal(plan.YieldRate))
	assert.Equal(t, plan.DurationDays, durationDays)
	assert.Equal(t, domain.SubscriptionStatusActive, status)
}

func TestInvestValidatesPlan(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, store := newTestProcessor(db)

	ctx := context.Background()
	owner := uuid.New()
	seedWallet(t, db, owner, domain.AssetUSDT, decimal.NewFromInt(5000))
	plan := seedPlan(t, db, decimal.RequireFromString("0.08"), 30)

	// Below the plan minimum.
	_, err := processor.Submit(ctx, InvestRequest{
		OwnerID: owner,
		PlanID:  plan.ID,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, models.ErrAmountOutOfRange)

	// Unknown plan.
	_, err = processor.Submit(ctx, InvestRequest{
		OwnerID: owner,
		PlanID:  uuid.New(),
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, models.ErrPlanNotFound)

	// Closed plan.
	_, err = store.Queries().SetPlanActive(ctx, plan.ID, false)
	require.NoError(t, err)
	_, err = processor.Submit(ctx, InvestRequest{
		OwnerID: owner,
		PlanID:  plan.ID,
		Asset:   domain.AssetUSDT,
		Amount:  decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, models.ErrPlanInactive)
}
