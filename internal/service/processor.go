package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/gateway"
	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/observability"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProcessorConfig carries the tunable business parameters of the ledger.
// The values are configuration inputs, not invariants; defaults match the
// production policy.
type ProcessorConfig struct {
	SettlementAsset    string
	ExchangeFeeRate    decimal.Decimal
	WithdrawalMinimums map[string]decimal.Decimal
}

// DefaultProcessorConfig returns the observed production defaults: USDT
// settlement, 0.5% exchange fee, smaller floors for stable assets and larger
// floors for high-unit-value assets.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SettlementAsset: domain.AssetUSDT,
		ExchangeFeeRate: decimal.NewFromFloat(0.005),
		WithdrawalMinimums: map[string]decimal.Decimal{
			domain.AssetBTC:  decimal.NewFromFloat(0.001),
			domain.AssetETH:  decimal.NewFromFloat(0.01),
			domain.AssetUSDT: decimal.NewFromInt(10),
			domain.AssetUSDC: decimal.NewFromInt(10),
		},
	}
}

// TransactionProcessor owns balance mutation and the transaction lifecycle.
// It is the only writer to the wallet store besides the accrual engine, which
// itself writes through the processor's settlement path.
type TransactionProcessor struct {
	store     QueryStore
	addresses gateway.AddressProvider
	audit     *AuditService
	notifier  Notifier
	cfg       ProcessorConfig
}

func NewTransactionProcessor(store QueryStore, addresses gateway.AddressProvider, notifier Notifier, cfg ProcessorConfig) *TransactionProcessor {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	if cfg.SettlementAsset == "" {
		cfg.SettlementAsset = domain.AssetUSDT
	}
	return &TransactionProcessor{
		store:     store,
		addresses: addresses,
		audit:     NewAuditService(store),
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Request is one typed transaction submission. Each kind carries its own
// fields and validation rules.
type Request interface {
	Kind() string
	Validate() error
}

// DepositRequest credits external funds already verified by the custody
// collaborator.
type DepositRequest struct {
	OwnerID     uuid.UUID
	Asset       string
	Amount      decimal.Decimal
	Note        string
	ReferenceID string
}

func (r DepositRequest) Kind() string { return domain.TxKindDeposit }

func (r DepositRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if !domain.IsSupportedAsset(r.Asset) {
		return models.ErrUnsupportedAsset
	}
	return nil
}

// WithdrawRequest asks to move funds out. Submission never moves the
// balance; an admin decision does.
type WithdrawRequest struct {
	OwnerID     uuid.UUID
	Asset       string
	Amount      decimal.Decimal
	Destination string
	Note        string
}

func (r WithdrawRequest) Kind() string { return domain.TxKindWithdraw }

func (r WithdrawRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if !domain.IsSupportedAsset(r.Asset) {
		return models.ErrUnsupportedAsset
	}
	return nil
}

// ExchangeRequest converts between two assets at a caller-supplied rate
// (destination units per source unit).
type ExchangeRequest struct {
	OwnerID   uuid.UUID
	FromAsset string
	ToAsset   string
	Amount    decimal.Decimal
	Rate      decimal.Decimal
}

func (r ExchangeRequest) Kind() string { return domain.TxKindExchange }

func (r ExchangeRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if !domain.IsSupportedAsset(r.FromAsset) || !domain.IsSupportedAsset(r.ToAsset) {
		return models.ErrUnsupportedAsset
	}
	if r.FromAsset == r.ToAsset {
		return models.ErrSameAsset
	}
	if !r.Rate.IsPositive() {
		return fmt.Errorf("%w: conversion rate must be positive", models.ErrInvalidAmount)
	}
	return nil
}

// InvestRequest subscribes a principal to a yield plan.
type InvestRequest struct {
	OwnerID uuid.UUID
	PlanID  uuid.UUID
	Asset   string
	Amount  decimal.Decimal
}

func (r InvestRequest) Kind() string { return domain.TxKindInvest }

func (r InvestRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if !domain.IsSupportedAsset(r.Asset) {
		return models.ErrUnsupportedAsset
	}
	if r.PlanID == uuid.Nil {
		return models.ErrPlanNotFound
	}
	return nil
}

// Submit validates the request and executes the transaction for its kind.
// Validation happens before any mutation; a validation failure leaves every
// store untouched.
func (p *TransactionProcessor) Submit(ctx context.Context, req Request) (*models.Transaction, error) {
	if err := req.Validate(); err != nil {
		observability.IncrementTransaction(req.Kind(), "rejected_validation")
		return nil, err
	}

	var (
		tx  *models.Transaction
		err error
	)
	switch r := req.(type) {
	case DepositRequest:
		tx, err = p.submitDeposit(ctx, r)
	case WithdrawRequest:
		tx, err = p.submitWithdraw(ctx, r)
	case ExchangeRequest:
		tx, err = p.submitExchange(ctx, r)
	case InvestRequest:
		tx, err = p.submitInvest(ctx, r)
	default:
		return nil, fmt.Errorf("unknown request kind: %s", req.Kind())
	}

	if err != nil {
		observability.IncrementTransaction(req.Kind(), "failed")
		return nil, err
	}
	observability.IncrementTransaction(req.Kind(), "accepted")
	return tx, nil
}

func (p *TransactionProcessor) submitDeposit(ctx context.Context, req DepositRequest) (*models.Transaction, error) {
	if req.ReferenceID != "" {
		existing, err := p.depositByReference(ctx, req)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	var tx *models.Transaction
	err := p.store.RunInTx(ctx, func(q *repository.Queries) error {
		wallet, err := p.walletForUpdate(ctx, q, &req.OwnerID, req.Asset, true)
		if err != nil {
			return err
		}
		if _, err := q.AdjustWalletBalance(ctx, wallet.ID, req.Amount); err != nil {
			return fmt.Errorf("credit deposit: %w", err)
		}

		tx = &models.Transaction{
			ID:      uuid.New(),
			OwnerID: req.OwnerID,
			Kind:    domain.TxKindDeposit,
			Asset:   req.Asset,
			Amount:  req.Amount,
			Status:  domain.TxStatusCompleted,
			Note:    req.Note,
		}
		if req.ReferenceID != "" {
			ref := req.ReferenceID
			tx.ReferenceID = &ref
		}
		now := time.Now()
		tx.CompletedAt = &now
		if err := q.CreateTransaction(ctx, tx); err != nil {
			return err
		}
		return p.audit.Write(ctx, q, "transaction", tx.ID, nil, "deposit_completed", "", domain.TxStatusCompleted, nil)
	})
	if err != nil {
		// A concurrent delivery of the same reference may land between the
		// replay check and the insert. The loser's unique violation is the
		// winner's transaction: hand it back instead of failing the retry.
		if req.ReferenceID != "" && isUniqueViolation(err) {
			existing, lookupErr := p.depositByReference(ctx, req)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	p.notifier.TransactionCompleted(ctx, tx)
	return tx, nil
}

// depositByReference resolves an already-recorded deposit for a reference.
// nil without error means the reference is unused.
func (p *TransactionProcessor) depositByReference(ctx context.Context, req DepositRequest) (*models.Transaction, error) {
	existing, err := p.store.Queries().GetTransactionByReference(ctx, req.ReferenceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("check deposit reference: %w", err)
	}
	if existing.Kind != domain.TxKindDeposit || !existing.Amount.Equal(req.Amount) || existing.Asset != req.Asset {
		return nil, fmt.Errorf("reference %s already used by a different transaction", req.ReferenceID)
	}
	return existing, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *TransactionProcessor) submitWithdraw(ctx context.Context, req WithdrawRequest) (*models.Transaction, error) {
	if min, ok := p.cfg.WithdrawalMinimums[req.Asset]; ok && req.Amount.LessThan(min) {
		return nil, fmt.Errorf("%w: minimum for %s is %s", models.ErrBelowWithdrawalMin, req.Asset, min)
	}

	var tx *models.Transaction
	err := p.store.RunInTx(ctx, func(q *repository.Queries) error {
		wallet, err := p.walletForUpdate(ctx, q, &req.OwnerID, req.Asset, false)
		if err != nil {
			return err
		}
		if wallet.Balance.LessThan(req.Amount) {
			return models.ErrInsufficientFunds
		}

		// Funds stay untouched until an admin approves; success here only
		// means "accepted for review".
		tx = &models.Transaction{
			ID:      uuid.New(),
			OwnerID: req.OwnerID,
			Kind:    domain.TxKindWithdraw,
			Asset:   req.Asset,
			Amount:  req.Amount,
			Status:  domain.TxStatusPending,
			Note:    withdrawNote(req),
		}
		if err := q.CreateTransaction(ctx, tx); err != nil {
			return err
		}
		return p.audit.Write(ctx, q, "transaction", tx.ID, nil, "withdrawal_submitted", "", domain.TxStatusPending, nil)
	})
	if err != nil {
		return nil, err
	}

	p.notifier.WithdrawalPendingApproval(ctx, tx)
	return tx, nil
}

func withdrawNote(req WithdrawRequest) string {
	if req.Destination == "" {
		return req.Note
	}
	if req.Note == "" {
		return "to " + req.Destination
	}
	return req.Note + " (to " + req.Destination + ")"
}

func (p *TransactionProcessor) submitExchange(ctx context.Context, req ExchangeRequest) (*models.Transaction, error) {
	fee, credited := domain.ExchangeQuote(req.Amount, p.cfg.ExchangeFeeRate, req.Rate, req.ToAsset)

	var tx *models.Transaction
	err := p.store.RunInTx(ctx, func(q *repository.Queries) error {
		source, err := p.walletForUpdate(ctx, q, &req.OwnerID, req.FromAsset, false)
		if err != nil {
			return err
		}
		if _, err := q.AdjustWalletBalance(ctx, source.ID, req.Amount.Neg()); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrInsufficientFunds
			}
			return fmt.Errorf("debit exchange source: %w", err)
		}

		// The fee stays with the house in the source asset.
		if fee.IsPositive() {
			master, err := p.walletForUpdate(ctx, q, nil, req.FromAsset, true)
			if err != nil {
				return err
			}
			if _, err := q.AdjustWalletBalance(ctx, master.ID, fee); err != nil {
				return fmt.Errorf("credit exchange fee: %w", err)
			}
		}

		dest, err := p.walletForUpdate(ctx, q, &req.OwnerID, req.ToAsset, true)
		if err != nil {
			return err
		}
		if _, err := q.AdjustWalletBalance(ctx, dest.ID, credited); err != nil {
			return fmt.Errorf("credit exchange destination: %w", err)
		}

		now := time.Now()
		toAsset := req.ToAsset
		creditedOut := credited
		rate := req.Rate
		feeOut := fee
		tx = &models.Transaction{
			ID:            uuid.New(),
			OwnerID:       req.OwnerID,
			Kind:          domain.TxKindExchange,
			Asset:         req.FromAsset,
			Amount:        req.Amount,
			Status:        domain.TxStatusCompleted,
			CounterAsset:  &toAsset,
			CounterAmount: &creditedOut,
			Rate:          &rate,
			FeeAmount:     &feeOut,
			CompletedAt:   &now,
		}
		if err := q.CreateTransaction(ctx, tx); err != nil {
			return err
		}

		metadata, err := json.Marshal(map[string]string{
			"from_asset": req.FromAsset,
			"to_asset":   req.ToAsset,
			"rate":       req.Rate.String(),
			"fee":        fee.String(),
		})
		if err != nil {
			return fmt.Errorf("encode exchange metadata: %w", err)
		}
		return p.audit.Write(ctx, q, "transaction", tx.ID, nil, "exchange_completed", "", domain.TxStatusCompleted, metadata)
	})
	if err != nil {
		return nil, err
	}

	p.notifier.TransactionCompleted(ctx, tx)
	return tx, nil
}

func (p *TransactionProcessor) submitInvest(ctx context.Context, req InvestRequest) (*models.Transaction, error) {
	var (
		tx  *models.Transaction
		sub *models.Subscription
	)
	err := p.store.RunInTx(ctx, func(q *repository.Queries) error {
		plan, err := q.GetPlan(ctx, req.PlanID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrPlanNotFound
			}
			return fmt.Errorf("load plan: %w", err)
		}
		if !plan.Active {
			return models.ErrPlanInactive
		}
		if req.Amount.LessThan(plan.MinAmount) {
			return models.ErrAmountOutOfRange
		}
		if plan.MaxAmount != nil && req.Amount.GreaterThan(*plan.MaxAmount) {
			return models.ErrAmountOutOfRange
		}

		wallet, err := p.walletForUpdate(ctx, q, &req.OwnerID, req.Asset, false)
		if err != nil {
			return err
		}
		if _, err := q.AdjustWalletBalance(ctx, wallet.ID, req.Amount.Neg()); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrInsufficientFunds
			}
			return fmt.Errorf("debit principal: %w", err)
		}

		// Principal is escrowed in the master wallet until maturity or
		// cancellation pays out through the settlement path.
		master, err := p.walletForUpdate(ctx, q, nil, req.Asset, true)
		if err != nil {
			return err
		}
		if _, err := q.AdjustWalletBalance(ctx, master.ID, req.Amount); err != nil {
			return fmt.Errorf("escrow principal: %w", err)
		}

		now := time.Now()
		sub = &models.Subscription{
			ID:           uuid.New(),
			OwnerID:      req.OwnerID,
			PlanID:       plan.ID,
			Asset:        req.Asset,
			Principal:    req.Amount,
			YieldRate:    plan.YieldRate,
			DurationDays: plan.DurationDays,
			StartAt:      now,
			EndAt:        now.AddDate(0, 0, plan.DurationDays),
			Earned:       decimal.Zero,
			Status:       domain.SubscriptionStatusActive,
		}
		if err := q.CreateSubscription(ctx, sub); err != nil {
			return err
		}

		planID := plan.ID
		subID := sub.ID
		tx = &models.Transaction{
			ID:             uuid.New(),
			OwnerID:        req.OwnerID,
			Kind:           domain.TxKindInvest,
			Asset:          req.Asset,
			Amount:         req.Amount,
			Status:         domain.TxStatusCompleted,
			PlanID:         &planID,
			SubscriptionID: &subID,
			Note:           "invest in " + plan.Name,
			CompletedAt:    &now,
		}
		if err := q.CreateTransaction(ctx, tx); err != nil {
			return err
		}

		if err := p.audit.Write(ctx, q, "transaction", tx.ID, nil, "invest_completed", "", domain.TxStatusCompleted, nil); err != nil {
			return err
		}
		return p.audit.Write(ctx, q, "subscription", sub.ID, nil, "subscription_created", "", domain.SubscriptionStatusActive, nil)
	})
	if err != nil {
		return nil, err
	}

	p.notifier.TransactionCompleted(ctx, tx)
	return tx, nil
}

// Approve finalizes a pending withdrawal. The balance is re-validated at
// approval time: funds may have moved since submission.
func (p *TransactionProcessor) Approve(ctx context.Context, transactionID, adminID uuid.UUID) (*models.Transaction, error) {
	var tx *models.Transaction
	err := p.store.RunInTx(ctx, func(q *repository.Queries) error {
		current, err := q.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		if current.Kind != domain.TxKindWithdraw || current.Status != domain.TxStatusPending {
			return models.ErrNotPending
		}

		wallet, err := p.walletForUpdate(ctx, q, &current.OwnerID, current.Asset, false)
		if err != nil {
			return err
		}
		if _, err := q.AdjustWalletBalance(ctx, wallet.ID, current.Amount.Neg()); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrInsufficientFunds
			}
			return fmt.Errorf("debit withdrawal: %w", err)
		}

		if err := transitionTransactionState(ctx, q, p.audit, transactionID, domain.TxStatusCompleted, &adminID, "withdrawal_approved", nil); err != nil {
			return err
		}
		tx = current
		tx.Status = domain.TxStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notifier.TransactionCompleted(ctx, tx)
	observability.IncrementTransaction(domain.TxKindWithdraw, "approved")
	return tx, nil
}

// Reject declines a pending withdrawal without touching the balance.
func (p *TransactionProcessor) Reject(ctx context.Context, transactionID, adminID uuid.UUID, reason string) (*models.Transaction, error) {
	var tx *models.Transaction
	err := p.store.RunInTx(ctx, func(q *repository.Queries) error {
		current, err := q.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		if current.Kind != domain.TxKindWithdraw || current.Status != domain.TxStatusPending {
			return models.ErrNotPending
		}

		metadata, err := json.Marshal(map[string]string{"reason": reason})
		if err != nil {
			return fmt.Errorf("encode rejection metadata: %w", err)
		}
		if err := transitionTransactionState(ctx, q, p.audit, transactionID, domain.TxStatusRejected, &adminID, "withdrawal_rejected", metadata); err != nil {
			return err
		}
		if reason != "" {
			note := current.Note
			if note != "" {
				note += "; "
			}
			if _, err := q.AppendTransactionNote(ctx, transactionID, note+"rejected: "+reason); err != nil {
				return err
			}
		}
		tx = current
		tx.Status = domain.TxStatusRejected
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notifier.TransactionRejected(ctx, tx, reason)
	observability.IncrementTransaction(domain.TxKindWithdraw, "rejected")
	return tx, nil
}

// settlementCredit is one payout into an owner's settlement-asset wallet,
// recorded as a deposit-kind transaction tagged with its subscription.
type settlementCredit struct {
	OwnerID        uuid.UUID
	Amount         decimal.Decimal
	SubscriptionID uuid.UUID
	Note           string
	FeeAmount      *decimal.Decimal
	Action         string
}

// creditSettlementTx applies a settlement payout inside the caller's
// database transaction. The accrual engine and the cancellation handler both
// pay out through this path so every wallet credit stays paired with a
// transaction record.
func (p *TransactionProcessor) creditSettlementTx(ctx context.Context, q *repository.Queries, c settlementCredit) (*models.Transaction, error) {
	wallet, err := p.walletForUpdate(ctx, q, &c.OwnerID, p.cfg.SettlementAsset, true)
	if err != nil {
		return nil, err
	}
	if _, err := q.AdjustWalletBalance(ctx, wallet.ID, c.Amount); err != nil {
		return nil, fmt.Errorf("credit settlement wallet: %w", err)
	}

	now := time.Now()
	subID := c.SubscriptionID
	tx := &models.Transaction{
		ID:             uuid.New(),
		OwnerID:        c.OwnerID,
		Kind:           domain.TxKindDeposit,
		Asset:          p.cfg.SettlementAsset,
		Amount:         c.Amount,
		Status:         domain.TxStatusCompleted,
		SubscriptionID: &subID,
		FeeAmount:      c.FeeAmount,
		Note:           c.Note,
		CompletedAt:    &now,
	}
	if err := q.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	if err := p.audit.Write(ctx, q, "transaction", tx.ID, nil, c.Action, "", domain.TxStatusCompleted, nil); err != nil {
		return nil, err
	}
	return tx, nil
}

// SettlementAsset exposes the configured payout asset.
func (p *TransactionProcessor) SettlementAsset() string {
	return p.cfg.SettlementAsset
}

// GetTransaction fetches one transaction, enforcing ownership unless the
// caller is privileged.
func (p *TransactionProcessor) GetTransaction(ctx context.Context, ownerID, transactionID uuid.UUID, privileged bool) (*models.Transaction, error) {
	tx, err := p.store.Queries().GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if !privileged && tx.OwnerID != ownerID {
		return nil, models.ErrTransactionNotFound
	}
	return tx, nil
}

// ListTransactions pages through an owner's history, newest first.
func (p *TransactionProcessor) ListTransactions(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	return p.store.Queries().ListTransactionsByOwner(ctx, ownerID, limit, offset)
}

// ListPendingWithdrawals returns the manual-approval queue, oldest first.
func (p *TransactionProcessor) ListPendingWithdrawals(ctx context.Context, limit, offset int32) ([]models.Transaction, error) {
	return p.store.Queries().ListPendingWithdrawals(ctx, limit, offset)
}

// walletForUpdate loads and row-locks the wallet for (owner, asset),
// optionally creating it with a fresh receive address.
func (p *TransactionProcessor) walletForUpdate(ctx context.Context, q *repository.Queries, ownerID *uuid.UUID, asset string, createIfMissing bool) (*models.Wallet, error) {
	wallet, err := q.GetWalletForUpdate(ctx, ownerID, asset)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if !createIfMissing {
		return nil, models.ErrWalletNotFound
	}

	address, err := p.addresses.NewAddress(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("allocate receive address: %w", err)
	}
	wallet = &models.Wallet{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Asset:   asset,
		Balance: decimal.Zero,
		Address: address,
	}
	if err := q.CreateWallet(ctx, wallet); err != nil {
		return nil, err
	}
	zap.L().Debug("wallet created",
		zap.String("asset", asset),
		zap.Bool("master", ownerID == nil),
	)
	return wallet, nil
}
