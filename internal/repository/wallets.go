package repository

import (
	"context"
	"fmt"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const walletColumns = "id, owner_id, asset, balance, address, created_at, updated_at"

func scanWallet(row interface{ Scan(dest ...any) error }) (*models.Wallet, error) {
	w := &models.Wallet{}
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Asset, &w.Balance, &w.Address, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return w, nil
}

// CreateWallet inserts a wallet row. OwnerID nil creates the master wallet
// for the asset; uniqueness per (owner, asset) is enforced by the schema.
func (q *Queries) CreateWallet(ctx context.Context, w *models.Wallet) error {
	query := `INSERT INTO wallets (id, owner_id, asset, balance, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at`
	if err := q.db.QueryRow(ctx, query, w.ID, w.OwnerID, w.Asset, w.Balance, w.Address).Scan(&w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

// GetWallet fetches the wallet for (owner, asset). A nil owner addresses the
// master wallet.
func (q *Queries) GetWallet(ctx context.Context, ownerID *uuid.UUID, asset string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id IS NOT DISTINCT FROM $1 AND asset = $2`
	return scanWallet(q.db.QueryRow(ctx, query, ownerID, asset))
}

// GetWalletForUpdate locks the wallet row for the remainder of the enclosing
// transaction.
func (q *Queries) GetWalletForUpdate(ctx context.Context, ownerID *uuid.UUID, asset string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id IS NOT DISTINCT FROM $1 AND asset = $2 FOR UPDATE`
	return scanWallet(q.db.QueryRow(ctx, query, ownerID, asset))
}

// ListWalletsByOwner returns all wallets held by an owner, ordered by asset.
func (q *Queries) ListWalletsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 ORDER BY asset`
	rows, err := q.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

// AdjustWalletBalance applies a signed delta to a wallet balance. The guard
// refuses any update that would take the balance negative; a debit that
// matches zero rows means insufficient funds (pgx.ErrNoRows surfaces).
func (q *Queries) AdjustWalletBalance(ctx context.Context, walletID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `UPDATE wallets
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance`
	var balance decimal.Decimal
	if err := q.db.QueryRow(ctx, query, delta, walletID).Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// CountNegativeWallets reports wallets violating the non-negative invariant.
// The schema check constraint should make this impossible; the integrity
// sweep verifies it anyway.
func (q *Queries) CountNegativeWallets(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallets WHERE balance < 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count negative wallets: %w", err)
	}
	return count, nil
}

// MasterEscrowByAsset returns the master wallet balance per asset alongside
// the total active principal invested in that asset.
type MasterEscrowRow struct {
	Asset           string
	MasterBalance   decimal.Decimal
	ActivePrincipal decimal.Decimal
}

func (q *Queries) MasterEscrowByAsset(ctx context.Context) ([]MasterEscrowRow, error) {
	query := `
		SELECT w.asset,
		       w.balance,
		       COALESCE(SUM(s.principal) FILTER (WHERE s.status = 'ACTIVE'), 0)
		FROM wallets w
		LEFT JOIN subscriptions s ON s.asset = w.asset
		WHERE w.owner_id IS NULL
		GROUP BY w.asset, w.balance
		ORDER BY w.asset`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("master escrow by asset: %w", err)
	}
	defer rows.Close()

	var out []MasterEscrowRow
	for rows.Next() {
		var r MasterEscrowRow
		if err := rows.Scan(&r.Asset, &r.MasterBalance, &r.ActivePrincipal); err != nil {
			return nil, fmt.Errorf("scan master escrow row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
