package repository

import (
	"context"
	"fmt"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/google/uuid"
)

const transactionColumns = `id, owner_id, kind, asset, amount, status, counter_asset, counter_amount,
	fx_rate, fee_amount, plan_id, subscription_id, note, reference_id, created_at, completed_at`

func scanTransaction(row interface{ Scan(dest ...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	if err := row.Scan(
		&t.ID, &t.OwnerID, &t.Kind, &t.Asset, &t.Amount, &t.Status,
		&t.CounterAsset, &t.CounterAmount, &t.Rate, &t.FeeAmount,
		&t.PlanID, &t.SubscriptionID, &t.Note, &t.ReferenceID,
		&t.CreatedAt, &t.CompletedAt,
	); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTransaction appends a transaction record.
func (q *Queries) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `INSERT INTO transactions
		(id, owner_id, kind, asset, amount, status, counter_asset, counter_amount,
		 fx_rate, fee_amount, plan_id, subscription_id, note, reference_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), $15)
		RETURNING created_at`
	if err := q.db.QueryRow(ctx, query,
		t.ID, t.OwnerID, t.Kind, t.Asset, t.Amount, t.Status,
		t.CounterAsset, t.CounterAmount, t.Rate, t.FeeAmount,
		t.PlanID, t.SubscriptionID, t.Note, t.ReferenceID, t.CompletedAt,
	).Scan(&t.CreatedAt); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// GetTransaction fetches one transaction by id.
func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(q.db.QueryRow(ctx, query, id))
}

// GetTransactionForUpdate locks the transaction row for the enclosing tx.
func (q *Queries) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(q.db.QueryRow(ctx, query, id))
}

// GetTransactionByReference resolves a transaction by its external reference.
func (q *Queries) GetTransactionByReference(ctx context.Context, referenceID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference_id = $1`
	return scanTransaction(q.db.QueryRow(ctx, query, referenceID))
}

// UpdateTransactionStatus moves a transaction to a new status. Terminal
// statuses also stamp completed_at. Returns affected row count so callers can
// detect lost updates.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	query := `UPDATE transactions
		SET status = $1,
		    completed_at = CASE WHEN $1 IN ('COMPLETED', 'REJECTED') THEN NOW() ELSE completed_at END
		WHERE id = $2`
	tag, err := q.db.Exec(ctx, query, status, id)
	if err != nil {
		return 0, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AppendTransactionNote replaces the free-text note, used to attach rejection
// reasons and approval annotations.
func (q *Queries) AppendTransactionNote(ctx context.Context, id uuid.UUID, note string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE transactions SET note = $1 WHERE id = $2`, note, id)
	if err != nil {
		return 0, fmt.Errorf("update transaction note: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListTransactionsByOwner pages through an owner's transaction history,
// newest first.
func (q *Queries) ListTransactionsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ListPendingWithdrawals returns the manual-approval queue, oldest first.
func (q *Queries) ListPendingWithdrawals(ctx context.Context, limit, offset int32) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE kind = 'WITHDRAW' AND status = 'PENDING'
		ORDER BY created_at ASC LIMIT $1 OFFSET $2`
	rows, err := q.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending withdrawals: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// CountPendingWithdrawals sizes the approval queue for metrics.
func (q *Queries) CountPendingWithdrawals(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM transactions WHERE kind = 'WITHDRAW' AND status = 'PENDING'`
	if err := q.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending withdrawals: %w", err)
	}
	return count, nil
}
