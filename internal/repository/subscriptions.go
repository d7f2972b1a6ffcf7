package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const subscriptionColumns = `id, owner_id, plan_id, asset, principal, yield_rate, duration_days,
	start_at, end_at, earned, status, last_accrued_at, created_at, updated_at`

func scanSubscription(row interface{ Scan(dest ...any) error }) (*models.Subscription, error) {
	s := &models.Subscription{}
	if err := row.Scan(
		&s.ID, &s.OwnerID, &s.PlanID, &s.Asset, &s.Principal, &s.YieldRate, &s.DurationDays,
		&s.StartAt, &s.EndAt, &s.Earned, &s.Status, &s.LastAccruedAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateSubscription inserts a subscription with terms already captured from
// its plan.
func (q *Queries) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	query := `INSERT INTO subscriptions
		(id, owner_id, plan_id, asset, principal, yield_rate, duration_days,
		 start_at, end_at, earned, status, last_accrued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`
	if err := q.db.QueryRow(ctx, query,
		s.ID, s.OwnerID, s.PlanID, s.Asset, s.Principal, s.YieldRate, s.DurationDays,
		s.StartAt, s.EndAt, s.Earned, s.Status, s.LastAccruedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches one subscription by id.
func (q *Queries) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(q.db.QueryRow(ctx, query, id))
}

// GetSubscriptionForUpdate locks the subscription row for the enclosing tx.
func (q *Queries) GetSubscriptionForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 FOR UPDATE`
	return scanSubscription(q.db.QueryRow(ctx, query, id))
}

// ListSubscriptionsByOwner returns an owner's subscriptions, newest first.
func (q *Queries) ListSubscriptionsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// ListDueSubscriptionIDs returns ACTIVE subscriptions not yet accrued in the
// current period, keyset-paginated by id. Passing the last id of the previous
// batch as afterID guarantees forward progress even when markers do not
// advance: a subscription that fails to settle is not revisited until the
// next sweep.
func (q *Queries) ListDueSubscriptionIDs(ctx context.Context, cutoff time.Time, afterID uuid.UUID, limit int32) ([]uuid.UUID, error) {
	query := `SELECT id FROM subscriptions
		WHERE status = 'ACTIVE' AND (last_accrued_at IS NULL OR last_accrued_at <= $1)
		  AND id > $2
		ORDER BY id
		LIMIT $3`
	rows, err := q.db.Query(ctx, query, cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscription id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordSubscriptionAccrual adds one period's earnings and advances the
// last-accrual marker in a single guarded update. Zero affected rows means
// the subscription was already accrued for the period (or is no longer
// ACTIVE) and the caller must skip the credit.
func (q *Queries) RecordSubscriptionAccrual(ctx context.Context, id uuid.UUID, earnings decimal.Decimal, accruedAt, cutoff time.Time) (int64, error) {
	query := `UPDATE subscriptions
		SET earned = earned + $1, last_accrued_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'ACTIVE'
		  AND (last_accrued_at IS NULL OR last_accrued_at <= $4)`
	tag, err := q.db.Exec(ctx, query, earnings, accruedAt, id, cutoff)
	if err != nil {
		return 0, fmt.Errorf("record subscription accrual: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CloseSubscription moves an ACTIVE subscription to a terminal status.
// Guarded on ACTIVE so terminal states stay immutable.
func (q *Queries) CloseSubscription(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	query := `UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'ACTIVE'`
	tag, err := q.db.Exec(ctx, query, status, id)
	if err != nil {
		return 0, fmt.Errorf("close subscription: %w", err)
	}
	return tag.RowsAffected(), nil
}
