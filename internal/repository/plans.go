package repository

import (
	"context"
	"fmt"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/google/uuid"
)

const planColumns = "id, name, min_amount, max_amount, yield_rate, duration_days, active, created_at"

func scanPlan(row interface{ Scan(dest ...any) error }) (*models.Plan, error) {
	p := &models.Plan{}
	if err := row.Scan(&p.ID, &p.Name, &p.MinAmount, &p.MaxAmount, &p.YieldRate, &p.DurationDays, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePlan inserts a yield plan.
func (q *Queries) CreatePlan(ctx context.Context, p *models.Plan) error {
	query := `INSERT INTO plans (id, name, min_amount, max_amount, yield_rate, duration_days, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`
	if err := q.db.QueryRow(ctx, query, p.ID, p.Name, p.MinAmount, p.MaxAmount, p.YieldRate, p.DurationDays, p.Active).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// GetPlan fetches one plan by id.
func (q *Queries) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	return scanPlan(q.db.QueryRow(ctx, query, id))
}

// ListActivePlans returns plans open for new subscriptions.
func (q *Queries) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE active ORDER BY duration_days, name`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// SetPlanActive flips the active flag. Existing subscriptions keep their
// captured terms either way.
func (q *Queries) SetPlanActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE plans SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return 0, fmt.Errorf("set plan active: %w", err)
	}
	return tag.RowsAffected(), nil
}
