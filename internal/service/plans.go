package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PlanService manages the yield plan catalog and serves subscription reads.
type PlanService struct {
	store QueryStore
	audit *AuditService
}

func NewPlanService(store QueryStore) *PlanService {
	return &PlanService{store: store, audit: NewAuditService(store)}
}

// CreatePlanParams defines a new fixed-term yield product.
type CreatePlanParams struct {
	Name         string
	MinAmount    decimal.Decimal
	MaxAmount    *decimal.Decimal
	YieldRate    decimal.Decimal
	DurationDays int
}

func (p CreatePlanParams) validate() error {
	if p.Name == "" {
		return errors.New("plan name required")
	}
	if !p.MinAmount.IsPositive() {
		return fmt.Errorf("%w: minimum amount must be positive", models.ErrInvalidAmount)
	}
	if p.MaxAmount != nil && p.MaxAmount.LessThan(p.MinAmount) {
		return fmt.Errorf("%w: maximum below minimum", models.ErrInvalidAmount)
	}
	if !p.YieldRate.IsPositive() {
		return fmt.Errorf("%w: yield rate must be positive", models.ErrInvalidAmount)
	}
	if p.DurationDays <= 0 {
		return errors.New("duration must be at least one day")
	}
	return nil
}

// CreatePlan adds an active plan to the catalog.
func (s *PlanService) CreatePlan(ctx context.Context, adminID uuid.UUID, params CreatePlanParams) (*models.Plan, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	plan := &models.Plan{
		ID:           uuid.New(),
		Name:         params.Name,
		MinAmount:    params.MinAmount,
		MaxAmount:    params.MaxAmount,
		YieldRate:    params.YieldRate,
		DurationDays: params.DurationDays,
		Active:       true,
	}
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := q.CreatePlan(ctx, plan); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "plan", plan.ID, &adminID, "plan_created", "", "ACTIVE", nil)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// ListActivePlans returns the plans open for new subscriptions.
func (s *PlanService) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	return s.store.Queries().ListActivePlans(ctx)
}

// GetPlan fetches one plan regardless of active state.
func (s *PlanService) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := s.store.Queries().GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// SetPlanActive opens or closes a plan for new subscriptions. Existing
// subscriptions are unaffected.
func (s *PlanService) SetPlanActive(ctx context.Context, adminID, planID uuid.UUID, active bool) error {
	return s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.SetPlanActive(ctx, planID, active)
		if err != nil {
			return err
		}
		if rows == 0 {
			return models.ErrPlanNotFound
		}
		state := "INACTIVE"
		if active {
			state = "ACTIVE"
		}
		return s.audit.Write(ctx, q, "plan", planID, &adminID, "plan_state_changed", "", state, nil)
	})
}

// GetSubscription fetches one subscription, enforcing ownership unless the
// caller is privileged.
func (s *PlanService) GetSubscription(ctx context.Context, ownerID uuid.UUID, subscriptionID uuid.UUID, privileged bool) (*models.Subscription, error) {
	sub, err := s.store.Queries().GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if !privileged && sub.OwnerID != ownerID {
		return nil, models.ErrNotSubscriptionOwner
	}
	return sub, nil
}

// ListSubscriptions returns an owner's subscriptions, newest first.
func (s *PlanService) ListSubscriptions(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Subscription, error) {
	return s.store.Queries().ListSubscriptionsByOwner(ctx, ownerID, limit, offset)
}
