package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a single (owner, asset) balance. OwnerID is nil for the
// master wallet held once per asset.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   *uuid.UUID      `json:"owner_id,omitempty"`
	Asset     string          `json:"asset"`
	Balance   decimal.Decimal `json:"balance"`
	Address   string          `json:"address"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction records a balance-affecting intent and its terminal outcome.
type Transaction struct {
	ID             uuid.UUID        `json:"id"`
	OwnerID        uuid.UUID        `json:"owner_id"`
	Kind           string           `json:"kind"`
	Asset          string           `json:"asset"`
	Amount         decimal.Decimal  `json:"amount"`
	Status         string           `json:"status"`
	CounterAsset   *string          `json:"counter_asset,omitempty"`
	CounterAmount  *decimal.Decimal `json:"counter_amount,omitempty"`
	Rate           *decimal.Decimal `json:"rate,omitempty"`
	FeeAmount      *decimal.Decimal `json:"fee_amount,omitempty"`
	PlanID         *uuid.UUID       `json:"plan_id,omitempty"`
	SubscriptionID *uuid.UUID       `json:"subscription_id,omitempty"`
	Note           string           `json:"note,omitempty"`
	ReferenceID    *string          `json:"reference_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// Plan is a fixed-term yield product. Rate and duration are captured into a
// subscription at creation time; later plan edits never affect live
// subscriptions.
type Plan struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	MinAmount    decimal.Decimal  `json:"min_amount"`
	MaxAmount    *decimal.Decimal `json:"max_amount,omitempty"`
	YieldRate    decimal.Decimal  `json:"yield_rate"`
	DurationDays int              `json:"duration_days"`
	Active       bool             `json:"active"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Subscription is a live investment position.
type Subscription struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	PlanID        uuid.UUID       `json:"plan_id"`
	Asset         string          `json:"asset"`
	Principal     decimal.Decimal `json:"principal"`
	YieldRate     decimal.Decimal `json:"yield_rate"`
	DurationDays  int             `json:"duration_days"`
	StartAt       time.Time       `json:"start_at"`
	EndAt         time.Time       `json:"end_at"`
	Earned        decimal.Decimal `json:"earned"`
	Status        string          `json:"status"`
	LastAccruedAt *time.Time      `json:"last_accrued_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
