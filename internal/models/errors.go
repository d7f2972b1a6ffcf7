package models

import "errors"

// Sentinel errors returned by the ledger core. Callers branch on these to
// distinguish validation failures and resource-state failures from transient
// store errors.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrUnsupportedAsset      = errors.New("unsupported asset")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrBelowWithdrawalMin    = errors.New("amount below withdrawal minimum")
	ErrPlanNotFound          = errors.New("plan not found")
	ErrPlanInactive          = errors.New("plan is not active")
	ErrAmountOutOfRange      = errors.New("amount outside plan limits")
	ErrNotPending            = errors.New("transaction is not pending")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrSubscriptionNotActive = errors.New("subscription is not active")
	ErrNotSubscriptionOwner  = errors.New("subscription belongs to another owner")
	ErrSameAsset             = errors.New("source and destination asset must differ")
)
