package service

import (
	"context"

	"github.com/davidocha/coinvault/internal/models"
	"go.uber.org/zap"
)

// Notifier is the narrow interface to the external notification collaborator.
// Implementations must never block ledger mutations: every method is invoked
// after the underlying database transaction has committed, and failures are
// the notifier's own problem.
type Notifier interface {
	TransactionCompleted(ctx context.Context, tx *models.Transaction)
	TransactionRejected(ctx context.Context, tx *models.Transaction, reason string)
	WithdrawalPendingApproval(ctx context.Context, tx *models.Transaction)
	SubscriptionMatured(ctx context.Context, sub *models.Subscription)
	SubscriptionCancelled(ctx context.Context, sub *models.Subscription, penalty string)
}

// LogNotifier is the default Notifier: it renders events into the structured
// log and nothing else.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) TransactionCompleted(ctx context.Context, tx *models.Transaction) {
	zap.L().Info("event: transaction completed",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("kind", tx.Kind),
		zap.String("asset", tx.Asset),
		zap.String("amount", tx.Amount.String()),
	)
}

func (n *LogNotifier) TransactionRejected(ctx context.Context, tx *models.Transaction, reason string) {
	zap.L().Info("event: transaction rejected",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("kind", tx.Kind),
		zap.String("reason", reason),
	)
}

func (n *LogNotifier) WithdrawalPendingApproval(ctx context.Context, tx *models.Transaction) {
	zap.L().Info("event: withdrawal pending approval",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("asset", tx.Asset),
		zap.String("amount", tx.Amount.String()),
	)
}

func (n *LogNotifier) SubscriptionMatured(ctx context.Context, sub *models.Subscription) {
	zap.L().Info("event: subscription matured",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("principal", sub.Principal.String()),
		zap.String("earned", sub.Earned.String()),
	)
}

func (n *LogNotifier) SubscriptionCancelled(ctx context.Context, sub *models.Subscription, penalty string) {
	zap.L().Info("event: subscription cancelled",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("penalty", penalty),
	)
}
