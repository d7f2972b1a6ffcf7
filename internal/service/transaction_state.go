package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
)

// Transactions move from PENDING to exactly one terminal state. Terminal
// states are immutable.
var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusCompleted: {},
		domain.TxStatusRejected:  {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusRejected:  {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// transitionTransactionState moves a transaction to nextState under the row
// lock of the enclosing database transaction and writes an audit record for
// the change.
func transitionTransactionState(ctx context.Context, qtx *repository.Queries, audit *AuditService, transactionID uuid.UUID, nextState string, actorID *uuid.UUID, action string, metadata []byte) error {
	current, err := qtx.GetTransactionForUpdate(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("get current transaction state: %w", err)
	}

	if normalizeState(current.Status) == normalizeState(nextState) {
		return nil
	}
	if !canTransition(current.Status, nextState) {
		return fmt.Errorf("invalid transaction state transition: %s -> %s", current.Status, nextState)
	}

	rows, err := qtx.UpdateTransactionStatus(ctx, transactionID, nextState)
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}

	return audit.Write(ctx, qtx, "transaction", transactionID, actorID, action, current.Status, nextState, metadata)
}
