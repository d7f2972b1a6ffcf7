package service

import (
	"context"
	"fmt"

	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditService writes immutable audit trail entries.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

// Write stores a single immutable audit record inside the caller's database
// transaction.
func (s *AuditService) Write(ctx context.Context, qtx *repository.Queries, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata []byte) error {
	if err := qtx.InsertAuditRecord(ctx, repository.InsertAuditRecordParams{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// WriteBestEffort records an audit entry outside any transaction. A failure
// is logged and never propagated; the underlying financial operation has
// already committed.
func (s *AuditService) WriteBestEffort(ctx context.Context, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata []byte) {
	if err := s.Write(ctx, s.store.Queries(), entityType, entityID, actorID, action, prevState, nextState, metadata); err != nil {
		zap.L().Warn("best-effort audit write failed",
			zap.Error(err),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID.String()),
			zap.String("action", action),
		)
	}
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
