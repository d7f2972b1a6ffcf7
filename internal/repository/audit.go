package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertAuditRecordParams describes one immutable audit trail entry.
type InsertAuditRecordParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

// InsertAuditRecord appends to the audit log.
func (q *Queries) InsertAuditRecord(ctx context.Context, arg InsertAuditRecordParams) error {
	query := `INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`
	if _, err := q.db.Exec(ctx, query,
		arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata,
	); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
