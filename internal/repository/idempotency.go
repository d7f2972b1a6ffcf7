package repository

import (
	"context"
	"fmt"
)

// IdempotencyKeyRow mirrors the idempotency_keys table.
type IdempotencyKeyRow struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}

const idempotencyColumns = `idempotency_key, request_hash, method, path,
	COALESCE(response_status, 0), response_body, COALESCE(content_type, ''), in_progress`

// GetIdempotencyKey loads a stored idempotency record.
func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	query := `SELECT ` + idempotencyColumns + ` FROM idempotency_keys WHERE idempotency_key = $1`
	err := q.db.QueryRow(ctx, query, key).Scan(
		&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
		&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress,
	)
	return row, err
}

// ReserveIdempotencyKeyParams identifies the request claiming the key.
type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

// ReserveIdempotencyKey claims a key for in-flight processing. Returns
// pgx.ErrNoRows when another request already holds it.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (string, error) {
	query := `INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key`
	var key string
	if err := q.db.QueryRow(ctx, query, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path).Scan(&key); err != nil {
		return "", err
	}
	return key, nil
}

// FinalizeIdempotencyKeyParams carries the response captured for replay.
type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

// FinalizeIdempotencyKey stores the response and releases the in-progress
// marker.
func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKeyRow, error) {
	query := `UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING ` + idempotencyColumns
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, query,
		arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash,
	).Scan(
		&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
		&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress,
	)
	if err != nil {
		return IdempotencyKeyRow{}, err
	}
	return row, nil
}

// PruneIdempotencyKeys deletes records older than the retention window.
func (q *Queries) PruneIdempotencyKeys(ctx context.Context, olderThanSeconds int64) (int64, error) {
	query := `DELETE FROM idempotency_keys WHERE created_at < NOW() - make_interval(secs => $1)`
	tag, err := q.db.Exec(ctx, query, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("prune idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
