package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zerohandoff/zhc-plane/internal/database"
)

// BeginIdempotency inserts a processing row on first call; on replay with
// the same payload_hash, returns the stored outcome; on a differing hash,
// transitions the record to conflict (spec.md §4.1 begin_idempotency).
func (r *Registry) BeginIdempotency(ctx context.Context, key, scope, payloadHash string, taskID string) (*IdempotencyBeginResult, error) {
	if key == "" || scope == "" {
		return nil, errorf(ErrInvalidArgument, "key and scope are required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin_idempotency: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.getIdempotencyKeyTx(ctx, tx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := database.NowISO()

	if existing == nil {
		var taskIDArg any
		if taskID != "" {
			taskIDArg = taskID
		}
		_, err = tx.ExecContext(ctx, r.rebind(
			`INSERT INTO idempotency_keys (key, scope, task_id, payload_hash, status, result, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			key, scope, taskIDArg, payloadHash, string(IdempotencyProcessing), "", now, now)
		if err != nil {
			return nil, fmt.Errorf("begin_idempotency: insert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("begin_idempotency: commit: %w", err)
		}
		return &IdempotencyBeginResult{Exists: false, Conflict: false, Status: IdempotencyProcessing}, nil
	}

	if existing.PayloadHash == payloadHash {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("begin_idempotency: commit: %w", err)
		}
		return &IdempotencyBeginResult{Exists: true, Conflict: false, Status: existing.Status, Result: existing.Result}, nil
	}

	// Differing payload hash: transition to conflict.
	_, err = tx.ExecContext(ctx, r.rebind(
		`UPDATE idempotency_keys SET status = ?, updated_at = ? WHERE key = ?`),
		string(IdempotencyConflict), now, key)
	if err != nil {
		return nil, fmt.Errorf("begin_idempotency: conflict update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("begin_idempotency: commit: %w", err)
	}
	return &IdempotencyBeginResult{Exists: true, Conflict: true, Status: IdempotencyConflict, Result: existing.Result}, nil
}

// CompleteIdempotency finalizes an idempotency record (spec.md §4.1
// complete_idempotency).
func (r *Registry) CompleteIdempotency(ctx context.Context, key string, status IdempotencyStatus, result map[string]any) error {
	resultJSON, err := marshalMetadata(result)
	if err != nil {
		return err
	}

	now := database.NowISO()
	res, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE idempotency_keys SET status = ?, result = ?, updated_at = ? WHERE key = ?`),
		string(status), resultJSON, now, key)
	if err != nil {
		return fmt.Errorf("complete_idempotency: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errorf(ErrNotFound, "idempotency key %q", key)
	}
	return nil
}

// GetIdempotencyKey returns an idempotency record.
func (r *Registry) GetIdempotencyKey(ctx context.Context, key string) (*IdempotencyKey, error) {
	return r.getIdempotencyKeyTx(ctx, r.db, key)
}

// ListIdempotencyKeys returns idempotency records, optionally filtered by
// scope.
func (r *Registry) ListIdempotencyKeys(ctx context.Context, scope string) ([]IdempotencyKey, error) {
	query := `SELECT key, scope, task_id, payload_hash, status, result, created_at, updated_at FROM idempotency_keys`
	var args []any
	if scope != "" {
		query += " WHERE scope = ?"
		args = append(args, scope)
	}
	query += " ORDER BY created_at DESC"

	var keys []IdempotencyKey
	if err := sqlx.SelectContext(ctx, r.db, &keys, r.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list_idempotency_keys: %w", err)
	}
	for i := range keys {
		if err := hydrateIdempotencyKey(&keys[i]); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (r *Registry) getIdempotencyKeyTx(ctx context.Context, q sqlx.QueryerContext, key string) (*IdempotencyKey, error) {
	var k IdempotencyKey
	err := sqlx.GetContext(ctx, q, &k, r.rebind(
		`SELECT key, scope, task_id, payload_hash, status, result, created_at, updated_at FROM idempotency_keys WHERE key = ?`), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorf(ErrNotFound, "idempotency key %q", key)
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	if err := hydrateIdempotencyKey(&k); err != nil {
		return nil, err
	}
	return &k, nil
}
