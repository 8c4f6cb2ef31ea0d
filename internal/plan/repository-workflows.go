package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/ruckplan/internal/sqlite"
)

// SQLiteWorkflowStore is the [WorkflowStore] backed by the workflow_cache table.
type SQLiteWorkflowStore struct {
	baseRepository
}

// NewSQLiteWorkflowStore creates a workflow store on db.
func NewSQLiteWorkflowStore(db *sqlite.Database, logger *slog.Logger) *SQLiteWorkflowStore {
	return &SQLiteWorkflowStore{
		baseRepository: newBaseRepository(db, logger),
	}
}

// Put replaces the payload stored for the session.
func (r *SQLiteWorkflowStore) Put(ctx context.Context, sessionID string, payload []byte, expiresAt time.Time) error {
	_, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO workflow_cache (session_id, payload, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = STRFTIME('%Y-%m-%dT%H:%M:%fZ')`,
		sessionID, payload, formatTimestamp(expiresAt))
	if err != nil {
		return fmt.Errorf("upsert workflow cache: %w", err)
	}
	return nil
}

// Get returns the payload stored for the session or [ErrNotFound].
func (r *SQLiteWorkflowStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	var payload []byte
	err := r.db.ReadOnly.QueryRowContext(ctx,
		`SELECT payload FROM workflow_cache WHERE session_id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow cache: %w", err)
	}
	return payload, nil
}

// Delete removes the payload stored for the session.
func (r *SQLiteWorkflowStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ReadWrite.ExecContext(ctx,
		`DELETE FROM workflow_cache WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete workflow cache: %w", err)
	}
	return nil
}

// DeleteExpired removes payloads that expired before the given time.
func (r *SQLiteWorkflowStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	result, err := r.db.ReadWrite.ExecContext(ctx,
		`DELETE FROM workflow_cache WHERE expires_at < ?`, formatTimestamp(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired workflows: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "pruned expired workflows", slog.Int64("count", n))
	}
	return int(n), nil
}
