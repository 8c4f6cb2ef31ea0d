package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/ruckplan/internal/sqlite"
)

// SQLiteAdaptationStore is the [AdaptationStore] backed by the adaptation_records table.
type SQLiteAdaptationStore struct {
	baseRepository
}

// NewSQLiteAdaptationStore creates an adaptation store on db.
func NewSQLiteAdaptationStore(db *sqlite.Database, logger *slog.Logger) *SQLiteAdaptationStore {
	return &SQLiteAdaptationStore{
		baseRepository: newBaseRepository(db, logger),
	}
}

// Append inserts a record. Records are never updated afterwards.
func (r *SQLiteAdaptationStore) Append(ctx context.Context, record AdaptationRecord) error {
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO adaptation_records (id, session_id, reason, metrics, previous_workflow_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.Reason, string(metrics), record.PreviousWorkflowID,
		formatTimestamp(record.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert adaptation record: %w", err)
	}
	return nil
}

// List returns the records of a session oldest first.
func (r *SQLiteAdaptationStore) List(ctx context.Context, sessionID string) (_ []AdaptationRecord, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, reason, metrics, previous_workflow_id, created_at
		FROM adaptation_records
		WHERE session_id = ?
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query adaptation records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var records []AdaptationRecord
	for rows.Next() {
		var (
			record    AdaptationRecord
			metrics   string
			createdAt string
		)
		if err = rows.Scan(&record.ID, &record.Reason, &metrics, &record.PreviousWorkflowID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan adaptation record: %w", err)
		}
		if err = json.Unmarshal([]byte(metrics), &record.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of adaptation record %s: %w", record.ID, err)
		}
		if record.CreatedAt, err = time.Parse(timestampFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		record.SessionID = sessionID
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}
