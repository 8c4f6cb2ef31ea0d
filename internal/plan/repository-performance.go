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

// sqlitePerformanceRepository implements performanceRepository.
type sqlitePerformanceRepository struct {
	baseRepository
}

func newSQLitePerformanceRepository(db *sqlite.Database, logger *slog.Logger) *sqlitePerformanceRepository {
	return &sqlitePerformanceRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v > 0}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v > 0}
}

// Record stores a performance snapshot. A snapshot with the same timestamp replaces the earlier one.
func (r *sqlitePerformanceRepository) Record(ctx context.Context, sessionID string, m PerformanceMetrics) error {
	_, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO performance_snapshots (
			session_id, recorded_at, consistency, average_effort, progress_trend,
			completion_time_ratio, heart_rate_recovery, missed_workouts, feedback_rating
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, recorded_at) DO UPDATE SET
			consistency = excluded.consistency,
			average_effort = excluded.average_effort,
			progress_trend = excluded.progress_trend,
			completion_time_ratio = excluded.completion_time_ratio,
			heart_rate_recovery = excluded.heart_rate_recovery,
			missed_workouts = excluded.missed_workouts,
			feedback_rating = excluded.feedback_rating`,
		sessionID, formatTimestamp(m.RecordedAt), m.Consistency, m.AverageEffort, m.ProgressTrend,
		nullFloat(m.CompletionTimeRatio), nullFloat(m.HeartRateRecovery), nullInt(m.MissedWorkouts),
		nullInt(m.FeedbackRating))
	if err != nil {
		return fmt.Errorf("insert performance snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of the session.
func (r *sqlitePerformanceRepository) Latest(ctx context.Context, sessionID string) (PerformanceMetrics, error) {
	var (
		m                   PerformanceMetrics
		recordedAt          string
		completionTimeRatio sql.NullFloat64
		heartRateRecovery   sql.NullFloat64
		missedWorkouts      sql.NullInt64
		feedbackRating      sql.NullInt64
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT recorded_at, consistency, average_effort, progress_trend,
		       completion_time_ratio, heart_rate_recovery, missed_workouts, feedback_rating
		FROM performance_snapshots
		WHERE session_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1`, sessionID).Scan(
		&recordedAt, &m.Consistency, &m.AverageEffort, &m.ProgressTrend,
		&completionTimeRatio, &heartRateRecovery, &missedWorkouts, &feedbackRating,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return PerformanceMetrics{}, ErrNotFound
	}
	if err != nil {
		return PerformanceMetrics{}, fmt.Errorf("query performance snapshot: %w", err)
	}
	if m.RecordedAt, err = time.Parse(timestampFormat, recordedAt); err != nil {
		return PerformanceMetrics{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	m.CompletionTimeRatio = completionTimeRatio.Float64
	m.HeartRateRecovery = heartRateRecovery.Float64
	m.MissedWorkouts = int(missedWorkouts.Int64)
	m.FeedbackRating = int(feedbackRating.Int64)
	return m, nil
}

// sqliteCompletionRepository implements completionRepository.
type sqliteCompletionRepository struct {
	baseRepository
}

func newSQLiteCompletionRepository(db *sqlite.Database, logger *slog.Logger) *sqliteCompletionRepository {
	return &sqliteCompletionRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

// Complete marks a workout as done. Completing it again keeps the first completion time.
func (r *sqliteCompletionRepository) Complete(ctx context.Context, sessionID, workoutID string, at time.Time) error {
	_, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO workout_completions (session_id, workout_id, completed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, workout_id) DO NOTHING`,
		sessionID, workoutID, formatTimestamp(at))
	if err != nil {
		return fmt.Errorf("insert workout completion: %w", err)
	}
	return nil
}

// List returns the completion time of each completed workout of the session keyed by workout ID.
func (r *sqliteCompletionRepository) List(ctx context.Context, sessionID string) (_ map[string]time.Time, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT workout_id, completed_at
		FROM workout_completions
		WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query workout completions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	completions := make(map[string]time.Time)
	for rows.Next() {
		var workoutID, completedAt string
		if err = rows.Scan(&workoutID, &completedAt); err != nil {
			return nil, fmt.Errorf("scan workout completion: %w", err)
		}
		var at time.Time
		if at, err = time.Parse(timestampFormat, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		completions[workoutID] = at
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return completions, nil
}
