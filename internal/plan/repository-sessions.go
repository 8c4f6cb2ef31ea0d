package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/myrjola/ruckplan/internal/sqlite"
)

// sqliteSessionRepository implements sessionRepository.
type sqliteSessionRepository struct {
	baseRepository
}

// newSQLiteSessionRepository creates a new SQLite session repository.
func newSQLiteSessionRepository(db *sqlite.Database, logger *slog.Logger) *sqliteSessionRepository {
	return &sqliteSessionRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

func weekdayFlags(weekdays []time.Weekday) [7]int {
	var flags [7]int
	for _, d := range weekdays {
		if d >= time.Sunday && d <= time.Saturday {
			flags[d] = 1
		}
	}
	return flags
}

// Create inserts a new session.
func (r *sqliteSessionRepository) Create(ctx context.Context, s Session) error {
	f := weekdayFlags(s.Weekdays)
	_, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO sessions (
			id, category, difficulty, template_id, duration_weeks, current_week,
			sunday, monday, tuesday, wednesday, thursday, friday, saturday,
			enrolled_on, active, adaptation_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Category, s.Difficulty, s.TemplateID, s.DurationWeeks, s.CurrentWeek,
		f[0], f[1], f[2], f[3], f[4], f[5], f[6],
		s.EnrolledOn.Format(dateFormat), boolToInt(s.Active), s.AdaptationCount)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

// Get retrieves a session by ID. It returns [ErrSessionNotFound] when the session does not exist.
func (r *sqliteSessionRepository) Get(ctx context.Context, id string) (Session, error) {
	var (
		s                 Session
		flags             [7]int
		enrolledOn        string
		active            int
		lastRegeneratedAt sql.NullString
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT id, category, difficulty, template_id, duration_weeks, current_week,
		       sunday, monday, tuesday, wednesday, thursday, friday, saturday,
		       enrolled_on, active, last_regenerated_at, adaptation_count
		FROM sessions
		WHERE id = ?`, id).Scan(
		&s.ID, &s.Category, &s.Difficulty, &s.TemplateID, &s.DurationWeeks, &s.CurrentWeek,
		&flags[0], &flags[1], &flags[2], &flags[3], &flags[4], &flags[5], &flags[6],
		&enrolledOn, &active, &lastRegeneratedAt, &s.AdaptationCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}

	for d, on := range flags {
		if on == 1 {
			s.Weekdays = append(s.Weekdays, time.Weekday(d))
		}
	}
	if s.EnrolledOn, err = time.Parse(dateFormat, enrolledOn); err != nil {
		return Session{}, fmt.Errorf("parse enrolled_on: %w", err)
	}
	if s.LastRegeneratedAt, err = parseTimestamp(lastRegeneratedAt); err != nil {
		return Session{}, fmt.Errorf("parse last_regenerated_at: %w", err)
	}
	s.Active = active == 1
	return s, nil
}

// ListActive returns the IDs of all active sessions.
func (r *sqliteSessionRepository) ListActive(ctx context.Context) ([]string, error) {
	return r.listIDs(ctx, true)
}

// ListInactive returns the IDs of all inactive sessions.
func (r *sqliteSessionRepository) ListInactive(ctx context.Context) ([]string, error) {
	return r.listIDs(ctx, false)
}

func (r *sqliteSessionRepository) listIDs(ctx context.Context, active bool) (_ []string, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx,
		`SELECT id FROM sessions WHERE active = ? ORDER BY id`, boolToInt(active))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

// SetActive activates or deactivates the session.
func (r *sqliteSessionRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, id, "update active", `UPDATE sessions SET active = ? WHERE id = ?`, boolToInt(active), id)
}

// MarkRegenerated stores the program week and weekdays the workflow was generated for together with the generation
// time. Adapted generations also increment the adaptation count.
func (r *sqliteSessionRepository) MarkRegenerated(ctx context.Context, s Session, at time.Time, adapted bool) error {
	f := weekdayFlags(s.Weekdays)
	return r.update(ctx, s.ID, "mark regenerated", `
		UPDATE sessions
		SET current_week = ?,
			sunday = ?, monday = ?, tuesday = ?, wednesday = ?, thursday = ?, friday = ?, saturday = ?,
			last_regenerated_at = ?, adaptation_count = adaptation_count + ?
		WHERE id = ?`, s.CurrentWeek, f[0], f[1], f[2], f[3], f[4], f[5], f[6],
		formatTimestamp(at), boolToInt(adapted), s.ID)
}

func (r *sqliteSessionRepository) update(ctx context.Context, id, op, query string, args ...any) error {
	result, err := r.db.ReadWrite.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// sortedWeekdays returns a deduplicated copy of weekdays in Sunday-first order.
func sortedWeekdays(weekdays []time.Weekday) []time.Weekday {
	out := slices.Clone(weekdays)
	slices.Sort(out)
	return slices.Compact(out)
}
