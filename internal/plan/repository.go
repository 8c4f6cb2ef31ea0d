package plan

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/ruckplan/internal/sqlite"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"
const dateFormat = time.DateOnly

// AdaptationStore keeps the append-only regeneration history of sessions.
type AdaptationStore interface {
	Append(ctx context.Context, record AdaptationRecord) error
	// List returns the records of a session oldest first.
	List(ctx context.Context, sessionID string) ([]AdaptationRecord, error)
}

// sessionRepository is the session provider of the engine.
type sessionRepository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	ListActive(ctx context.Context) ([]string, error)
	ListInactive(ctx context.Context) ([]string, error)
	SetActive(ctx context.Context, id string, active bool) error
	// MarkRegenerated persists the week and weekdays of s with the bookkeeping of a generation in one write.
	MarkRegenerated(ctx context.Context, s Session, at time.Time, adapted bool) error
}

// performanceRepository is the performance provider of the engine.
type performanceRepository interface {
	Record(ctx context.Context, sessionID string, m PerformanceMetrics) error
	// Latest returns [ErrNotFound] when nothing has been recorded for the session.
	Latest(ctx context.Context, sessionID string) (PerformanceMetrics, error)
}

type completionRepository interface {
	Complete(ctx context.Context, sessionID, workoutID string, at time.Time) error
	List(ctx context.Context, sessionID string) (map[string]time.Time, error)
}

// repository groups the stores the service reads and writes.
type repository struct {
	sessions    sessionRepository
	performance performanceRepository
	completions completionRepository
	adaptations AdaptationStore
	workflows   *WorkflowCache
}

type baseRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newBaseRepository(db *sqlite.Database, logger *slog.Logger) baseRepository {
	return baseRepository{db: db, logger: logger}
}

// repositoryFactory creates the SQLite-backed repositories.
type repositoryFactory struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newRepositoryFactory(db *sqlite.Database, logger *slog.Logger) *repositoryFactory {
	return &repositoryFactory{db: db, logger: logger}
}

func (f *repositoryFactory) newRepository() *repository {
	return &repository{
		sessions:    newSQLiteSessionRepository(f.db, f.logger),
		performance: newSQLitePerformanceRepository(f.db, f.logger),
		completions: newSQLiteCompletionRepository(f.db, f.logger),
		adaptations: NewSQLiteAdaptationStore(f.db, f.logger),
		workflows:   NewWorkflowCache(NewSQLiteWorkflowStore(f.db, f.logger)),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func parseTimestamp(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timestampFormat, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
