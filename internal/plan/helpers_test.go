package plan_test

import (
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/myrjola/ruckplan/internal/sqlite"
	"github.com/myrjola/ruckplan/internal/testhelpers"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return testhelpers.Logger(t)
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{mu: sync.Mutex{}, now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// monday is a Monday morning used as "now" across tests.
//
//nolint:gochecknoglobals // test fixture.
var monday = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, clock plan.Clock, opts ...plan.Option) (*plan.Service, *sqlite.Database) {
	t.Helper()
	return newTestServiceAt(t, ":memory:", clock, opts...)
}

// newFileTestService backs the service with a database file for tests running concurrent writers.
func newFileTestService(t *testing.T, clock plan.Clock, opts ...plan.Option) (*plan.Service, *sqlite.Database) {
	t.Helper()
	return newTestServiceAt(t, filepath.Join(t.TempDir(), "test.sqlite3"), clock, opts...)
}

func newTestServiceAt(t *testing.T, url string, clock plan.Clock, opts ...plan.Option) (*plan.Service, *sqlite.Database) {
	t.Helper()
	ctx := t.Context()
	logger := testLogger(t)
	db, err := sqlite.NewDatabase(ctx, url, logger)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})
	catalog := plan.NewCatalog(logger, plan.BuiltinTemplates()...)
	opts = append([]plan.Option{plan.WithClock(clock)}, opts...)
	svc, err := plan.NewService(db, logger, catalog, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, db
}

func enroll(t *testing.T, svc *plan.Service, category plan.Category, difficulty plan.Difficulty,
	weekdays ...time.Weekday) plan.Session {
	t.Helper()
	session, err := svc.Enroll(t.Context(), plan.Enrollment{
		Category:   category,
		Difficulty: difficulty,
		Weekdays:   weekdays,
		StartDate:  time.Time{},
	})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	return session
}
