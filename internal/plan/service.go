package plan

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/ruckplan/internal/errors"
	"github.com/myrjola/ruckplan/internal/logging"
	"github.com/myrjola/ruckplan/internal/sqlite"
)

// Defaults of the generation window and workflow validity.
const (
	DefaultWindowWeeks = 4
	DefaultValidity    = 4 * 7 * 24 * time.Hour
)

// Archiver keeps superseded workflows for later download.
type Archiver interface {
	Archive(ctx context.Context, w GeneratedWorkflow) error
	// PresignedURL returns a time-limited download link for an archived workflow.
	PresignedURL(ctx context.Context, sessionID, workflowID string) (string, error)
}

// Service generates, caches and adapts the training workflows of enrolled sessions.
//
// Generation and regeneration of one session are serialized; different sessions proceed in parallel.
type Service struct {
	db          *sqlite.Database
	repo        *repository
	logger      *slog.Logger
	catalog     *Catalog
	clock       Clock
	archiver    Archiver
	rules       []ProgressionRule
	windowWeeks int
	validity    time.Duration
	locks       *keyedMutex
}

// Option configures a [Service].
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithWorkflowStore replaces the SQLite workflow cache store.
func WithWorkflowStore(store WorkflowStore) Option {
	return func(s *Service) { s.repo.workflows = NewWorkflowCache(store) }
}

// WithAdaptationStore replaces the SQLite adaptation history.
func WithAdaptationStore(store AdaptationStore) Option {
	return func(s *Service) { s.repo.adaptations = store }
}

// WithArchiver archives superseded workflows.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithProgressionRules replaces [DefaultProgressionRules].
func WithProgressionRules(rules []ProgressionRule) Option {
	return func(s *Service) { s.rules = rules }
}

// WithWindowWeeks sets how many weeks a workflow covers.
func WithWindowWeeks(weeks int) Option {
	return func(s *Service) {
		if weeks > 0 {
			s.windowWeeks = weeks
		}
	}
}

// WithValidity sets how long a generated workflow stays valid.
func WithValidity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.validity = d
		}
	}
}

// NewService creates a new plan service. Malformed progression rules are rejected with [ErrInvalidParameters].
func NewService(db *sqlite.Database, logger *slog.Logger, catalog *Catalog, opts ...Option) (*Service, error) {
	factory := newRepositoryFactory(db, logger)
	s := &Service{
		db:          db,
		repo:        factory.newRepository(),
		logger:      logger,
		catalog:     catalog,
		clock:       SystemClock{},
		archiver:    nil,
		rules:       DefaultProgressionRules(),
		windowWeeks: DefaultWindowWeeks,
		validity:    DefaultValidity,
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, r := range s.rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("progression rules: %w", err)
		}
	}
	return s, nil
}

// Catalog returns the template catalog the service selects from.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Enroll creates a session for the program matching the enrollment and generates its first workflow.
func (s *Service) Enroll(ctx context.Context, e Enrollment) (Session, error) {
	if e.Category == "" || e.Difficulty == "" {
		return Session{}, fmt.Errorf("%w: category and difficulty are required", ErrInvalidParameters)
	}
	weekdays, err := validateWeekdays(e.Weekdays)
	if err != nil {
		return Session{}, err
	}
	start := e.StartDate
	if start.IsZero() {
		start = s.clock.Now()
	}
	t := s.catalog.SelectTemplate(e.Category, e.Difficulty)
	session := Session{
		ID:                uuid.NewString(),
		Category:          e.Category,
		Difficulty:        e.Difficulty,
		TemplateID:        t.ID,
		DurationWeeks:     t.DurationWeeks,
		CurrentWeek:       1,
		Weekdays:          weekdays,
		EnrolledOn:        truncateToDay(start),
		Active:            true,
		LastRegeneratedAt: time.Time{},
		AdaptationCount:   0,
	}
	ctx = logging.WithSessionID(ctx, session.ID)
	if err = s.repo.sessions.Create(ctx, session); err != nil {
		return Session{}, errors.Wrap(err, "create session")
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "enrolled session",
		slog.String("template_id", t.ID), slog.Int("duration_weeks", t.DurationWeeks))

	unlock := s.locks.Lock(session.ID)
	defer unlock()
	if _, err = s.generateLocked(ctx, session); err != nil {
		return Session{}, errors.Wrap(err, "generate initial workflow")
	}
	return s.Session(ctx, session.ID)
}

func validateWeekdays(weekdays []time.Weekday) ([]time.Weekday, error) {
	if len(weekdays) == 0 {
		return nil, fmt.Errorf("%w: at least one training weekday is required", ErrInvalidParameters)
	}
	for _, d := range weekdays {
		if d < time.Sunday || d > time.Saturday {
			return nil, fmt.Errorf("%w: invalid weekday %d", ErrInvalidParameters, d)
		}
	}
	return sortedWeekdays(weekdays), nil
}

// ParseWeekday parses an English weekday name or its three letter abbreviation, ignoring case.
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := d.String()
		if strings.EqualFold(name, full) || strings.EqualFold(name, full[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidParameters, name)
}

// Session returns a session whether active or not.
func (s *Service) Session(ctx context.Context, sessionID string) (Session, error) {
	session, err := s.repo.sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, errors.Wrap(err, "get session", slog.String("session_id", sessionID))
	}
	return session, nil
}

// activeSession returns the session or [ErrSessionNotFound] when it does not exist or is no longer active.
func (s *Service) activeSession(ctx context.Context, sessionID string) (Session, error) {
	session, err := s.repo.sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !session.Active {
		return Session{}, fmt.Errorf("%w: %s is inactive", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// metrics returns the latest performance snapshot or [NeutralPerformance] when none was recorded.
func (s *Service) metrics(ctx context.Context, sessionID string) (PerformanceMetrics, error) {
	m, err := s.repo.performance.Latest(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return NeutralPerformance(), nil
	}
	if err != nil {
		return PerformanceMetrics{}, fmt.Errorf("latest performance: %w", err)
	}
	return m, nil
}

// Generate generates a new workflow for the session and caches it.
func (s *Service) Generate(ctx context.Context, sessionID string) (GeneratedWorkflow, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return GeneratedWorkflow{}, errors.Wrap(err, "generate", slog.String("session_id", sessionID))
	}
	w, err := s.generateLocked(ctx, session)
	if err != nil {
		return GeneratedWorkflow{}, errors.Wrap(err, "generate", slog.String("session_id", sessionID))
	}
	return w, nil
}

// buildLocked runs the generation pipeline for the session without writing anything. It returns the workflow and the
// performance it was adapted to. The caller holds the session lock.
func (s *Service) buildLocked(ctx context.Context, session Session) (GeneratedWorkflow, PerformanceMetrics, error) {
	metrics, err := s.metrics(ctx, session.ID)
	if err != nil {
		return GeneratedWorkflow{}, PerformanceMetrics{}, err
	}
	template, err := s.catalog.Template(session.TemplateID)
	if err != nil {
		return GeneratedWorkflow{}, PerformanceMetrics{}, err
	}

	g := generator{
		session:     session,
		template:    template,
		metrics:     metrics,
		rules:       s.rules,
		windowWeeks: s.windowWeeks,
		validity:    s.validity,
		now:         s.clock.Now(),
	}
	w, result, err := g.generate()
	if err != nil {
		return GeneratedWorkflow{}, PerformanceMetrics{}, err
	}
	if result.Truncated {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "schedule truncated",
			slog.Int("unscheduled", result.Unscheduled), slog.Int("scheduled", len(result.Workouts)),
			slog.Int("max_days", MaxScheduleDays))
	}
	return w, metrics, nil
}

// generateLocked generates a workflow for the session and writes it to the cache. Nothing is written when generation
// fails. The caller holds the session lock.
func (s *Service) generateLocked(ctx context.Context, session Session) (GeneratedWorkflow, error) {
	w, _, err := s.buildLocked(ctx, session)
	if err != nil {
		return GeneratedWorkflow{}, err
	}
	if err = s.repo.workflows.Put(ctx, w); err != nil {
		return GeneratedWorkflow{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if err = s.repo.sessions.MarkRegenerated(ctx, session, w.GeneratedAt, false); err != nil {
		return GeneratedWorkflow{}, fmt.Errorf("mark regenerated: %w", err)
	}
	s.logGenerated(ctx, w)
	return w, nil
}

func (s *Service) logGenerated(ctx context.Context, w GeneratedWorkflow) {
	attrs := []slog.Attr{
		slog.String("workflow_id", w.ID),
		slog.String("template_id", w.TemplateID),
		slog.String("strategy", string(w.Strategy)),
		slog.Int("start_week", w.StartWeek),
		slog.Int("workouts", len(w.Workouts)),
	}
	if w.AppliedRule != nil {
		attrs = append(attrs, slog.String("applied_rule", w.AppliedRule.Name))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "generated workflow", attrs...)
}

// Regenerate supersedes the current workflow of the session with a freshly generated one and appends an adaptation
// record capturing the reason and the performance at the time.
func (s *Service) Regenerate(ctx context.Context, sessionID string, reason RegenerationReason) (GeneratedWorkflow, error) {
	if !reason.IsValid() {
		return GeneratedWorkflow{}, fmt.Errorf("%w: unknown regeneration reason %q", ErrInvalidParameters, reason)
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return GeneratedWorkflow{}, errors.Wrap(err, "regenerate", slog.String("session_id", sessionID))
	}
	w, err := s.regenerateLocked(ctx, session, reason)
	if err != nil {
		return GeneratedWorkflow{}, errors.Wrap(err, "regenerate", slog.String("session_id", sessionID),
			slog.String("reason", string(reason)))
	}
	return w, nil
}

// regenerateLocked generates a workflow for session and commits it in the order cache, adaptation history, session.
// The week and weekdays of session are persisted with the bookkeeping, so callers change them in memory only. A
// failed generation writes nothing and a failed history append restores the previous cache entry.
func (s *Service) regenerateLocked(
	ctx context.Context,
	session Session,
	reason RegenerationReason,
) (GeneratedWorkflow, error) {
	w, metrics, err := s.buildLocked(ctx, session)
	if err != nil {
		return GeneratedWorkflow{}, err
	}

	previous, hasPrevious := s.cachedWorkflow(ctx, session.ID)
	record := AdaptationRecord{
		ID:                 uuid.NewString(),
		SessionID:          session.ID,
		Reason:             reason,
		Metrics:            metrics,
		PreviousWorkflowID: "",
		CreatedAt:          w.GeneratedAt,
	}
	if hasPrevious {
		record.PreviousWorkflowID = previous.ID
	}

	if err = s.repo.workflows.Put(ctx, w); err != nil {
		return GeneratedWorkflow{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if err = s.repo.adaptations.Append(ctx, record); err != nil {
		s.restoreCache(ctx, session.ID, previous, hasPrevious)
		return GeneratedWorkflow{}, fmt.Errorf("append adaptation record: %w", err)
	}
	if err = s.repo.sessions.MarkRegenerated(ctx, session, w.GeneratedAt, true); err != nil {
		return GeneratedWorkflow{}, fmt.Errorf("mark regenerated: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "regenerated workflow",
		slog.String("reason", string(reason)), slog.String("previous_workflow_id", record.PreviousWorkflowID),
		slog.Float64("consistency", metrics.Consistency), slog.Float64("progress_trend", metrics.ProgressTrend))
	s.logGenerated(ctx, w)

	if hasPrevious {
		s.archive(ctx, previous)
	}
	return w, nil
}

// restoreCache puts back the workflow that was cached before a failed regeneration.
func (s *Service) restoreCache(ctx context.Context, sessionID string, previous GeneratedWorkflow, ok bool) {
	var err error
	if ok {
		err = s.repo.workflows.Put(ctx, previous)
	} else {
		err = s.repo.workflows.Delete(ctx, sessionID)
	}
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "restore cached workflow", errors.SlogError(err))
	}
}

// cachedWorkflow returns the cached workflow if one can be read. Corrupted entries count as missing.
func (s *Service) cachedWorkflow(ctx context.Context, sessionID string) (GeneratedWorkflow, bool) {
	w, err := s.repo.workflows.Get(ctx, sessionID)
	switch {
	case err == nil:
		return w, true
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrCacheCorrupted):
		s.logger.LogAttrs(ctx, slog.LevelWarn, "discarding corrupted cached workflow", errors.SlogError(err))
	default:
		s.logger.LogAttrs(ctx, slog.LevelWarn, "read cached workflow", errors.SlogError(err))
	}
	return GeneratedWorkflow{}, false
}

// archive stores a superseded workflow. Failures are logged and otherwise ignored.
func (s *Service) archive(ctx context.Context, w GeneratedWorkflow) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, w); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "archive superseded workflow",
			slog.String("workflow_id", w.ID), errors.SlogError(err))
	}
}

// Workflow returns the active workflow of the session. The cached workflow is used while it is valid; a missing,
// corrupted or expired entry is replaced by a newly generated one.
func (s *Service) Workflow(ctx context.Context, sessionID string) (ActiveWorkflow, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return ActiveWorkflow{}, errors.Wrap(err, "workflow", slog.String("session_id", sessionID))
	}

	w, err := s.repo.workflows.Get(ctx, sessionID)
	switch {
	case err == nil && !w.IsExpired(s.clock.Now()):
	case err == nil:
		s.logger.LogAttrs(ctx, slog.LevelInfo, "cached workflow expired",
			slog.String("workflow_id", w.ID), slog.Time("valid_until", w.ValidUntil))
		w, err = s.regenerateLocked(ctx, session, ReasonExpired)
	case errors.Is(err, ErrNotFound):
		w, err = s.generateLocked(ctx, session)
	case errors.Is(err, ErrCacheCorrupted):
		s.logger.LogAttrs(ctx, slog.LevelWarn, "regenerating corrupted cached workflow", errors.SlogError(err))
		w, err = s.generateLocked(ctx, session)
	}
	if err != nil {
		return ActiveWorkflow{}, errors.Wrap(err, "workflow", slog.String("session_id", sessionID))
	}

	if session, err = s.repo.sessions.Get(ctx, sessionID); err != nil {
		return ActiveWorkflow{}, errors.Wrap(err, "reload session")
	}
	return ActiveWorkflow{
		Workflow:          w,
		CurrentWeek:       session.CurrentWeek,
		LastRegeneratedAt: session.LastRegeneratedAt,
		AdaptationCount:   session.AdaptationCount,
	}, nil
}

// Schedule returns the calendar of the active workflow. Entries are completed when a completion was recorded for the
// workout and locked when their date lies after today.
func (s *Service) Schedule(ctx context.Context, sessionID string) ([]ScheduledWorkout, error) {
	active, err := s.Workflow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	completions, err := s.repo.completions.List(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "list completions", slog.String("session_id", sessionID))
	}
	today := truncateToDay(s.clock.Now())
	schedule := make([]ScheduledWorkout, 0, len(active.Workflow.Workouts))
	for _, w := range active.Workflow.Workouts {
		entry := scheduleEntry(w)
		_, entry.Completed = completions[w.ID]
		entry.Locked = truncateToDay(entry.Date).After(today)
		schedule = append(schedule, entry)
	}
	return schedule, nil
}

// CheckRegeneration reports whether the session's workflow should be regenerated. It never regenerates.
func (s *Service) CheckRegeneration(ctx context.Context, sessionID string) (RegenerationCheck, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return RegenerationCheck{}, errors.Wrap(err, "check regeneration",
			slog.String("session_id", sessionID))
	}
	metrics, err := s.metrics(ctx, session.ID)
	if err != nil {
		return RegenerationCheck{}, errors.Wrap(err, "check regeneration")
	}
	check := RegenerationCheck{
		SessionID:         session.ID,
		WorkflowID:        "",
		GeneratedAt:       time.Time{},
		Expired:           false,
		NeedsRegeneration: true,
		Reasons:           []RegenerationReason{ReasonInitial},
		Metrics:           metrics,
	}
	w, ok := s.cachedWorkflow(ctx, session.ID)
	if !ok {
		return check, nil
	}
	now := s.clock.Now()
	check.WorkflowID = w.ID
	check.GeneratedAt = w.GeneratedAt
	check.Expired = w.IsExpired(now)
	check.Reasons = w.RegenerationReasons(now, metrics)
	check.NeedsRegeneration = len(check.Reasons) > 0
	return check, nil
}

// RecordPerformance stores a performance snapshot for the session. A zero RecordedAt is set to now.
func (s *Service) RecordPerformance(ctx context.Context, sessionID string, m PerformanceMetrics) error {
	if err := validateMetrics(m); err != nil {
		return err
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = s.clock.Now()
	}
	if _, err := s.repo.sessions.Get(ctx, sessionID); err != nil {
		return errors.Wrap(err, "record performance", slog.String("session_id", sessionID))
	}
	if err := s.repo.performance.Record(ctx, sessionID, m); err != nil {
		return errors.Wrap(err, "record performance", slog.String("session_id", sessionID))
	}
	return nil
}

func validateMetrics(m PerformanceMetrics) error {
	for name, v := range map[string]float64{
		"consistency":           m.Consistency,
		"average effort":        m.AverageEffort,
		"progress trend":        m.ProgressTrend,
		"completion time ratio": m.CompletionTimeRatio,
		"heart rate recovery":   m.HeartRateRecovery,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidParameters, name)
		}
	}
	switch {
	case m.Consistency < 0 || m.Consistency > 1:
		return fmt.Errorf("%w: consistency %.2f outside [0, 1]", ErrInvalidParameters, m.Consistency)
	case m.AverageEffort < 0:
		return fmt.Errorf("%w: negative average effort", ErrInvalidParameters)
	case m.CompletionTimeRatio < 0 || m.HeartRateRecovery < 0 || m.MissedWorkouts < 0:
		return fmt.Errorf("%w: negative observation", ErrInvalidParameters)
	case m.FeedbackRating < 0 || m.FeedbackRating > 5:
		return fmt.Errorf("%w: feedback rating %d outside 1 to 5", ErrInvalidParameters, m.FeedbackRating)
	}
	return nil
}

// RecordCompletion marks a workout of the current workflow as completed.
func (s *Service) RecordCompletion(ctx context.Context, sessionID, workoutID string) error {
	ctx = logging.WithSessionID(ctx, sessionID)
	if _, err := s.activeSession(ctx, sessionID); err != nil {
		return errors.Wrap(err, "record completion", slog.String("session_id", sessionID))
	}
	w, ok := s.cachedWorkflow(ctx, sessionID)
	if !ok || !slices.ContainsFunc(w.Workouts, func(p PlannedWorkout) bool { return p.ID == workoutID }) {
		return errors.Wrap(fmt.Errorf("%w: workout %s", ErrNotFound, workoutID), "record completion",
			slog.String("session_id", sessionID))
	}
	if err := s.repo.completions.Complete(ctx, sessionID, workoutID, s.clock.Now()); err != nil {
		return errors.Wrap(err, "record completion", slog.String("session_id", sessionID))
	}
	return nil
}

// UpdateWeekdays changes the preferred training weekdays and regenerates the workflow. The weekdays are only stored
// when the regeneration succeeds.
func (s *Service) UpdateWeekdays(ctx context.Context, sessionID string, weekdays []time.Weekday) (GeneratedWorkflow, error) {
	weekdays, err := validateWeekdays(weekdays)
	if err != nil {
		return GeneratedWorkflow{}, err
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return GeneratedWorkflow{}, errors.Wrap(err, "update weekdays", slog.String("session_id", sessionID))
	}
	session.Weekdays = weekdays
	w, err := s.regenerateLocked(ctx, session, ReasonScheduleChanged)
	if err != nil {
		return GeneratedWorkflow{}, errors.Wrap(err, "update weekdays", slog.String("session_id", sessionID))
	}
	return w, nil
}

// AdvanceWeek moves the session to its next program week and regenerates. The week only advances when the
// regeneration succeeds. A session advancing past the last week of a fixed-length program is deactivated and its
// cached workflow removed.
func (s *Service) AdvanceWeek(ctx context.Context, sessionID string) (Session, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return Session{}, errors.Wrap(err, "advance week", slog.String("session_id", sessionID))
	}
	next := session.CurrentWeek + 1
	if session.DurationWeeks > 0 && next > session.DurationWeeks {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "program completed", slog.Int("duration_weeks", session.DurationWeeks))
		if err = s.deactivateLocked(ctx, sessionID); err != nil {
			return Session{}, errors.Wrap(err, "advance week")
		}
		return s.Session(ctx, sessionID)
	}
	session.CurrentWeek = next
	if _, err = s.regenerateLocked(ctx, session, ReasonWeekAdvanced); err != nil {
		return Session{}, errors.Wrap(err, "advance week")
	}
	return s.Session(ctx, sessionID)
}

// Deactivate ends the session and prunes its cached workflow.
func (s *Service) Deactivate(ctx context.Context, sessionID string) error {
	ctx = logging.WithSessionID(ctx, sessionID)
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	if err := s.deactivateLocked(ctx, sessionID); err != nil {
		return errors.Wrap(err, "deactivate", slog.String("session_id", sessionID))
	}
	return nil
}

func (s *Service) deactivateLocked(ctx context.Context, sessionID string) error {
	if err := s.repo.sessions.SetActive(ctx, sessionID, false); err != nil {
		return err
	}
	previous, ok := s.cachedWorkflow(ctx, sessionID)
	if err := s.repo.workflows.Delete(ctx, sessionID); err != nil {
		return err
	}
	if ok {
		s.archive(ctx, previous)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "deactivated session")
	return nil
}

// AdaptationHistory returns the regeneration history of the session oldest first.
func (s *Service) AdaptationHistory(ctx context.Context, sessionID string) ([]AdaptationRecord, error) {
	if _, err := s.repo.sessions.Get(ctx, sessionID); err != nil {
		return nil, errors.Wrap(err, "adaptation history", slog.String("session_id", sessionID))
	}
	records, err := s.repo.adaptations.List(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "adaptation history", slog.String("session_id", sessionID))
	}
	return records, nil
}

// ArchiveURL returns a download link for an archived workflow. It returns [ErrNotFound] when archiving is disabled.
func (s *Service) ArchiveURL(ctx context.Context, sessionID, workflowID string) (string, error) {
	if s.archiver == nil {
		return "", fmt.Errorf("%w: archiving is disabled", ErrNotFound)
	}
	if _, err := s.repo.sessions.Get(ctx, sessionID); err != nil {
		return "", errors.Wrap(err, "archive url", slog.String("session_id", sessionID))
	}
	url, err := s.archiver.PresignedURL(ctx, sessionID, workflowID)
	if err != nil {
		return "", errors.Wrap(err, "archive url", slog.String("session_id", sessionID),
			slog.String("workflow_id", workflowID))
	}
	return url, nil
}

// ExportSession writes the session with its performance, completion and adaptation history into a standalone SQLite
// file in dir and returns its path. Workflows cached outside SQLite are not part of the export.
func (s *Service) ExportSession(ctx context.Context, sessionID, dir string) (string, error) {
	path, err := s.db.ExportSession(ctx, sessionID, dir)
	if errors.Is(err, sqlite.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return "", errors.Wrap(err, "export session", slog.String("session_id", sessionID))
	}
	return path, nil
}

// ActiveSessions returns the IDs of all active sessions.
func (s *Service) ActiveSessions(ctx context.Context) ([]string, error) {
	ids, err := s.repo.sessions.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active sessions")
	}
	return ids, nil
}

// PruneCache removes the cached workflows of inactive sessions and entries that have been expired for longer than the
// validity period. It returns the number of removed entries.
func (s *Service) PruneCache(ctx context.Context) (int, error) {
	inactive, err := s.repo.sessions.ListInactive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list inactive sessions")
	}
	removed := 0
	for _, id := range inactive {
		if _, err = s.repo.workflows.Get(ctx, id); errors.Is(err, ErrNotFound) {
			continue
		}
		if err = s.repo.workflows.Delete(ctx, id); err != nil {
			return removed, errors.Wrap(err, "prune inactive session", slog.String("session_id", id))
		}
		removed++
	}
	n, err := s.repo.workflows.Prune(ctx, s.clock.Now().Add(-s.validity))
	if err != nil {
		return removed, errors.Wrap(err, "prune stale workflows")
	}
	return removed + n, nil
}
