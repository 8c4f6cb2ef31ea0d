package plan_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/myrjola/ruckplan/internal/sqlite"
)

func TestService_Enroll(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, newFakeClock(monday))

	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner,
		time.Friday, time.Monday, time.Wednesday, time.Monday)

	want := plan.Session{
		ID:                session.ID,
		Category:          plan.CategoryMilitary,
		Difficulty:        plan.DifficultyBeginner,
		TemplateID:        "military-foundation",
		DurationWeeks:     8,
		CurrentWeek:       1,
		Weekdays:          []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		EnrolledOn:        time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		Active:            true,
		LastRegeneratedAt: monday,
		AdaptationCount:   0,
	}
	if diff := cmp.Diff(want, session); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}

	ids, err := svc.ActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if !slices.Contains(ids, session.ID) {
		t.Errorf("ActiveSessions() = %v, missing %s", ids, session.ID)
	}

	tests := []struct {
		name string
		e    plan.Enrollment
	}{
		{"no weekdays", plan.Enrollment{
			Category: plan.CategoryMilitary, Difficulty: plan.DifficultyBeginner, Weekdays: nil, StartDate: time.Time{},
		}},
		{"invalid weekday", plan.Enrollment{
			Category: plan.CategoryMilitary, Difficulty: plan.DifficultyBeginner, Weekdays: []time.Weekday{9},
			StartDate: time.Time{},
		}},
		{"missing category", plan.Enrollment{
			Category: "", Difficulty: plan.DifficultyBeginner, Weekdays: []time.Weekday{time.Monday},
			StartDate: time.Time{},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err = svc.Enroll(ctx, tt.e); !errors.Is(err, plan.ErrInvalidParameters) {
				t.Errorf("Enroll() = %v, want ErrInvalidParameters", err)
			}
		})
	}
}

func TestService_Workflow(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, newFakeClock(monday))
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday, time.Wednesday, time.Friday)

	active, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	w := active.Workflow
	if w.SessionID != session.ID || w.TemplateID != "military-foundation" || w.StartWeek != 1 {
		t.Errorf("workflow header = %s %s week %d", w.SessionID, w.TemplateID, w.StartWeek)
	}
	if !w.GeneratedAt.Equal(monday) || !w.ValidUntil.Equal(monday.Add(plan.DefaultValidity)) {
		t.Errorf("validity = %s..%s", w.GeneratedAt, w.ValidUntil)
	}
	if w.Strategy != plan.StrategyModerate || w.AppliedRule != nil {
		t.Errorf("neutral performance produced strategy %s and rule %v", w.Strategy, w.AppliedRule)
	}
	if len(w.Workouts) == 0 {
		t.Fatal("workflow has no workouts")
	}
	if first := w.Workouts[0].ScheduledDate; first.Format(time.DateOnly) != "2026-03-02" {
		t.Errorf("first workout on %s, want today", first)
	}
	seen := make(map[string]bool)
	for i, pw := range w.Workouts {
		if pw.Type == plan.WorkoutTypeRest {
			t.Errorf("rest workout %s in workflow", pw.ID)
		}
		if pw.Week < w.StartWeek || pw.Week >= w.StartWeek+plan.DefaultWindowWeeks {
			t.Errorf("workout %d in program week %d outside the window", i, pw.Week)
		}
		if seen[pw.ID] {
			t.Errorf("duplicate workout ID %s", pw.ID)
		}
		seen[pw.ID] = true
		if !slices.Contains([]time.Weekday{time.Monday, time.Wednesday, time.Friday}, pw.ScheduledDate.Weekday()) {
			t.Errorf("workout %d on %s", i, pw.ScheduledDate.Weekday())
		}
		if i > 0 && !pw.ScheduledDate.After(w.Workouts[i-1].ScheduledDate) {
			t.Errorf("workout %d date %s not after previous", i, pw.ScheduledDate)
		}
		if pw.EstimatedDuration != pw.Structure.EstimatedDuration {
			t.Errorf("workout %d duration %s differs from its structure", i, pw.EstimatedDuration)
		}
	}

	again, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if again.Workflow.ID != w.ID {
		t.Errorf("valid cached workflow was regenerated: %s != %s", again.Workflow.ID, w.ID)
	}
}

func TestService_SessionNotFound(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, newFakeClock(monday))

	if _, err := svc.Workflow(ctx, "missing"); !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("Workflow() = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Generate(ctx, "missing"); !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("Generate() = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Regenerate(ctx, "missing", plan.ReasonManual); !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("Regenerate() = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.CheckRegeneration(ctx, "missing"); !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("CheckRegeneration() = %v, want ErrSessionNotFound", err)
	}
	err := svc.RecordPerformance(ctx, "missing", plan.NeutralPerformance())
	if !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("RecordPerformance() = %v, want ErrSessionNotFound", err)
	}
}

func TestService_Regenerate(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock(monday)
	svc, _ := newTestService(t, clock)
	session := enroll(t, svc, plan.CategoryGeneral, plan.DifficultyBeginner, time.Tuesday, time.Thursday)

	before, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}

	clock.Advance(time.Hour)
	w, err := svc.Regenerate(ctx, session.ID, plan.ReasonManual)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if w.ID == before.Workflow.ID {
		t.Errorf("regenerated workflow kept ID %s", w.ID)
	}

	after, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if after.Workflow.ID != w.ID {
		t.Errorf("cached workflow = %s, want %s", after.Workflow.ID, w.ID)
	}
	if after.AdaptationCount != 1 || !after.LastRegeneratedAt.Equal(monday.Add(time.Hour)) {
		t.Errorf("bookkeeping = %d at %s", after.AdaptationCount, after.LastRegeneratedAt)
	}

	history, err := svc.AdaptationHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d records, want 1", len(history))
	}
	record := history[0]
	if record.Reason != plan.ReasonManual || record.PreviousWorkflowID != before.Workflow.ID ||
		record.SessionID != session.ID {
		t.Errorf("record = %+v", record)
	}
	if diff := cmp.Diff(plan.NeutralPerformance(), record.Metrics); diff != "" {
		t.Errorf("recorded metrics mismatch (-want +got):\n%s", diff)
	}

	if _, err = svc.Regenerate(ctx, session.ID, "bored"); !errors.Is(err, plan.ErrInvalidParameters) {
		t.Errorf("Regenerate() with unknown reason = %v, want ErrInvalidParameters", err)
	}
}

func TestService_WorkflowRecoversCorruptedCache(t *testing.T) {
	ctx := t.Context()
	svc, db := newTestService(t, newFakeClock(monday))
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday)

	before, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, `UPDATE workflow_cache SET payload = ? WHERE session_id = ?`,
		[]byte("{garbage"), session.ID); err != nil {
		t.Fatalf("corrupt cache: %v", err)
	}

	check, err := svc.CheckRegeneration(ctx, session.ID)
	if err != nil {
		t.Fatalf("CheckRegeneration: %v", err)
	}
	if diff := cmp.Diff([]plan.RegenerationReason{plan.ReasonInitial}, check.Reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}

	after, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow after corruption: %v", err)
	}
	if after.Workflow.ID == before.Workflow.ID || len(after.Workflow.Workouts) == 0 {
		t.Errorf("corrupted cache not regenerated")
	}
}

func TestService_WorkflowRegeneratesExpired(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock(monday)
	svc, _ := newTestService(t, clock, plan.WithValidity(24*time.Hour))
	session := enroll(t, svc, plan.CategoryEndurance, plan.DifficultyBeginner, time.Monday, time.Thursday)

	before, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if !before.Workflow.ValidUntil.Equal(monday.Add(24 * time.Hour)) {
		t.Errorf("ValidUntil = %s", before.Workflow.ValidUntil)
	}

	clock.Advance(24 * time.Hour)
	after, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if after.Workflow.ID == before.Workflow.ID {
		t.Fatalf("expired workflow was served")
	}
	if first := after.Workflow.Workouts[0].ScheduledDate; first.Before(time.Date(2026, time.March, 3, 0, 0, 0, 0,
		time.UTC)) {
		t.Errorf("regenerated workflow starts in the past: %s", first)
	}

	history, err := svc.AdaptationHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	if len(history) != 1 || history[0].Reason != plan.ReasonExpired {
		t.Errorf("history = %+v, want one expired record", history)
	}
}

func TestService_Schedule(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, newFakeClock(monday))
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday, time.Wednesday)

	schedule, err := svc.Schedule(ctx, session.ID)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(schedule) < 2 {
		t.Fatalf("schedule has %d entries", len(schedule))
	}
	if schedule[0].Locked || !schedule[1].Locked {
		t.Errorf("locks = %t %t, want today unlocked and later locked", schedule[0].Locked, schedule[1].Locked)
	}
	if schedule[0].Week != 1 || schedule[0].Title == "" || schedule[0].Description == "" {
		t.Errorf("first entry = %+v", schedule[0])
	}

	if err = svc.RecordCompletion(ctx, session.ID, schedule[0].WorkoutID); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}
	if err = svc.RecordCompletion(ctx, session.ID, schedule[0].WorkoutID); err != nil {
		t.Errorf("repeated RecordCompletion: %v", err)
	}
	if err = svc.RecordCompletion(ctx, session.ID, "not-a-workout"); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("RecordCompletion() of unknown workout = %v, want ErrNotFound", err)
	}

	if schedule, err = svc.Schedule(ctx, session.ID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !schedule[0].Completed || schedule[1].Completed {
		t.Errorf("completed = %t %t, want only the first", schedule[0].Completed, schedule[1].Completed)
	}
}

func TestService_UpdateWeekdays(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, newFakeClock(monday))
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday, time.Wednesday)

	w, err := svc.UpdateWeekdays(ctx, session.ID, []time.Weekday{time.Saturday, time.Sunday})
	if err != nil {
		t.Fatalf("UpdateWeekdays: %v", err)
	}
	for _, pw := range w.Workouts {
		if d := pw.ScheduledDate.Weekday(); d != time.Saturday && d != time.Sunday {
			t.Errorf("workout %s on %s", pw.ID, d)
		}
	}

	got, err := svc.Session(ctx, session.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if diff := cmp.Diff([]time.Weekday{time.Sunday, time.Saturday}, got.Weekdays); diff != "" {
		t.Errorf("weekdays mismatch (-want +got):\n%s", diff)
	}

	history, err := svc.AdaptationHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	if len(history) != 1 || history[0].Reason != plan.ReasonScheduleChanged {
		t.Errorf("history = %+v, want one schedule_changed record", history)
	}

	if _, err = svc.UpdateWeekdays(ctx, session.ID, nil); !errors.Is(err, plan.ErrInvalidParameters) {
		t.Errorf("UpdateWeekdays(nil) = %v, want ErrInvalidParameters", err)
	}
}

func TestService_AdvanceWeek(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, newFakeClock(monday))
	session := enroll(t, svc, plan.CategoryGeneral, plan.DifficultyBeginner, time.Monday, time.Thursday)
	if session.DurationWeeks != 6 {
		t.Fatalf("duration = %d, want 6", session.DurationWeeks)
	}

	for week := 2; week <= 6; week++ {
		got, err := svc.AdvanceWeek(ctx, session.ID)
		if err != nil {
			t.Fatalf("AdvanceWeek to %d: %v", week, err)
		}
		if got.CurrentWeek != week || !got.Active {
			t.Fatalf("session = week %d active %t, want week %d", got.CurrentWeek, got.Active, week)
		}
	}

	active, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if active.Workflow.StartWeek != 6 || active.CurrentWeek != 6 {
		t.Errorf("workflow starts at week %d, session at %d", active.Workflow.StartWeek, active.CurrentWeek)
	}
	for _, pw := range active.Workflow.Workouts {
		if pw.Week != 6 || pw.Phase != plan.PhaseTaper {
			t.Errorf("last week workout %s in week %d phase %s", pw.ID, pw.Week, pw.Phase)
		}
	}
	// Week six starts 35 days after enrollment.
	if first := active.Workflow.Workouts[0].ScheduledDate; first.Before(monday.AddDate(0, 0, 35-1)) {
		t.Errorf("week six scheduled from %s", first)
	}

	done, err := svc.AdvanceWeek(ctx, session.ID)
	if err != nil {
		t.Fatalf("AdvanceWeek past the end: %v", err)
	}
	if done.Active {
		t.Errorf("session still active after the last week")
	}
	if _, err = svc.Workflow(ctx, session.ID); !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("Workflow() of finished session = %v, want ErrSessionNotFound", err)
	}

	history, err := svc.AdaptationHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	if len(history) != 5 {
		t.Errorf("history has %d records, want 5", len(history))
	}
}

func TestService_PerformanceDrivesAdaptation(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock(monday)
	svc, _ := newTestService(t, clock)
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday, time.Wednesday, time.Friday)

	invalid := plan.NeutralPerformance()
	invalid.Consistency = 1.5
	if err := svc.RecordPerformance(ctx, session.ID, invalid); !errors.Is(err, plan.ErrInvalidParameters) {
		t.Errorf("RecordPerformance() = %v, want ErrInvalidParameters", err)
	}

	clock.Advance(time.Hour)
	struggling := plan.NeutralPerformance()
	struggling.Consistency = 0.5
	struggling.AverageEffort = 0.7
	if err := svc.RecordPerformance(ctx, session.ID, struggling); err != nil {
		t.Fatalf("RecordPerformance: %v", err)
	}

	check, err := svc.CheckRegeneration(ctx, session.ID)
	if err != nil {
		t.Fatalf("CheckRegeneration: %v", err)
	}
	if !check.NeedsRegeneration || check.Expired {
		t.Errorf("check = %+v, want regeneration without expiry", check)
	}
	if diff := cmp.Diff([]plan.RegenerationReason{plan.ReasonLowConsistency}, check.Reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
	if !check.Metrics.RecordedAt.Equal(monday.Add(time.Hour)) {
		t.Errorf("RecordedAt = %s", check.Metrics.RecordedAt)
	}

	w, err := svc.Regenerate(ctx, session.ID, check.Reasons[0])
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if w.Strategy != plan.StrategyConservative {
		t.Errorf("strategy = %s, want conservative", w.Strategy)
	}
	if w.AppliedRule == nil || w.AppliedRule.Name != "low weekly consistency" {
		t.Errorf("applied rule = %v, want low weekly consistency", w.AppliedRule)
	}
	for _, pw := range w.Workouts {
		if pw.Week > 2 {
			continue
		}
		if !slices.Contains(pw.AdaptationFlags, "low_consistency:decrease_distance") ||
			!slices.Contains(pw.AdaptationFlags, "rule:decrease_distance") {
			t.Errorf("week %d workout flags = %v", pw.Week, pw.AdaptationFlags)
		}
	}

	history, err := svc.AdaptationHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	if len(history) != 1 || history[0].Metrics.Consistency != 0.5 {
		t.Errorf("history = %+v", history)
	}
}

func TestService_CheckRegenerationWithoutCache(t *testing.T) {
	ctx := t.Context()
	store := plan.NewMemoryWorkflowStore()
	svc, _ := newTestService(t, newFakeClock(monday), plan.WithWorkflowStore(store))
	session := enroll(t, svc, plan.CategoryStrength, plan.DifficultyIntermediate, time.Tuesday)

	check, err := svc.CheckRegeneration(ctx, session.ID)
	if err != nil {
		t.Fatalf("CheckRegeneration: %v", err)
	}
	if check.NeedsRegeneration || check.WorkflowID == "" {
		t.Errorf("fresh workflow check = %+v", check)
	}

	if err = store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if check, err = svc.CheckRegeneration(ctx, session.ID); err != nil {
		t.Fatalf("CheckRegeneration: %v", err)
	}
	if diff := cmp.Diff([]plan.RegenerationReason{plan.ReasonInitial}, check.Reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

// recordingArchiver remembers archived workflows.
type recordingArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (a *recordingArchiver) Archive(_ context.Context, w plan.GeneratedWorkflow) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, w.ID)
	return nil
}

func (a *recordingArchiver) PresignedURL(_ context.Context, sessionID, workflowID string) (string, error) {
	return fmt.Sprintf("https://archive.test/%s/%s.json", sessionID, workflowID), nil
}

func TestService_Archive(t *testing.T) {
	ctx := t.Context()
	archiver := &recordingArchiver{mu: sync.Mutex{}, archived: nil}
	svc, _ := newTestService(t, newFakeClock(monday), plan.WithArchiver(archiver))
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyAdvanced, time.Monday, time.Friday)

	first, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	second, err := svc.Regenerate(ctx, session.ID, plan.ReasonManual)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if err = svc.Deactivate(ctx, session.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if diff := cmp.Diff([]string{first.Workflow.ID, second.ID}, archiver.archived); diff != "" {
		t.Errorf("archived mismatch (-want +got):\n%s", diff)
	}

	url, err := svc.ArchiveURL(ctx, session.ID, first.Workflow.ID)
	if err != nil {
		t.Fatalf("ArchiveURL: %v", err)
	}
	if want := "https://archive.test/" + session.ID + "/" + first.Workflow.ID + ".json"; url != want {
		t.Errorf("ArchiveURL() = %s, want %s", url, want)
	}

	plain, _ := newTestService(t, newFakeClock(monday))
	other := enroll(t, plain, plan.CategoryMilitary, plan.DifficultyAdvanced, time.Monday)
	if _, err = plain.ArchiveURL(ctx, other.ID, "anything"); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("ArchiveURL() without archiver = %v, want ErrNotFound", err)
	}
}

func TestService_DeactivateAndPrune(t *testing.T) {
	ctx := t.Context()
	store := plan.NewMemoryWorkflowStore()
	clock := newFakeClock(monday)
	svc, _ := newTestService(t, clock, plan.WithWorkflowStore(store))
	keep := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday)
	stop := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday)

	if err := svc.Deactivate(ctx, stop.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := store.Get(ctx, stop.ID); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("deactivated session still cached: %v", err)
	}
	ids, err := svc.ActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if diff := cmp.Diff([]string{keep.ID}, ids); diff != "" {
		t.Errorf("active sessions mismatch (-want +got):\n%s", diff)
	}
	if _, err = svc.Regenerate(ctx, stop.ID, plan.ReasonManual); !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("Regenerate() of inactive session = %v, want ErrSessionNotFound", err)
	}

	// A stale entry left behind for the inactive session and one for a session long expired.
	if err = store.Put(ctx, stop.ID, []byte("{}"), monday.Add(time.Hour)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err = store.Put(ctx, "abandoned", []byte("{}"), monday.Add(-2*plan.DefaultValidity)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	pruned, err := svc.PruneCache(ctx)
	if err != nil {
		t.Fatalf("PruneCache: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned %d entries, want 2", pruned)
	}
	if _, err = svc.Workflow(ctx, keep.ID); err != nil {
		t.Errorf("active session lost its workflow: %v", err)
	}
}

func TestService_ConcurrentRegenerate(t *testing.T) {
	ctx := t.Context()
	svc, _ := newFileTestService(t, newFakeClock(monday))
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday, time.Wednesday)

	const n = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	for range n {
		wg.Go(func() {
			w, err := svc.Regenerate(ctx, session.ID, plan.ReasonManual)
			if err != nil {
				t.Errorf("Regenerate: %v", err)
				return
			}
			mu.Lock()
			ids[w.ID] = true
			mu.Unlock()
		})
	}
	wg.Wait()

	if len(ids) != n {
		t.Errorf("got %d distinct workflows, want %d", len(ids), n)
	}
	history, err := svc.AdaptationHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	if len(history) != n {
		t.Fatalf("history has %d records, want %d", len(history), n)
	}
	// Serialized regenerations chain: every record points at a distinct predecessor.
	previous := make(map[string]bool)
	for _, r := range history {
		if previous[r.PreviousWorkflowID] {
			t.Errorf("workflow %s superseded twice", r.PreviousWorkflowID)
		}
		previous[r.PreviousWorkflowID] = true
	}

	active, err := svc.Workflow(ctx, session.ID)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if !ids[active.Workflow.ID] || active.AdaptationCount != n {
		t.Errorf("active workflow %s with %d adaptations", active.Workflow.ID, active.AdaptationCount)
	}
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		name    string
		want    time.Weekday
		wantErr bool
	}{
		{"monday", time.Monday, false},
		{"Saturday", time.Saturday, false},
		{"SUN", time.Sunday, false},
		{"thu", time.Thursday, false},
		{"th", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := plan.ParseWeekday(tt.name)
			if tt.wantErr {
				if !errors.Is(err, plan.ErrInvalidParameters) {
					t.Errorf("ParseWeekday() error = %v, want ErrInvalidParameters", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseWeekday() = %v, %v, want %v", got, err, tt.want)
			}
		})
	}
}

func TestService_ExportSession(t *testing.T) {
	ctx := t.Context()
	svc, _ := newTestService(t, newFakeClock(monday))
	session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Monday, time.Thursday)
	if _, err := svc.Regenerate(ctx, session.ID, plan.ReasonManual); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	dir := t.TempDir()
	path, err := svc.ExportSession(ctx, session.ID, dir)
	if err != nil {
		t.Fatalf("ExportSession: %v", err)
	}
	if want := filepath.Join(dir, "session-"+session.ID+".sqlite3"); path != want {
		t.Errorf("ExportSession() = %s, want %s", path, want)
	}
	if _, err = os.Stat(path); err != nil {
		t.Errorf("export file: %v", err)
	}

	if _, err = svc.ExportSession(ctx, "missing", dir); !errors.Is(err, plan.ErrSessionNotFound) {
		t.Errorf("ExportSession() of unknown session = %v, want ErrSessionNotFound", err)
	}
}

//nolint:gochecknoglobals // test fixture.
var errStoreDown = errors.New("store down")

// flakyWorkflowStore fails Put while failPut is set.
type flakyWorkflowStore struct {
	*plan.MemoryWorkflowStore
	failPut atomic.Bool
}

func (s *flakyWorkflowStore) Put(ctx context.Context, sessionID string, payload []byte, expiresAt time.Time) error {
	if s.failPut.Load() {
		return errStoreDown
	}
	return s.MemoryWorkflowStore.Put(ctx, sessionID, payload, expiresAt)
}

// brokenAdaptationStore rejects every record.
type brokenAdaptationStore struct{}

func (brokenAdaptationStore) Append(context.Context, plan.AdaptationRecord) error {
	return errStoreDown
}

func (brokenAdaptationStore) List(context.Context, string) ([]plan.AdaptationRecord, error) {
	return nil, nil
}

// assertUnchanged checks that a failed operation left the cached workflow, the adaptation history and the session
// bookkeeping as they were.
func assertUnchanged(t *testing.T, svc *plan.Service, before plan.Session, workflowID string) {
	t.Helper()
	ctx := t.Context()
	after, err := svc.Session(ctx, before.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("session changed (-before +after):\n%s", diff)
	}
	history, err := svc.AdaptationHistory(ctx, before.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history has %d records after a failed attempt", len(history))
	}
	check, err := svc.CheckRegeneration(ctx, before.ID)
	if err != nil {
		t.Fatalf("CheckRegeneration: %v", err)
	}
	if check.WorkflowID != workflowID {
		t.Errorf("cached workflow = %s, want %s", check.WorkflowID, workflowID)
	}
}

func TestService_RegenerateFailure(t *testing.T) {
	t.Run("generation", func(t *testing.T) {
		ctx := t.Context()
		svc, db := newTestService(t, newFakeClock(monday))
		session := enroll(t, svc, plan.CategoryGeneral, plan.DifficultyBeginner, time.Monday, time.Thursday)
		if _, err := db.ReadWrite.ExecContext(ctx, `UPDATE sessions SET current_week = 99 WHERE id = ?`,
			session.ID); err != nil {
			t.Fatalf("move session past its program: %v", err)
		}
		before, err := svc.Session(ctx, session.ID)
		if err != nil {
			t.Fatalf("Session: %v", err)
		}
		check, err := svc.CheckRegeneration(ctx, session.ID)
		if err != nil {
			t.Fatalf("CheckRegeneration: %v", err)
		}

		if _, err = svc.Regenerate(ctx, session.ID, plan.ReasonManual); !errors.Is(err, plan.ErrGenerationFailed) {
			t.Errorf("Regenerate() = %v, want ErrGenerationFailed", err)
		}
		if _, err = svc.UpdateWeekdays(ctx, session.ID, []time.Weekday{time.Sunday}); !errors.Is(err,
			plan.ErrGenerationFailed) {
			t.Errorf("UpdateWeekdays() = %v, want ErrGenerationFailed", err)
		}
		assertUnchanged(t, svc, before, check.WorkflowID)
	})

	t.Run("cache write", func(t *testing.T) {
		ctx := t.Context()
		store := &flakyWorkflowStore{MemoryWorkflowStore: plan.NewMemoryWorkflowStore(), failPut: atomic.Bool{}}
		svc, _ := newTestService(t, newFakeClock(monday), plan.WithWorkflowStore(store))
		session := enroll(t, svc, plan.CategoryGeneral, plan.DifficultyBeginner, time.Monday, time.Thursday)
		active, err := svc.Workflow(ctx, session.ID)
		if err != nil {
			t.Fatalf("Workflow: %v", err)
		}

		store.failPut.Store(true)
		if _, err = svc.AdvanceWeek(ctx, session.ID); !errors.Is(err, plan.ErrGenerationFailed) {
			t.Errorf("AdvanceWeek() = %v, want ErrGenerationFailed", err)
		}
		if _, err = svc.Regenerate(ctx, session.ID, plan.ReasonManual); !errors.Is(err, plan.ErrGenerationFailed) {
			t.Errorf("Regenerate() = %v, want ErrGenerationFailed", err)
		}
		assertUnchanged(t, svc, session, active.Workflow.ID)

		store.failPut.Store(false)
		advanced, err := svc.AdvanceWeek(ctx, session.ID)
		if err != nil {
			t.Fatalf("AdvanceWeek after recovery: %v", err)
		}
		if advanced.CurrentWeek != 2 || advanced.AdaptationCount != 1 {
			t.Errorf("session = week %d with %d adaptations, want week 2 with 1", advanced.CurrentWeek,
				advanced.AdaptationCount)
		}
	})

	t.Run("history append", func(t *testing.T) {
		ctx := t.Context()
		svc, _ := newTestService(t, newFakeClock(monday), plan.WithAdaptationStore(brokenAdaptationStore{}))
		session := enroll(t, svc, plan.CategoryMilitary, plan.DifficultyBeginner, time.Tuesday)
		active, err := svc.Workflow(ctx, session.ID)
		if err != nil {
			t.Fatalf("Workflow: %v", err)
		}

		if _, err = svc.Regenerate(ctx, session.ID, plan.ReasonManual); !errors.Is(err, errStoreDown) {
			t.Errorf("Regenerate() = %v, want the store error", err)
		}
		assertUnchanged(t, svc, session, active.Workflow.ID)
	})
}

func TestNewService_RejectsMalformedRules(t *testing.T) {
	logger := testLogger(t)
	db, err := sqlite.NewDatabase(t.Context(), ":memory:", logger)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})

	rules := append(plan.DefaultProgressionRules(), plan.ProgressionRule{
		Name:      "bogus",
		Condition: plan.RuleCondition{Kind: "bogus", Comparison: plan.CompareBelow, Threshold: 1},
		Action:    plan.RuleAction{Kind: plan.ActionDecreaseWeight, Amount: 5, Multiplier: 0},
		Priority:  plan.PriorityHigh,
	})
	_, err = plan.NewService(db, logger, plan.NewCatalog(logger, plan.BuiltinTemplates()...),
		plan.WithProgressionRules(rules))
	if !errors.Is(err, plan.ErrInvalidParameters) {
		t.Errorf("NewService() = %v, want ErrInvalidParameters", err)
	}
}
