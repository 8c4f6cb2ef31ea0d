package plan_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/myrjola/ruckplan/internal/plan"
)

func sampleWorkflow(sessionID string, generatedAt time.Time) plan.GeneratedWorkflow {
	params := plan.DefaultParameters(plan.WorkoutTypeRuck)
	structure := plan.Synthesize(plan.WorkoutTypeRuck, params, plan.PhaseBuild)
	return plan.GeneratedWorkflow{
		ID:          "workflow-" + sessionID,
		SessionID:   sessionID,
		TemplateID:  plan.DefaultTemplateID,
		GeneratedAt: generatedAt,
		ValidUntil:  generatedAt.Add(plan.DefaultValidity),
		StartWeek:   1,
		Workouts: []plan.PlannedWorkout{{
			ID:                "workout-1",
			SessionID:         sessionID,
			Week:              1,
			DayIndex:          0,
			ScheduledDate:     time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
			CalendarWeek:      1,
			Type:              plan.WorkoutTypeRuck,
			Phase:             plan.PhaseBuild,
			Parameters:        params,
			Structure:         structure,
			EstimatedDuration: structure.EstimatedDuration,
			Difficulty:        plan.EstimateDifficulty(params, plan.WorkoutTypeRuck),
			Prerequisites:     plan.DeterminePrerequisites(1, 0),
			AdaptationFlags:   []string{"low_consistency:decrease_distance"},
		}},
		Strategy:        plan.StrategyModerate,
		AdaptationRules: plan.AdaptationRulesFor(plan.NeutralPerformance()),
		AppliedRule:     &plan.DefaultProgressionRules()[0],
		Truncated:       false,
	}
}

func TestWorkflowCache(t *testing.T) {
	ctx := t.Context()
	store := plan.NewMemoryWorkflowStore()
	cache := plan.NewWorkflowCache(store)

	t.Run("miss", func(t *testing.T) {
		if _, err := cache.Get(ctx, "nobody"); !errors.Is(err, plan.ErrNotFound) {
			t.Errorf("Get() = %v, want ErrNotFound", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := sampleWorkflow("s1", monday)
		if err := cache.Put(ctx, want); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := cache.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("workflow mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		next := sampleWorkflow("s1", monday.Add(time.Hour))
		next.ID = "workflow-s1-next"
		if err := cache.Put(ctx, next); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := cache.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != next.ID {
			t.Errorf("ID = %s, want %s", got.ID, next.ID)
		}
	})

	t.Run("corrupted payload", func(t *testing.T) {
		if err := store.Put(ctx, "s2", []byte("{not json"), monday.Add(time.Hour)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if _, err := cache.Get(ctx, "s2"); !errors.Is(err, plan.ErrCacheCorrupted) {
			t.Errorf("Get() = %v, want ErrCacheCorrupted", err)
		}
	})

	t.Run("payload of another session", func(t *testing.T) {
		payload, err := json.Marshal(sampleWorkflow("someone-else", monday))
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if err = store.Put(ctx, "s3", payload, monday.Add(time.Hour)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if _, err = cache.Get(ctx, "s3"); !errors.Is(err, plan.ErrCacheCorrupted) {
			t.Errorf("Get() = %v, want ErrCacheCorrupted", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := cache.Delete(ctx, "s1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := cache.Get(ctx, "s1"); !errors.Is(err, plan.ErrNotFound) {
			t.Errorf("Get() after Delete = %v, want ErrNotFound", err)
		}
		if err := cache.Delete(ctx, "s1"); err != nil {
			t.Errorf("second Delete: %v", err)
		}
	})
}

func TestWorkflowCache_Prune(t *testing.T) {
	ctx := t.Context()
	cache := plan.NewWorkflowCache(plan.NewMemoryWorkflowStore())

	old := sampleWorkflow("old", monday.Add(-2*plan.DefaultValidity))
	fresh := sampleWorkflow("fresh", monday)
	for _, w := range []plan.GeneratedWorkflow{old, fresh} {
		if err := cache.Put(ctx, w); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	n, err := cache.Prune(ctx, monday)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d entries, want 1", n)
	}
	if _, err = cache.Get(ctx, "old"); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("old workflow still cached: %v", err)
	}
	if _, err = cache.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh workflow pruned: %v", err)
	}
}

func TestGeneratedWorkflow_IsExpired(t *testing.T) {
	clock := newFakeClock(monday)
	w := sampleWorkflow("s1", clock.Now())

	if w.IsExpired(clock.Now()) {
		t.Errorf("fresh workflow is expired")
	}
	clock.Advance(plan.DefaultValidity - time.Second)
	if w.IsExpired(clock.Now()) {
		t.Errorf("workflow expired a second early")
	}
	clock.Advance(time.Second)
	if !w.IsExpired(clock.Now()) {
		t.Errorf("workflow not expired at ValidUntil")
	}
	if !w.NeedsRegeneration(clock.Now(), plan.NeutralPerformance()) {
		t.Errorf("expired workflow does not need regeneration")
	}
}

func TestGeneratedWorkflow_RegenerationReasons(t *testing.T) {
	w := sampleWorkflow("s1", monday)
	tests := []struct {
		name    string
		now     time.Time
		mutate  func(m *plan.PerformanceMetrics)
		reasons []plan.RegenerationReason
	}{
		{"valid and neutral", monday, func(*plan.PerformanceMetrics) {}, nil},
		{"low consistency", monday, func(m *plan.PerformanceMetrics) { m.Consistency = 0.59 }, []plan.RegenerationReason{
			plan.ReasonLowConsistency,
		}},
		{"declining", monday, func(m *plan.PerformanceMetrics) { m.ProgressTrend = -0.25 }, []plan.RegenerationReason{
			plan.ReasonDecliningProgress,
		}},
		{
			"expired first",
			monday.Add(plan.DefaultValidity),
			func(m *plan.PerformanceMetrics) { m.Consistency = 0.1 },
			[]plan.RegenerationReason{plan.ReasonExpired, plan.ReasonLowConsistency},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := plan.NeutralPerformance()
			tt.mutate(&m)
			if diff := cmp.Diff(tt.reasons, w.RegenerationReasons(tt.now, m)); diff != "" {
				t.Errorf("reasons mismatch (-want +got):\n%s", diff)
			}
			if got := w.NeedsRegeneration(tt.now, m); got != (len(tt.reasons) > 0) {
				t.Errorf("NeedsRegeneration() = %t", got)
			}
		})
	}
}
