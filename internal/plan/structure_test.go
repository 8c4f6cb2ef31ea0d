package plan_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/ruckplan/internal/plan"
)

func TestSynthesize(t *testing.T) {
	ruck := plan.DefaultParameters(plan.WorkoutTypeRuck)
	ruck.TargetDistance = 4
	ruck.TargetPace = 15

	tests := []struct {
		name      string
		wt        plan.WorkoutType
		params    plan.WorkoutParameters
		phase     plan.Phase
		wantTypes []plan.SegmentType
	}{
		{
			name:      "foundation ruck is one steady block",
			wt:        plan.WorkoutTypeRuck,
			params:    ruck,
			phase:     plan.PhaseFoundation,
			wantTypes: []plan.SegmentType{plan.SegmentTypeSteady},
		},
		{
			name:      "build ruck splits off a buildup",
			wt:        plan.WorkoutTypeRuck,
			params:    ruck,
			phase:     plan.PhaseBuild,
			wantTypes: []plan.SegmentType{plan.SegmentTypeSteady, plan.SegmentTypeBuildup},
		},
		{
			name:      "peak ruck finishes with tempo",
			wt:        plan.WorkoutTypeRuck,
			params:    ruck,
			phase:     plan.PhasePeak,
			wantTypes: []plan.SegmentType{plan.SegmentTypeSteady, plan.SegmentTypeTempo},
		},
		{
			name:      "taper ruck is one shortened block",
			wt:        plan.WorkoutTypeRuck,
			params:    ruck,
			phase:     plan.PhaseTaper,
			wantTypes: []plan.SegmentType{plan.SegmentTypeSteady},
		},
		{
			name:   "strength alternates work and rest",
			wt:     plan.WorkoutTypeStrength,
			params: plan.DefaultParameters(plan.WorkoutTypeStrength),
			phase:  plan.PhaseFoundation,
			wantTypes: []plan.SegmentType{
				plan.SegmentTypeInterval, plan.SegmentTypeRest,
				plan.SegmentTypeInterval, plan.SegmentTypeRest,
				plan.SegmentTypeInterval,
			},
		},
		{
			name:      "tempo builds up first",
			wt:        plan.WorkoutTypeTempo,
			params:    plan.DefaultParameters(plan.WorkoutTypeTempo),
			phase:     plan.PhaseBuild,
			wantTypes: []plan.SegmentType{plan.SegmentTypeBuildup, plan.SegmentTypeTempo},
		},
		{
			name:      "recovery",
			wt:        plan.WorkoutTypeRecovery,
			params:    plan.DefaultParameters(plan.WorkoutTypeRecovery),
			phase:     plan.PhaseBuild,
			wantTypes: []plan.SegmentType{plan.SegmentTypeRecovery},
		},
		{
			name:      "test effort",
			wt:        plan.WorkoutTypeTest,
			params:    plan.DefaultParameters(plan.WorkoutTypeTest),
			phase:     plan.PhaseTaper,
			wantTypes: []plan.SegmentType{plan.SegmentTypeTest},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := plan.Synthesize(tt.wt, tt.params, tt.phase)
			var gotTypes []plan.SegmentType
			for _, seg := range s.Main {
				gotTypes = append(gotTypes, seg.Type)
			}
			if diff := cmp.Diff(tt.wantTypes, gotTypes); diff != "" {
				t.Errorf("main segment types mismatch (-want +got):\n%s", diff)
			}
			if s.Warmup.Type != plan.SegmentTypeWarmup || s.Cooldown.Type != plan.SegmentTypeCooldown {
				t.Errorf("warmup %s cooldown %s", s.Warmup.Type, s.Cooldown.Type)
			}

			sum := s.Warmup.Duration.Duration() + s.Cooldown.Duration.Duration()
			for _, seg := range s.Main {
				sum += seg.Duration.Duration()
				if seg.Intensity < 0 || seg.Intensity > plan.MaxIntensity {
					t.Errorf("segment %s intensity %v out of range", seg.Type, seg.Intensity)
				}
			}
			if s.EstimatedDuration != sum {
				t.Errorf("EstimatedDuration = %s, want sum of segments %s", s.EstimatedDuration, sum)
			}
		})
	}
}

func TestSynthesize_FoundationRuckDuration(t *testing.T) {
	p := plan.DefaultParameters(plan.WorkoutTypeRuck)
	p.TargetDistance = 4
	p.TargetPace = 15
	p.WarmupDuration = 5 * time.Minute
	p.CooldownDuration = 5 * time.Minute

	s := plan.Synthesize(plan.WorkoutTypeRuck, p, plan.PhaseFoundation)
	// 4 miles at 15 min/mile plus warmup and cooldown.
	if want := 70 * time.Minute; s.EstimatedDuration != want {
		t.Errorf("EstimatedDuration = %s, want %s", s.EstimatedDuration, want)
	}
}

func TestSynthesize_Rest(t *testing.T) {
	s := plan.Synthesize(plan.WorkoutTypeRest, plan.DefaultParameters(plan.WorkoutTypeRest), plan.PhaseBuild)
	if len(s.Main) != 0 || s.EstimatedDuration != 0 {
		t.Errorf("rest structure = %+v, want empty", s)
	}
}

func TestSegmentDuration_DefaultPace(t *testing.T) {
	d := plan.DistanceDuration(2, 0)
	if want := 30 * time.Minute; d.Duration() != want {
		t.Errorf("Duration() = %s, want %s", d.Duration(), want)
	}
}

func TestEstimateDifficulty(t *testing.T) {
	tests := []struct {
		name   string
		params plan.WorkoutParameters
		wt     plan.WorkoutType
		want   plan.DifficultyTier
	}{
		{"light", plan.WorkoutParameters{TargetWeight: 0, TargetDistance: 1, Intensity: 0.3}, plan.WorkoutTypeRun, plan.TierEasy},
		{"moderate", plan.WorkoutParameters{TargetWeight: 25, TargetDistance: 3, Intensity: 0.6}, plan.WorkoutTypeRuck, plan.TierModerate},
		{"hard", plan.WorkoutParameters{TargetWeight: 40, TargetDistance: 4, Intensity: 0.8}, plan.WorkoutTypeRuck, plan.TierHard},
		{"extreme", plan.WorkoutParameters{TargetWeight: 50, TargetDistance: 6, Intensity: 1}, plan.WorkoutTypeRuck, plan.TierExtreme},
		{"rest is easy", plan.WorkoutParameters{TargetWeight: 50, TargetDistance: 6, Intensity: 1}, plan.WorkoutTypeRest, plan.TierEasy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plan.EstimateDifficulty(tt.params, tt.wt); got != tt.want {
				t.Errorf("EstimateDifficulty() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeterminePrerequisites(t *testing.T) {
	kinds := func(prereqs []plan.Prerequisite) []plan.PrerequisiteKind {
		var out []plan.PrerequisiteKind
		for _, p := range prereqs {
			out = append(out, p.Kind)
		}
		return out
	}
	tests := []struct {
		name     string
		week     int
		dayIndex int
		want     []plan.PrerequisiteKind
	}{
		{"first day of week one", 1, 0, []plan.PrerequisiteKind{plan.PrerequisiteEquipment}},
		{"later day", 2, 3, []plan.PrerequisiteKind{plan.PrerequisiteRest, plan.PrerequisiteEquipment}},
		{"week four has no health check", 4, 0, []plan.PrerequisiteKind{plan.PrerequisiteEquipment}},
		{
			"week five adds health check", 5, 1,
			[]plan.PrerequisiteKind{plan.PrerequisiteRest, plan.PrerequisiteEquipment, plan.PrerequisiteHealthCheck},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plan.DeterminePrerequisites(tt.week, tt.dayIndex)
			if diff := cmp.Diff(tt.want, kinds(got)); diff != "" {
				t.Errorf("prerequisites mismatch (-want +got):\n%s", diff)
			}
			for _, p := range got {
				if p.Kind == plan.PrerequisiteRest && p.MinimumRest != 24*time.Hour {
					t.Errorf("rest prerequisite minimum = %s, want 24h", p.MinimumRest)
				}
			}
		})
	}
}
