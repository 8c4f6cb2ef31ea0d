package plan

import (
	"fmt"
	"math"
	"time"
)

// Normalisation references for difficulty scoring.
const (
	referenceWeight   = 50.0
	referenceDistance = 5.0
)

// Difficulty tier upper bounds.
const (
	easyUpperBound     = 0.4
	moderateUpperBound = 0.7
	hardUpperBound     = 0.9
)

const (
	warmupIntensity   = 0.3
	cooldownIntensity = 0.2
	restIntensity     = 0.2
	intervalWork      = 3 * time.Minute
	strengthWork      = 90 * time.Second
	minRecovery       = 20 * time.Minute
	fallbackSteady    = 30 * time.Minute
	buildupBlock      = 10 * time.Minute
	minIntervalReps   = 4
	maxIntervalReps   = 8
	restBetweenDays   = 24 * time.Hour
	healthCheckWeek   = 4
)

// Synthesize expands a workout type and its parameters into a structured session. The estimated duration is the sum
// of all segment durations.
func Synthesize(wt WorkoutType, p WorkoutParameters, phase Phase) WorkoutStructure {
	if wt == WorkoutTypeRest {
		return WorkoutStructure{
			Warmup:            WorkoutSegment{}, //nolint:exhaustruct // rest days have no warmup.
			Main:              nil,
			Cooldown:          WorkoutSegment{}, //nolint:exhaustruct // rest days have no cooldown.
			EstimatedDuration: 0,
		}
	}

	s := WorkoutStructure{
		Warmup: WorkoutSegment{
			Type:         SegmentTypeWarmup,
			Duration:     TimeDuration(orDefault(p.WarmupDuration, defaultWarmup)),
			Intensity:    warmupIntensity,
			Instructions: "Easy movement and dynamic mobility.",
			Targets:      TargetMetrics{PaceMinutesPerMile: 0, HeartRateZone: 1, Weight: 0},
		},
		Main: mainSegments(wt, p, phase),
		Cooldown: WorkoutSegment{
			Type:         SegmentTypeCooldown,
			Duration:     TimeDuration(orDefault(p.CooldownDuration, defaultCooldown)),
			Intensity:    cooldownIntensity,
			Instructions: "Walk it out and stretch calves, hips and shoulders.",
			Targets:      TargetMetrics{PaceMinutesPerMile: 0, HeartRateZone: 1, Weight: 0},
		},
		EstimatedDuration: 0,
	}
	s.EstimatedDuration = s.Warmup.Duration.Duration() + s.Cooldown.Duration.Duration()
	for _, seg := range s.Main {
		s.EstimatedDuration += seg.Duration.Duration()
	}
	return s
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func mainSegments(wt WorkoutType, p WorkoutParameters, phase Phase) []WorkoutSegment {
	switch wt {
	case WorkoutTypeRuck, WorkoutTypeRun, WorkoutTypeEndurance:
		return distanceSegments(wt, p, phase)
	case WorkoutTypeTempo:
		return []WorkoutSegment{
			segment(SegmentTypeBuildup, TimeDuration(buildupBlock), p.Intensity*0.8, p, //nolint:mnd // easing in
				"Build gradually to tempo effort."),
			segment(SegmentTypeTempo, distanceOrTime(p.TargetDistance, p.TargetPace, fallbackSteady), p.Intensity, p,
				"Comfortably hard, sustainable effort."),
		}
	case WorkoutTypeInterval:
		return intervalSegments(p, intervalReps(p.Intensity), intervalWork, SegmentTypeInterval,
			"Hard effort, hold form.")
	case WorkoutTypeStrength:
		return intervalSegments(p, strengthSets(phase), strengthWork, SegmentTypeInterval,
			fmt.Sprintf("Loaded carries, step-ups and lunges with %.1f lbs.", p.TargetWeight))
	case WorkoutTypeRecovery:
		d := distanceOrTime(p.TargetDistance, p.TargetPace, minRecovery)
		if d.Duration() < minRecovery {
			d = TimeDuration(minRecovery)
		}
		return []WorkoutSegment{
			segment(SegmentTypeRecovery, d, min(p.Intensity, warmupIntensity), p, "Conversational pace only."),
		}
	case WorkoutTypeTest:
		return []WorkoutSegment{
			segment(SegmentTypeTest, distanceOrTime(p.TargetDistance, p.TargetPace, fallbackSteady), 1.0, p,
				"Timed effort. Record your time."),
		}
	case WorkoutTypeRest:
		return nil
	}
	return nil
}

// distanceSegments shapes a distance workout by phase: foundation is one steady block, build splits off a buildup,
// peak finishes with tempo and taper shortens and eases the block.
func distanceSegments(wt WorkoutType, p WorkoutParameters, phase Phase) []WorkoutSegment {
	d := p.TargetDistance
	instructions := "Steady effort, keep posture tall."
	if wt == WorkoutTypeRuck || wt == WorkoutTypeEndurance {
		instructions = fmt.Sprintf("Steady march under %.1f lbs, keep posture tall.", p.TargetWeight)
	}
	if d <= 0 {
		return []WorkoutSegment{segment(SegmentTypeSteady, TimeDuration(fallbackSteady), p.Intensity, p, instructions)}
	}

	//nolint:mnd // phase shaping ratios.
	switch phase {
	case PhaseBuild:
		return []WorkoutSegment{
			segment(SegmentTypeSteady, DistanceDuration(d*0.8, p.TargetPace), p.Intensity, p, instructions),
			segment(SegmentTypeBuildup, DistanceDuration(d*0.2, p.TargetPace*0.95), min(p.Intensity*1.1, MaxIntensity),
				p, "Gradually increase pace to the finish."),
		}
	case PhasePeak:
		return []WorkoutSegment{
			segment(SegmentTypeSteady, DistanceDuration(d*0.6, p.TargetPace), p.Intensity, p, instructions),
			segment(SegmentTypeTempo, DistanceDuration(d*0.4, p.TargetPace*0.9), min(p.Intensity*1.15, MaxIntensity),
				p, "Push to a comfortably hard pace."),
		}
	case PhaseTaper:
		return []WorkoutSegment{
			segment(SegmentTypeSteady, DistanceDuration(d*0.7, p.TargetPace), p.Intensity*0.9, p,
				"Shortened effort, stay fresh."),
		}
	case PhaseFoundation:
	}
	return []WorkoutSegment{segment(SegmentTypeSteady, DistanceDuration(d, p.TargetPace), p.Intensity, p, instructions)}
}

func intervalSegments(
	p WorkoutParameters,
	reps int,
	work time.Duration,
	typ SegmentType,
	instructions string,
) []WorkoutSegment {
	rest := orDefault(p.RestInterval, defaultRestInterval)
	segments := make([]WorkoutSegment, 0, 2*reps-1) //nolint:mnd // work and rest per rep, no trailing rest.
	for i := range reps {
		segments = append(segments, segment(typ, TimeDuration(work), p.Intensity, p,
			fmt.Sprintf("Round %d of %d. %s", i+1, reps, instructions)))
		if i < reps-1 {
			segments = append(segments, WorkoutSegment{
				Type:         SegmentTypeRest,
				Duration:     TimeDuration(rest),
				Intensity:    restIntensity,
				Instructions: "Recover, keep moving lightly.",
				Targets:      TargetMetrics{PaceMinutesPerMile: 0, HeartRateZone: 1, Weight: 0},
			})
		}
	}
	return segments
}

func intervalReps(intensity float64) int {
	reps := minIntervalReps + int(math.Round(intensity*minIntervalReps))
	return max(minIntervalReps, min(reps, maxIntervalReps))
}

func strengthSets(phase Phase) int {
	//nolint:mnd // sets per phase.
	switch phase {
	case PhaseFoundation, PhaseTaper:
		return 3
	case PhaseBuild:
		return 4
	case PhasePeak:
		return 5
	}
	return 3 //nolint:mnd // unknown phases train conservatively.
}

func distanceOrTime(miles, pace float64, fallback time.Duration) SegmentDuration {
	if miles <= 0 {
		return TimeDuration(fallback)
	}
	return DistanceDuration(miles, pace)
}

func segment(typ SegmentType, d SegmentDuration, intensity float64, p WorkoutParameters, instr string) WorkoutSegment {
	return WorkoutSegment{
		Type:         typ,
		Duration:     d,
		Intensity:    clamp(intensity, 0, MaxIntensity),
		Instructions: instr,
		Targets: TargetMetrics{
			PaceMinutesPerMile: d.PaceMinutesPerMile,
			HeartRateZone:      p.HeartRateZone,
			Weight:             p.TargetWeight,
		},
	}
}

// EstimateDifficulty buckets the mean of the normalised weight, distance and intensity scores.
func EstimateDifficulty(p WorkoutParameters, wt WorkoutType) DifficultyTier {
	if wt == WorkoutTypeRest {
		return TierEasy
	}
	score := (p.TargetWeight/referenceWeight + p.TargetDistance/referenceDistance + p.Intensity) / 3 //nolint:mnd // mean
	switch {
	case score < easyUpperBound:
		return TierEasy
	case score < moderateUpperBound:
		return TierModerate
	case score < hardUpperBound:
		return TierHard
	default:
		return TierExtreme
	}
}

// DeterminePrerequisites lists what must hold before the workout on dayIndex of week starts.
func DeterminePrerequisites(week, dayIndex int) []Prerequisite {
	var prereqs []Prerequisite
	if dayIndex != 0 {
		prereqs = append(prereqs, Prerequisite{
			Kind:        PrerequisiteRest,
			Description: "At least 24 hours since the previous workout.",
			MinimumRest: restBetweenDays,
		})
	}
	prereqs = append(prereqs, Prerequisite{
		Kind:        PrerequisiteEquipment,
		Description: "Broken-in boots, loaded pack and water.",
		MinimumRest: 0,
	})
	if week > healthCheckWeek {
		prereqs = append(prereqs, Prerequisite{
			Kind:        PrerequisiteHealthCheck,
			Description: "Check feet, knees and back for hot spots or pain before loading up.",
			MinimumRest: 0,
		})
	}
	return prereqs
}
