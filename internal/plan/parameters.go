package plan

import (
	"time"
)

// MaxIntensity caps every computed intensity level.
const MaxIntensity = 1.2

// Defaults used when a template has no base parameters for a workout type.
const (
	defaultWarmup       = 5 * time.Minute
	defaultCooldown     = 5 * time.Minute
	defaultRestInterval = 90 * time.Second
	defaultMaxHeartRate = 185
)

// DefaultParameters returns conservative parameters for a workout type.
func DefaultParameters(wt WorkoutType) WorkoutParameters {
	p := WorkoutParameters{
		TargetWeight:     0,
		TargetDistance:   0,
		TargetPace:       DefaultPaceMinutesPerMile,
		Intensity:        0.6, //nolint:mnd // moderate effort
		RestInterval:     defaultRestInterval,
		WarmupDuration:   defaultWarmup,
		CooldownDuration: defaultCooldown,
		MaxHeartRate:     defaultMaxHeartRate,
		HeartRateZone:    2, //nolint:mnd // aerobic zone
	}
	//nolint:exhaustive,mnd // reference targets per type, the rest keep the defaults above.
	switch wt {
	case WorkoutTypeRuck:
		p.TargetWeight = 20
		p.TargetDistance = 3
	case WorkoutTypeRun:
		p.TargetDistance = 3
		p.TargetPace = 10
		p.HeartRateZone = 3
	case WorkoutTypeEndurance:
		p.TargetWeight = 15
		p.TargetDistance = 4
	case WorkoutTypeStrength:
		p.TargetWeight = 35
		p.Intensity = 0.7
		p.RestInterval = 2 * time.Minute
	case WorkoutTypeInterval:
		p.TargetDistance = 2
		p.TargetPace = 9
		p.Intensity = 0.8
		p.HeartRateZone = 4
	case WorkoutTypeTempo:
		p.TargetDistance = 3
		p.TargetPace = 11
		p.Intensity = 0.75
		p.HeartRateZone = 3
	case WorkoutTypeRecovery:
		p.TargetDistance = 2
		p.TargetPace = 17
		p.Intensity = 0.3
		p.HeartRateZone = 1
	case WorkoutTypeTest:
		p.TargetDistance = 2
		p.TargetPace = 12
		p.Intensity = 1.0
		p.HeartRateZone = 5
	case WorkoutTypeRest:
		p.TargetPace = 0
		p.Intensity = 0
		p.WarmupDuration = 0
		p.CooldownDuration = 0
		p.HeartRateZone = 0
	}
	return p
}

// BaseParametersFor returns the template's base parameters for a workout type, or [DefaultParameters] when the template
// does not define any.
func (t WorkflowTemplate) BaseParametersFor(wt WorkoutType) WorkoutParameters {
	if p, ok := t.BaseParameters[wt]; ok {
		return p
	}
	return DefaultParameters(wt)
}

// ProgressionRuleFor returns the first progression rule whose week range contains week.
func (t WorkflowTemplate) ProgressionRuleFor(week int) (TemplateProgressionRule, bool) {
	for _, r := range t.ProgressionRules {
		if r.Contains(week) {
			return r, true
		}
	}
	return TemplateProgressionRule{}, false
}

// ComputeParameters computes the training parameters of a workout type for a week of the template.
//
// The first progression rule containing week wins. Without a matching rule the base parameters are returned
// unchanged. Weight and distance never drop below the base values and intensity is capped at [MaxIntensity].
func ComputeParameters(t WorkflowTemplate, week int, wt WorkoutType) WorkoutParameters {
	base := t.BaseParametersFor(wt)
	rule, ok := t.ProgressionRuleFor(week)
	if !ok {
		return base
	}

	weekProgression := float64(week - 1)
	computed := base
	computed.TargetWeight = max(base.TargetWeight+rule.WeightProgression*weekProgression, base.TargetWeight)
	computed.TargetDistance = max(base.TargetDistance+rule.DistanceProgression*weekProgression, base.TargetDistance)
	computed.Intensity = min(base.Intensity+rule.IntensityProgression*weekProgression, MaxIntensity)
	return computed
}

// scaleIntensity multiplies the intensity by factor keeping it within [0, MaxIntensity].
func (p WorkoutParameters) scaleIntensity(factor float64) WorkoutParameters {
	p.Intensity = clamp(p.Intensity*factor, 0, MaxIntensity)
	return p
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
