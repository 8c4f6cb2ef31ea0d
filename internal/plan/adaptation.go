package plan

import (
	"fmt"
)

// Regeneration triggers.
const (
	lowConsistencyThreshold = 0.6
	decliningTrendThreshold = -0.2
)

// Strategy selection thresholds.
const (
	aggressiveConsistency = 0.9
	aggressiveMaxEffort   = 0.8
	moderateConsistency   = 0.7
)

// DetermineStrategy picks how hard the next workflow pushes based on recent performance.
func DetermineStrategy(m PerformanceMetrics) ProgressionStrategy {
	switch {
	case m.Consistency >= aggressiveConsistency && m.AverageEffort < aggressiveMaxEffort:
		return StrategyAggressive
	case m.Consistency >= moderateConsistency:
		return StrategyModerate
	default:
		return StrategyConservative
	}
}

// intensityFactor is the multiplier a strategy applies to computed intensity.
func (s ProgressionStrategy) intensityFactor() float64 {
	//nolint:mnd // strategy multipliers.
	switch s {
	case StrategyAggressive:
		return 1.05
	case StrategyConservative:
		return 0.9
	case StrategyModerate:
	}
	return 1
}

// TriggerKind tags an AdaptationTrigger.
type TriggerKind string

const (
	TriggerLowConsistency    TriggerKind = "low_consistency"
	TriggerHighEffort        TriggerKind = "high_effort"
	TriggerDecliningProgress TriggerKind = "declining_progress"
	TriggerStrongProgress    TriggerKind = "strong_progress"
)

// AdaptationTrigger is the observed condition that activates an adaptation rule.
type AdaptationTrigger struct {
	Kind      TriggerKind `json:"kind"`
	Threshold float64     `json:"threshold"`
}

// AdaptationRule applies Modification to workouts of the first DurationWeeks weeks of a workflow while Trigger holds.
type AdaptationRule struct {
	Trigger       AdaptationTrigger `json:"trigger"`
	Modification  RuleAction        `json:"modification"`
	DurationWeeks int               `json:"durationWeeks"`
}

// Flag identifies the rule on the workouts it modified.
func (r AdaptationRule) Flag() string {
	return fmt.Sprintf("%s:%s", r.Trigger.Kind, r.Modification.Kind)
}

// appliesTo reports whether the rule covers the given week offset within the workflow window.
func (r AdaptationRule) appliesTo(weekOffset int) bool {
	return weekOffset < r.DurationWeeks
}

// AdaptationRulesFor derives the adaptation rules that apply to the given performance.
//
//nolint:mnd // adaptation thresholds and amounts.
func AdaptationRulesFor(m PerformanceMetrics) []AdaptationRule {
	var rules []AdaptationRule
	if m.Consistency < lowConsistencyThreshold {
		rules = append(rules, AdaptationRule{
			Trigger:       AdaptationTrigger{Kind: TriggerLowConsistency, Threshold: lowConsistencyThreshold},
			Modification:  RuleAction{Kind: ActionDecreaseDistance, Amount: 0.5, Multiplier: 0},
			DurationWeeks: 2,
		})
	}
	if m.AverageEffort >= 0.95 {
		rules = append(rules, AdaptationRule{
			Trigger:       AdaptationTrigger{Kind: TriggerHighEffort, Threshold: 0.95},
			Modification:  RuleAction{Kind: ActionScaleIntensity, Amount: 0, Multiplier: 0.9},
			DurationWeeks: 1,
		})
	}
	if m.ProgressTrend < decliningTrendThreshold {
		rules = append(rules, AdaptationRule{
			Trigger:       AdaptationTrigger{Kind: TriggerDecliningProgress, Threshold: decliningTrendThreshold},
			Modification:  RuleAction{Kind: ActionDecreaseWeight, Amount: 5, Multiplier: 0},
			DurationWeeks: 2,
		})
	}
	if m.ProgressTrend > 0.2 && m.Consistency >= aggressiveConsistency {
		rules = append(rules, AdaptationRule{
			Trigger:       AdaptationTrigger{Kind: TriggerStrongProgress, Threshold: 0.2},
			Modification:  RuleAction{Kind: ActionIncreaseDistance, Amount: 0.5, Multiplier: 0},
			DurationWeeks: 1,
		})
	}
	return rules
}

// adapt applies the adaptation rules covering weekOffset to p and returns the flags of the rules applied.
func adapt(p WorkoutParameters, rules []AdaptationRule, weekOffset int) (WorkoutParameters, []string, error) {
	var flags []string
	for _, r := range rules {
		if !r.appliesTo(weekOffset) {
			continue
		}
		var err error
		if p, err = r.Modification.Apply(p); err != nil {
			return p, nil, fmt.Errorf("apply %s: %w", r.Flag(), err)
		}
		flags = append(flags, r.Flag())
	}
	return p, flags, nil
}
