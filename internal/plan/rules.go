package plan

import (
	"encoding/json"
	"fmt"
	"math"
)

// ConditionKind tags a RuleCondition.
type ConditionKind string

const (
	ConditionWeeklyConsistency   ConditionKind = "weekly_consistency"
	ConditionCompletionTimeRatio ConditionKind = "completion_time_ratio"
	ConditionHeartRateRecovery   ConditionKind = "heart_rate_recovery"
	ConditionMissedWorkouts      ConditionKind = "missed_workouts"
	ConditionUserFeedback        ConditionKind = "user_feedback"
)

// Comparison is how an observation is compared with a condition threshold.
type Comparison string

const (
	CompareBelow   Comparison = "below"
	CompareAtLeast Comparison = "at_least"
)

// RuleCondition is the trigger of a progression rule.
type RuleCondition struct {
	Kind       ConditionKind `json:"kind" yaml:"kind"`
	Comparison Comparison    `json:"comparison" yaml:"comparison"`
	Threshold  float64       `json:"threshold" yaml:"threshold"`
}

// observe returns the metric the condition looks at and whether it has been observed.
func (c RuleCondition) observe(m PerformanceMetrics) (float64, bool, error) {
	switch c.Kind {
	case ConditionWeeklyConsistency:
		return m.Consistency, true, nil
	case ConditionCompletionTimeRatio:
		return m.CompletionTimeRatio, m.CompletionTimeRatio > 0, nil
	case ConditionHeartRateRecovery:
		return m.HeartRateRecovery, m.HeartRateRecovery > 0, nil
	case ConditionMissedWorkouts:
		return float64(m.MissedWorkouts), true, nil
	case ConditionUserFeedback:
		return float64(m.FeedbackRating), m.FeedbackRating > 0, nil
	}
	return 0, false, fmt.Errorf("%w: unknown condition kind %q", ErrInvalidParameters, c.Kind)
}

// Matches reports whether the metrics satisfy the condition. Unobserved optional metrics never match.
func (c RuleCondition) Matches(m PerformanceMetrics) (bool, error) {
	v, observed, err := c.observe(m)
	if err != nil || !observed {
		return false, err
	}
	switch c.Comparison {
	case CompareBelow:
		return v < c.Threshold, nil
	case CompareAtLeast:
		return v >= c.Threshold, nil
	}
	return false, fmt.Errorf("%w: unknown comparison %q", ErrInvalidParameters, c.Comparison)
}

func (c RuleCondition) validate() error {
	if _, _, err := c.observe(PerformanceMetrics{}); err != nil { //nolint:exhaustruct // only the kind is checked.
		return err
	}
	if c.Comparison != CompareBelow && c.Comparison != CompareAtLeast {
		return fmt.Errorf("%w: unknown comparison %q", ErrInvalidParameters, c.Comparison)
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidParameters)
	}
	return nil
}

// UnmarshalJSON rejects unknown condition kinds.
func (c *RuleCondition) UnmarshalJSON(data []byte) error {
	type raw RuleCondition
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("unmarshal condition: %w", err)
	}
	if err := RuleCondition(r).validate(); err != nil {
		return err
	}
	*c = RuleCondition(r)
	return nil
}

// ActionKind tags a RuleAction.
type ActionKind string

const (
	ActionIncreaseWeight   ActionKind = "increase_weight"
	ActionDecreaseWeight   ActionKind = "decrease_weight"
	ActionIncreaseDistance ActionKind = "increase_distance"
	ActionDecreaseDistance ActionKind = "decrease_distance"
	ActionScaleIntensity   ActionKind = "scale_intensity"
	ActionAddRestDay       ActionKind = "add_rest_day"
	ActionRemoveRestDay    ActionKind = "remove_rest_day"
)

// RuleAction is the modification a progression or adaptation rule applies. Amount is used by weight and distance
// adjustments, Multiplier by intensity scaling.
type RuleAction struct {
	Kind       ActionKind `json:"kind" yaml:"kind"`
	Amount     float64    `json:"amount,omitempty" yaml:"amount,omitempty"`
	Multiplier float64    `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// Apply returns the parameters with the action applied. Rest-day actions leave parameters unchanged; they reshape
// week patterns instead.
//
// Weight and distance never go below zero and intensity stays within [0, MaxIntensity].
func (a RuleAction) Apply(p WorkoutParameters) (WorkoutParameters, error) {
	switch a.Kind {
	case ActionIncreaseWeight:
		p.TargetWeight = max(p.TargetWeight+a.Amount, 0)
	case ActionDecreaseWeight:
		p.TargetWeight = max(p.TargetWeight-a.Amount, 0)
	case ActionIncreaseDistance:
		p.TargetDistance = max(p.TargetDistance+a.Amount, 0)
	case ActionDecreaseDistance:
		p.TargetDistance = max(p.TargetDistance-a.Amount, 0)
	case ActionScaleIntensity:
		p = p.scaleIntensity(a.Multiplier)
	case ActionAddRestDay, ActionRemoveRestDay:
	default:
		return p, fmt.Errorf("%w: unknown action kind %q", ErrInvalidParameters, a.Kind)
	}
	if math.IsNaN(p.TargetWeight) || math.IsNaN(p.TargetDistance) || math.IsNaN(p.Intensity) {
		return p, fmt.Errorf("%w: %s produced non-numeric parameters", ErrAdaptationFailed, a.Kind)
	}
	return p, nil
}

// ReshapePattern applies rest-day actions to a week pattern. add_rest_day turns the last training workout into rest;
// remove_rest_day turns the first rest entry into recovery. Other actions return the pattern unchanged.
func (a RuleAction) ReshapePattern(workouts []WorkoutType) []WorkoutType {
	//nolint:exhaustive // parameter actions do not reshape patterns.
	switch a.Kind {
	case ActionAddRestDay:
		out := append([]WorkoutType(nil), workouts...)
		for i := len(out) - 1; i >= 0; i-- {
			if out[i] != WorkoutTypeRest {
				out[i] = WorkoutTypeRest
				break
			}
		}
		return out
	case ActionRemoveRestDay:
		out := append([]WorkoutType(nil), workouts...)
		for i := range out {
			if out[i] == WorkoutTypeRest {
				out[i] = WorkoutTypeRecovery
				break
			}
		}
		return out
	}
	return workouts
}

func (a RuleAction) validate() error {
	switch a.Kind {
	case ActionIncreaseWeight, ActionDecreaseWeight, ActionIncreaseDistance, ActionDecreaseDistance:
		if a.Amount < 0 || math.IsNaN(a.Amount) {
			return fmt.Errorf("%w: %s amount must be non-negative", ErrInvalidParameters, a.Kind)
		}
	case ActionScaleIntensity:
		if a.Multiplier <= 0 || math.IsNaN(a.Multiplier) {
			return fmt.Errorf("%w: %s multiplier must be positive", ErrInvalidParameters, a.Kind)
		}
	case ActionAddRestDay, ActionRemoveRestDay:
	default:
		return fmt.Errorf("%w: unknown action kind %q", ErrInvalidParameters, a.Kind)
	}
	return nil
}

// UnmarshalJSON rejects unknown action kinds and invalid amounts.
func (a *RuleAction) UnmarshalJSON(data []byte) error {
	type raw RuleAction
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("unmarshal action: %w", err)
	}
	if err := RuleAction(r).validate(); err != nil {
		return err
	}
	*a = RuleAction(r)
	return nil
}

// Priority orders competing progression rules.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// ProgressionRule is a general-purpose rule reacting to observed performance.
type ProgressionRule struct {
	Name      string        `json:"name" yaml:"name"`
	Condition RuleCondition `json:"condition" yaml:"condition"`
	Action    RuleAction    `json:"action" yaml:"action"`
	Priority  Priority      `json:"priority" yaml:"priority"`
}

// Validate reports malformed rules as [ErrInvalidParameters].
func (r ProgressionRule) Validate() error {
	if err := r.Condition.validate(); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	if err := r.Action.validate(); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	if r.Priority < PriorityLow || r.Priority > PriorityCritical {
		return fmt.Errorf("rule %q: %w: priority %d out of range", r.Name, ErrInvalidParameters, r.Priority)
	}
	return nil
}

// EvaluateRules returns the rule whose action wins for the metrics. Among matching rules the highest priority wins and
// ties go to the rule declared first.
func EvaluateRules(rules []ProgressionRule, m PerformanceMetrics) (ProgressionRule, bool, error) {
	var (
		winner ProgressionRule
		found  bool
	)
	for _, r := range rules {
		ok, err := r.Condition.Matches(m)
		if err != nil {
			return ProgressionRule{}, false, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if ok && (!found || r.Priority > winner.Priority) {
			winner, found = r, true
		}
	}
	return winner, found, nil
}

// DefaultProgressionRules is the rule set used when none is configured.
//
//nolint:mnd // rule thresholds.
func DefaultProgressionRules() []ProgressionRule {
	return []ProgressionRule{
		{
			Name:      "missed three or more workouts",
			Condition: RuleCondition{Kind: ConditionMissedWorkouts, Comparison: CompareAtLeast, Threshold: 3},
			Action:    RuleAction{Kind: ActionAddRestDay, Amount: 0, Multiplier: 0},
			Priority:  PriorityCritical,
		},
		{
			Name:      "slow heart-rate recovery",
			Condition: RuleCondition{Kind: ConditionHeartRateRecovery, Comparison: CompareBelow, Threshold: 12},
			Action:    RuleAction{Kind: ActionScaleIntensity, Amount: 0, Multiplier: 0.9},
			Priority:  PriorityHigh,
		},
		{
			Name:      "workouts feel too hard",
			Condition: RuleCondition{Kind: ConditionUserFeedback, Comparison: CompareAtLeast, Threshold: 5},
			Action:    RuleAction{Kind: ActionDecreaseWeight, Amount: 5, Multiplier: 0},
			Priority:  PriorityHigh,
		},
		{
			Name:      "low weekly consistency",
			Condition: RuleCondition{Kind: ConditionWeeklyConsistency, Comparison: CompareBelow, Threshold: 0.6},
			Action:    RuleAction{Kind: ActionDecreaseDistance, Amount: 0.5, Multiplier: 0},
			Priority:  PriorityMedium,
		},
		{
			Name:      "finishing well ahead of time",
			Condition: RuleCondition{Kind: ConditionCompletionTimeRatio, Comparison: CompareBelow, Threshold: 0.9},
			Action:    RuleAction{Kind: ActionIncreaseDistance, Amount: 0.5, Multiplier: 0},
			Priority:  PriorityLow,
		},
		{
			Name:      "perfect consistency",
			Condition: RuleCondition{Kind: ConditionWeeklyConsistency, Comparison: CompareAtLeast, Threshold: 1},
			Action:    RuleAction{Kind: ActionIncreaseWeight, Amount: 2.5, Multiplier: 0},
			Priority:  PriorityLow,
		},
	}
}
