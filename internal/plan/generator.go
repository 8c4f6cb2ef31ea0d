package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// generator assembles one workflow for a session. It does no I/O; the service gathers its inputs.
type generator struct {
	session     Session
	template    WorkflowTemplate
	metrics     PerformanceMetrics
	rules       []ProgressionRule
	windowWeeks int
	validity    time.Duration
	now         time.Time
}

// window returns how many weeks to generate starting at the current week of the session.
func (g generator) window() int {
	if g.session.DurationWeeks == 0 {
		return g.windowWeeks
	}
	return min(g.windowWeeks, g.session.RemainingWeeks())
}

// scheduleStart is the later of today and the first day of the current program week.
func (g generator) scheduleStart() time.Time {
	today := truncateToDay(g.now)
	y, m, d := g.session.EnrolledOn.Date()
	weekStart := time.Date(y, m, d, 0, 0, 0, 0, today.Location()).
		AddDate(0, 0, (g.session.CurrentWeek-1)*daysPerWeek)
	if weekStart.After(today) {
		return weekStart
	}
	return today
}

// patternFor picks the week pattern of a program week, cycling through the phase's patterns.
func (g generator) patternFor(week int, phase Phase) WeekPattern {
	patterns := g.template.Phases[phase]
	if len(patterns) == 0 {
		return fallbackPattern()
	}
	return patterns[(week-1)%len(patterns)]
}

func (g generator) generate() (GeneratedWorkflow, ScheduleResult, error) {
	weeks := g.window()
	if weeks <= 0 {
		return GeneratedWorkflow{}, ScheduleResult{}, fmt.Errorf(
			"%w: program of %d weeks is past week %d", ErrGenerationFailed, g.session.DurationWeeks,
			g.session.CurrentWeek)
	}

	winner, hasWinner, err := EvaluateRules(g.rules, g.metrics)
	if err != nil {
		return GeneratedWorkflow{}, ScheduleResult{}, fmt.Errorf("%w: evaluate rules: %w",
			ErrGenerationFailed, err)
	}
	strategy := DetermineStrategy(g.metrics)
	adaptations := AdaptationRulesFor(g.metrics)

	var (
		planned = make(map[string]PlannedWorkout)
		queue   []QueueItem
	)
	startWeek := g.session.CurrentWeek
	for week := startWeek; week < startWeek+weeks; week++ {
		phase := DeterminePhase(week, g.session.DurationWeeks)
		pattern := g.patternFor(week, phase)
		workouts := pattern.Workouts
		if hasWinner {
			workouts = winner.Action.ReshapePattern(workouts)
		}
		for dayIndex, wt := range workouts {
			if wt == WorkoutTypeRest {
				queue = append(queue, QueueItem{
					WorkoutID:   "",
					Type:        WorkoutTypeRest,
					DayIndex:    dayIndex,
					Title:       "",
					Description: "",
				})
				continue
			}
			var w PlannedWorkout
			if w, err = g.plan(week, dayIndex, wt, phase, pattern, strategy, winner, hasWinner, adaptations); err != nil {
				return GeneratedWorkflow{}, ScheduleResult{}, err
			}
			planned[w.ID] = w
			queue = append(queue, QueueItem{
				WorkoutID:   w.ID,
				Type:        wt,
				DayIndex:    dayIndex,
				Title:       workoutTitle(w),
				Description: workoutDescription(w),
			})
		}
	}

	result := Schedule(queue, g.scheduleStart(), g.session.Weekdays)
	workflow := GeneratedWorkflow{
		ID:              uuid.NewString(),
		SessionID:       g.session.ID,
		TemplateID:      g.template.ID,
		GeneratedAt:     g.now,
		ValidUntil:      g.now.Add(g.validity),
		StartWeek:       startWeek,
		Workouts:        make([]PlannedWorkout, 0, len(result.Workouts)),
		Strategy:        strategy,
		AdaptationRules: adaptations,
		AppliedRule:     nil,
		Truncated:       result.Truncated,
	}
	if hasWinner {
		workflow.AppliedRule = &winner
	}
	for _, entry := range result.Workouts {
		w := planned[entry.WorkoutID]
		w.ScheduledDate = entry.Date
		w.CalendarWeek = entry.Week
		workflow.Workouts = append(workflow.Workouts, w)
	}
	return workflow, result, nil
}

// plan produces the planned workout of one training day.
func (g generator) plan(
	week, dayIndex int,
	wt WorkoutType,
	phase Phase,
	pattern WeekPattern,
	strategy ProgressionStrategy,
	winner ProgressionRule,
	hasWinner bool,
	adaptations []AdaptationRule,
) (PlannedWorkout, error) {
	params := ComputeParameters(g.template, week, wt).scaleIntensity(pattern.IntensityModifier)
	params = applyStrategy(params, g.template.BaseParametersFor(wt).Intensity, strategy)

	var flags []string
	if hasWinner && winner.Action.Kind != ActionAddRestDay && winner.Action.Kind != ActionRemoveRestDay {
		var err error
		if params, err = winner.Action.Apply(params); err != nil {
			return PlannedWorkout{}, fmt.Errorf("%w: rule %q: %w", ErrAdaptationFailed, winner.Name, err)
		}
		flags = append(flags, "rule:"+string(winner.Action.Kind))
	}
	params, adapted, err := adapt(params, adaptations, week-g.session.CurrentWeek)
	if err != nil {
		return PlannedWorkout{}, fmt.Errorf("%w: %w", ErrAdaptationFailed, err)
	}
	flags = append(flags, adapted...)

	structure := Synthesize(wt, params, phase)
	return PlannedWorkout{
		ID:                uuid.NewString(),
		SessionID:         g.session.ID,
		Week:              week,
		DayIndex:          dayIndex,
		ScheduledDate:     time.Time{},
		CalendarWeek:      0,
		Type:              wt,
		Phase:             phase,
		Parameters:        params,
		Structure:         structure,
		EstimatedDuration: structure.EstimatedDuration,
		Difficulty:        EstimateDifficulty(params, wt),
		Prerequisites:     DeterminePrerequisites(week, dayIndex),
		AdaptationFlags:   flags,
	}, nil
}

// applyStrategy scales the intensity by the strategy. A conservative strategy never takes it below the template's
// base intensity, or below the unscaled value when that is lower already.
func applyStrategy(p WorkoutParameters, baseIntensity float64, strategy ProgressionStrategy) WorkoutParameters {
	floor := min(p.Intensity, baseIntensity)
	p = p.scaleIntensity(strategy.intensityFactor())
	p.Intensity = max(p.Intensity, floor)
	return p
}

//nolint:gochecknoglobals // constant lookup table.
var workoutNames = map[WorkoutType]string{
	WorkoutTypeRuck:      "Ruck",
	WorkoutTypeRun:       "Run",
	WorkoutTypeEndurance: "Endurance Ruck",
	WorkoutTypeStrength:  "Strength",
	WorkoutTypeInterval:  "Intervals",
	WorkoutTypeTempo:     "Tempo",
	WorkoutTypeRecovery:  "Recovery",
	WorkoutTypeTest:      "Assessment",
	WorkoutTypeRest:      "Rest",
}

func workoutTitle(w PlannedWorkout) string {
	return fmt.Sprintf("Week %d %s", w.Week, workoutNames[w.Type])
}

func workoutDescription(w PlannedWorkout) string {
	p := w.Parameters
	d := w.EstimatedDuration.Round(time.Minute)
	switch {
	case p.TargetDistance > 0 && p.TargetWeight > 0:
		return fmt.Sprintf("%.1f mi with %.1f lbs, about %s, %s.", p.TargetDistance, p.TargetWeight, d, w.Difficulty)
	case p.TargetDistance > 0:
		return fmt.Sprintf("%.1f mi, about %s, %s.", p.TargetDistance, d, w.Difficulty)
	case p.TargetWeight > 0:
		return fmt.Sprintf("%.1f lbs working weight, about %s, %s.", p.TargetWeight, d, w.Difficulty)
	default:
		return fmt.Sprintf("About %s, %s.", d, w.Difficulty)
	}
}

// scheduleEntry turns a planned workout back into its calendar entry.
func scheduleEntry(w PlannedWorkout) ScheduledWorkout {
	return ScheduledWorkout{
		Date:        w.ScheduledDate,
		Week:        w.CalendarWeek,
		Title:       workoutTitle(w),
		Description: workoutDescription(w),
		WorkoutID:   w.ID,
		DayIndex:    w.DayIndex,
		Type:        w.Type,
		Completed:   false,
		Locked:      false,
	}
}
