package plan

import (
	"time"
)

// Category is the program family a template targets.
type Category string

const (
	CategoryMilitary  Category = "military"
	CategoryEndurance Category = "endurance"
	CategoryStrength  Category = "strength"
	CategoryGeneral   Category = "general"
)

// Difficulty is the experience level a template targets.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Phase is a coarse stage of a program driving intensity shaping.
type Phase string

const (
	PhaseFoundation Phase = "foundation"
	PhaseBuild      Phase = "build"
	PhasePeak       Phase = "peak"
	PhaseTaper      Phase = "taper"
)

// WorkoutType is the kind of session planned for a training day.
type WorkoutType string

const (
	WorkoutTypeRuck      WorkoutType = "ruck"
	WorkoutTypeRun       WorkoutType = "run"
	WorkoutTypeEndurance WorkoutType = "endurance"
	WorkoutTypeStrength  WorkoutType = "strength"
	WorkoutTypeInterval  WorkoutType = "interval"
	WorkoutTypeTempo     WorkoutType = "tempo"
	WorkoutTypeRecovery  WorkoutType = "recovery"
	WorkoutTypeTest      WorkoutType = "test"
	WorkoutTypeRest      WorkoutType = "rest"
)

// WorkoutTypes lists every known workout type in a stable order.
func WorkoutTypes() []WorkoutType {
	return []WorkoutType{
		WorkoutTypeRuck, WorkoutTypeRun, WorkoutTypeEndurance, WorkoutTypeStrength, WorkoutTypeInterval,
		WorkoutTypeTempo, WorkoutTypeRecovery, WorkoutTypeTest, WorkoutTypeRest,
	}
}

// IsValid reports whether wt is a known workout type.
func (wt WorkoutType) IsValid() bool {
	for _, known := range WorkoutTypes() {
		if wt == known {
			return true
		}
	}
	return false
}

// WorkoutParameters are the concrete training targets of a single workout.
//
// Distances are in miles, weights in pounds and pace in minutes per mile.
type WorkoutParameters struct {
	TargetWeight     float64       `json:"targetWeight" yaml:"targetWeight"`
	TargetDistance   float64       `json:"targetDistance" yaml:"targetDistance"`
	TargetPace       float64       `json:"targetPace" yaml:"targetPace"`
	Intensity        float64       `json:"intensity" yaml:"intensity"`
	RestInterval     time.Duration `json:"restInterval" yaml:"restInterval"`
	WarmupDuration   time.Duration `json:"warmupDuration" yaml:"warmupDuration"`
	CooldownDuration time.Duration `json:"cooldownDuration" yaml:"cooldownDuration"`
	MaxHeartRate     int           `json:"maxHeartRate" yaml:"maxHeartRate"`
	HeartRateZone    int           `json:"heartRateZone" yaml:"heartRateZone"`
}

// WeekPattern is the ordered list of workout types for one week-slot.
type WeekPattern struct {
	Workouts          []WorkoutType `json:"workouts" yaml:"workouts"`
	IntensityModifier float64       `json:"intensityModifier" yaml:"intensityModifier"`
}

// TemplateProgressionRule describes how parameters grow per week within the closed range [StartWeek, EndWeek].
type TemplateProgressionRule struct {
	StartWeek            int     `json:"startWeek" yaml:"startWeek"`
	EndWeek              int     `json:"endWeek" yaml:"endWeek"`
	WeightProgression    float64 `json:"weightProgression" yaml:"weightProgression"`
	DistanceProgression  float64 `json:"distanceProgression" yaml:"distanceProgression"`
	IntensityProgression float64 `json:"intensityProgression" yaml:"intensityProgression"`
}

// Contains reports whether week falls in the rule's range.
func (r TemplateProgressionRule) Contains(week int) bool {
	return week >= r.StartWeek && week <= r.EndWeek
}

// WorkflowTemplate is an immutable blueprint for a multi-week training program.
type WorkflowTemplate struct {
	ID               string                            `json:"id" yaml:"id"`
	Name             string                            `json:"name" yaml:"name"`
	Description      string                            `json:"description" yaml:"description"`
	Category         Category                          `json:"category" yaml:"category"`
	Difficulty       Difficulty                        `json:"difficulty" yaml:"difficulty"`
	DurationWeeks    int                               `json:"durationWeeks" yaml:"durationWeeks"`
	Phases           map[Phase][]WeekPattern           `json:"phases" yaml:"phases"`
	BaseParameters   map[WorkoutType]WorkoutParameters `json:"baseParameters" yaml:"baseParameters"`
	ProgressionRules []TemplateProgressionRule         `json:"progressionRules" yaml:"progressionRules"`
}

// IsOngoing reports whether the template has no fixed end, such as maintenance programs.
func (t WorkflowTemplate) IsOngoing() bool {
	return t.DurationWeeks == 0
}

// SegmentType is the role of a segment within a workout.
type SegmentType string

const (
	SegmentTypeWarmup   SegmentType = "warmup"
	SegmentTypeSteady   SegmentType = "steady"
	SegmentTypeInterval SegmentType = "interval"
	SegmentTypeRest     SegmentType = "rest"
	SegmentTypeBuildup  SegmentType = "buildup"
	SegmentTypeTempo    SegmentType = "tempo"
	SegmentTypeRecovery SegmentType = "recovery"
	SegmentTypeTest     SegmentType = "test"
	SegmentTypeCooldown SegmentType = "cooldown"
)

// DefaultPaceMinutesPerMile converts distance-based segments to time when no pace is given.
const DefaultPaceMinutesPerMile = 15.0

// DurationKind tags a SegmentDuration.
type DurationKind string

const (
	DurationKindTime     DurationKind = "time"
	DurationKindDistance DurationKind = "distance"
)

// SegmentDuration is either a fixed elapsed time or a distance covered at a pace.
type SegmentDuration struct {
	Kind               DurationKind  `json:"kind"`
	Time               time.Duration `json:"time,omitempty"`
	Miles              float64       `json:"miles,omitempty"`
	PaceMinutesPerMile float64       `json:"paceMinutesPerMile,omitempty"`
}

// TimeDuration creates a fixed-time segment duration.
func TimeDuration(d time.Duration) SegmentDuration {
	return SegmentDuration{Kind: DurationKindTime, Time: d, Miles: 0, PaceMinutesPerMile: 0}
}

// DistanceDuration creates a distance segment duration. A non-positive pace falls back to
// [DefaultPaceMinutesPerMile].
func DistanceDuration(miles, paceMinutesPerMile float64) SegmentDuration {
	return SegmentDuration{Kind: DurationKindDistance, Time: 0, Miles: miles, PaceMinutesPerMile: paceMinutesPerMile}
}

// Duration converts the segment duration to elapsed time.
func (d SegmentDuration) Duration() time.Duration {
	switch d.Kind {
	case DurationKindTime:
		return d.Time
	case DurationKindDistance:
		pace := d.PaceMinutesPerMile
		if pace <= 0 {
			pace = DefaultPaceMinutesPerMile
		}
		return time.Duration(d.Miles * pace * float64(time.Minute))
	default:
		return 0
	}
}

// TargetMetrics are the optional targets displayed for a segment.
type TargetMetrics struct {
	PaceMinutesPerMile float64 `json:"paceMinutesPerMile,omitempty"`
	HeartRateZone      int     `json:"heartRateZone,omitempty"`
	Weight             float64 `json:"weight,omitempty"`
}

// WorkoutSegment is one block of a workout.
type WorkoutSegment struct {
	Type         SegmentType     `json:"type"`
	Duration     SegmentDuration `json:"duration"`
	Intensity    float64         `json:"intensity"`
	Instructions string          `json:"instructions"`
	Targets      TargetMetrics   `json:"targets"`
}

// WorkoutStructure is a workout expanded into warmup, main segments and cooldown.
type WorkoutStructure struct {
	Warmup            WorkoutSegment   `json:"warmup"`
	Main              []WorkoutSegment `json:"main"`
	Cooldown          WorkoutSegment   `json:"cooldown"`
	EstimatedDuration time.Duration    `json:"estimatedDuration"`
}

// DifficultyTier is the coarse difficulty estimate of a workout.
type DifficultyTier string

const (
	TierEasy     DifficultyTier = "easy"
	TierModerate DifficultyTier = "moderate"
	TierHard     DifficultyTier = "hard"
	TierExtreme  DifficultyTier = "extreme"
)

// PrerequisiteKind identifies what must hold before a workout starts.
type PrerequisiteKind string

const (
	PrerequisiteRest        PrerequisiteKind = "rest_since_last_workout"
	PrerequisiteEquipment   PrerequisiteKind = "baseline_equipment"
	PrerequisiteHealthCheck PrerequisiteKind = "health_check"
)

// Prerequisite is a condition to satisfy before starting a workout.
type Prerequisite struct {
	Kind        PrerequisiteKind `json:"kind"`
	Description string           `json:"description"`
	MinimumRest time.Duration    `json:"minimumRest,omitempty"`
}

// PlannedWorkout is a single generated workout of a workflow.
type PlannedWorkout struct {
	ID                string            `json:"id"`
	SessionID         string            `json:"sessionId"`
	Week              int               `json:"week"`
	DayIndex          int               `json:"dayIndex"`
	ScheduledDate     time.Time         `json:"scheduledDate"`
	CalendarWeek      int               `json:"calendarWeek"`
	Type              WorkoutType       `json:"type"`
	Phase             Phase             `json:"phase"`
	Parameters        WorkoutParameters `json:"parameters"`
	Structure         WorkoutStructure  `json:"structure"`
	EstimatedDuration time.Duration     `json:"estimatedDuration"`
	Difficulty        DifficultyTier    `json:"difficulty"`
	Prerequisites     []Prerequisite    `json:"prerequisites"`
	AdaptationFlags   []string          `json:"adaptationFlags"`
}

// ProgressionStrategy is how hard a generated workflow pushes the trainee.
type ProgressionStrategy string

const (
	StrategyAggressive   ProgressionStrategy = "aggressive"
	StrategyModerate     ProgressionStrategy = "moderate"
	StrategyConservative ProgressionStrategy = "conservative"
)

// GeneratedWorkflow is one generated, date-stamped batch of planned workouts for a session. It is never mutated
// after generation; the next generation supersedes it.
type GeneratedWorkflow struct {
	ID              string              `json:"id"`
	SessionID       string              `json:"sessionId"`
	TemplateID      string              `json:"templateId"`
	GeneratedAt     time.Time           `json:"generatedAt"`
	ValidUntil      time.Time           `json:"validUntil"`
	StartWeek       int                 `json:"startWeek"`
	Workouts        []PlannedWorkout    `json:"workouts"`
	Strategy        ProgressionStrategy `json:"strategy"`
	AdaptationRules []AdaptationRule    `json:"adaptationRules"`
	AppliedRule     *ProgressionRule    `json:"appliedRule,omitempty"`
	Truncated       bool                `json:"truncated"`
}

// IsExpired reports whether the workflow is past its validity period.
func (w GeneratedWorkflow) IsExpired(now time.Time) bool {
	return !now.Before(w.ValidUntil)
}

// NeedsRegeneration reports whether the workflow should be regenerated. The check is advisory.
func (w GeneratedWorkflow) NeedsRegeneration(now time.Time, metrics PerformanceMetrics) bool {
	return len(w.RegenerationReasons(now, metrics)) > 0
}

// RegenerationReasons lists the triggers that currently ask for regeneration, most urgent first.
func (w GeneratedWorkflow) RegenerationReasons(now time.Time, metrics PerformanceMetrics) []RegenerationReason {
	var reasons []RegenerationReason
	if w.IsExpired(now) {
		reasons = append(reasons, ReasonExpired)
	}
	if metrics.Consistency < lowConsistencyThreshold {
		reasons = append(reasons, ReasonLowConsistency)
	}
	if metrics.ProgressTrend < decliningTrendThreshold {
		reasons = append(reasons, ReasonDecliningProgress)
	}
	return reasons
}

// ActiveWorkflow wraps the current workflow of a session with its mutable bookkeeping.
type ActiveWorkflow struct {
	Workflow          GeneratedWorkflow `json:"workflow"`
	CurrentWeek       int               `json:"currentWeek"`
	LastRegeneratedAt time.Time         `json:"lastRegeneratedAt"`
	AdaptationCount   int               `json:"adaptationCount"`
}

// ScheduledWorkout is a calendar entry produced by the scheduler.
type ScheduledWorkout struct {
	Date        time.Time   `json:"date"`
	Week        int         `json:"week"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	WorkoutID   string      `json:"workoutId"`
	DayIndex    int         `json:"dayIndex"`
	Type        WorkoutType `json:"type"`
	Completed   bool        `json:"completed"`
	Locked      bool        `json:"locked"`
}

// PerformanceMetrics is a snapshot computed outside the engine from completion history.
//
// Consistency is the share of planned workouts completed, AverageEffort the mean perceived effort relative to the
// target and ProgressTrend a signed trend where negative values mean declining performance. The remaining fields are
// optional observations consumed by progression rules; zero means not observed.
type PerformanceMetrics struct {
	Consistency         float64   `json:"consistency"`
	AverageEffort       float64   `json:"averageEffort"`
	ProgressTrend       float64   `json:"progressTrend"`
	CompletionTimeRatio float64   `json:"completionTimeRatio,omitempty"`
	HeartRateRecovery   float64   `json:"heartRateRecovery,omitempty"`
	MissedWorkouts      int       `json:"missedWorkouts,omitempty"`
	FeedbackRating      int       `json:"feedbackRating,omitempty"`
	RecordedAt          time.Time `json:"recordedAt"`
}

// NeutralPerformance is assumed for sessions without any recorded performance.
func NeutralPerformance() PerformanceMetrics {
	return PerformanceMetrics{
		Consistency:         0.8, //nolint:mnd // moderate strategy, no regeneration trigger
		AverageEffort:       0.8, //nolint:mnd // moderate strategy, no regeneration trigger
		ProgressTrend:       0,
		CompletionTimeRatio: 0,
		HeartRateRecovery:   0,
		MissedWorkouts:      0,
		FeedbackRating:      0,
		RecordedAt:          time.Time{},
	}
}

// RegenerationReason explains why a workflow was regenerated.
type RegenerationReason string

const (
	ReasonInitial           RegenerationReason = "initial"
	ReasonExpired           RegenerationReason = "expired"
	ReasonLowConsistency    RegenerationReason = "low_consistency"
	ReasonDecliningProgress RegenerationReason = "declining_progress"
	ReasonManual            RegenerationReason = "manual"
	ReasonScheduleChanged   RegenerationReason = "schedule_changed"
	ReasonWeekAdvanced      RegenerationReason = "week_advanced"
)

// IsValid reports whether r is a known regeneration reason.
func (r RegenerationReason) IsValid() bool {
	switch r {
	case ReasonInitial, ReasonExpired, ReasonLowConsistency, ReasonDecliningProgress, ReasonManual,
		ReasonScheduleChanged, ReasonWeekAdvanced:
		return true
	}
	return false
}

// AdaptationRecord is an append-only entry in a session's regeneration history.
type AdaptationRecord struct {
	ID                 string             `json:"id"`
	SessionID          string             `json:"sessionId"`
	Reason             RegenerationReason `json:"reason"`
	Metrics            PerformanceMetrics `json:"metrics"`
	PreviousWorkflowID string             `json:"previousWorkflowId"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// Session is an enrolled training program as seen by the engine.
type Session struct {
	ID                string         `json:"id"`
	Category          Category       `json:"category"`
	Difficulty        Difficulty     `json:"difficulty"`
	TemplateID        string         `json:"templateId"`
	DurationWeeks     int            `json:"durationWeeks"`
	CurrentWeek       int            `json:"currentWeek"`
	Weekdays          []time.Weekday `json:"weekdays"`
	EnrolledOn        time.Time      `json:"enrolledOn"`
	Active            bool           `json:"active"`
	LastRegeneratedAt time.Time      `json:"lastRegeneratedAt"`
	AdaptationCount   int            `json:"adaptationCount"`
}

// RemainingWeeks returns the number of weeks left including the current one. Ongoing programs report zero.
func (s Session) RemainingWeeks() int {
	if s.DurationWeeks == 0 {
		return 0
	}
	return max(s.DurationWeeks-s.CurrentWeek+1, 0)
}

// Enrollment is the input for enrolling into a program.
type Enrollment struct {
	Category   Category       `json:"category"`
	Difficulty Difficulty     `json:"difficulty"`
	Weekdays   []time.Weekday `json:"weekdays"`
	StartDate  time.Time      `json:"startDate"`
}

// RegenerationCheck is the advisory regeneration state of a session.
type RegenerationCheck struct {
	SessionID         string               `json:"sessionId"`
	WorkflowID        string               `json:"workflowId"`
	GeneratedAt       time.Time            `json:"generatedAt"`
	Expired           bool                 `json:"expired"`
	NeedsRegeneration bool                 `json:"needsRegeneration"`
	Reasons           []RegenerationReason `json:"reasons"`
	Metrics           PerformanceMetrics   `json:"metrics"`
}
