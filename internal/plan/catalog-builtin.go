package plan

// DefaultTemplateID identifies the template used when no template matches the requested category.
const DefaultTemplateID = "foundation-fitness"

// fallbackPattern is used for phases without any week patterns.
func fallbackPattern() WeekPattern {
	return WeekPattern{
		Workouts:          []WorkoutType{WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeStrength, WorkoutTypeRecovery},
		IntensityModifier: 1,
	}
}

func pattern(modifier float64, workouts ...WorkoutType) WeekPattern {
	return WeekPattern{Workouts: workouts, IntensityModifier: modifier}
}

// params builds base parameters on top of the defaults of the workout type.
func params(wt WorkoutType, weight, distance, pace, intensity float64) WorkoutParameters {
	p := DefaultParameters(wt)
	p.TargetWeight = weight
	p.TargetDistance = distance
	p.TargetPace = pace
	p.Intensity = intensity
	return p
}

// DefaultTemplate is the general-purpose program used when nothing else matches.
//
//nolint:mnd // template data.
func DefaultTemplate() WorkflowTemplate {
	return WorkflowTemplate{
		ID:            DefaultTemplateID,
		Name:          "Foundation Fitness",
		Description:   "Six weeks of easy rucking, strength and recovery to build a base.",
		Category:      CategoryGeneral,
		Difficulty:    DifficultyBeginner,
		DurationWeeks: 6,
		Phases: map[Phase][]WeekPattern{
			PhaseFoundation: {pattern(0.9, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeStrength, WorkoutTypeRest)},
			PhaseBuild: {
				pattern(1, WorkoutTypeRuck, WorkoutTypeStrength, WorkoutTypeRest, WorkoutTypeRecovery),
				pattern(1, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeRun, WorkoutTypeStrength),
			},
			PhasePeak:  {pattern(1.05, WorkoutTypeRuck, WorkoutTypeInterval, WorkoutTypeRest, WorkoutTypeStrength)},
			PhaseTaper: {pattern(0.85, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeRecovery)},
		},
		BaseParameters: map[WorkoutType]WorkoutParameters{
			WorkoutTypeRuck:     params(WorkoutTypeRuck, 15, 2, 17, 0.5),
			WorkoutTypeStrength: params(WorkoutTypeStrength, 20, 0, 0, 0.55),
			WorkoutTypeRun:      params(WorkoutTypeRun, 0, 1.5, 11, 0.55),
		},
		ProgressionRules: []TemplateProgressionRule{
			{StartWeek: 1, EndWeek: 6, WeightProgression: 1.5, DistanceProgression: 0.25, IntensityProgression: 0.02},
		},
	}
}

// BuiltinTemplates returns the templates shipped with the engine in catalog order.
//
//nolint:mnd,funlen // template data.
func BuiltinTemplates() []WorkflowTemplate {
	return []WorkflowTemplate{
		{
			ID:            "military-foundation",
			Name:          "Military Foundation",
			Description:   "Eight weeks of progressive rucking and conditioning for entry-level military fitness tests.",
			Category:      CategoryMilitary,
			Difficulty:    DifficultyBeginner,
			DurationWeeks: 8,
			Phases: map[Phase][]WeekPattern{
				PhaseFoundation: {
					pattern(0.9, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeEndurance, WorkoutTypeRest,
						WorkoutTypeStrength),
				},
				PhaseBuild: {
					pattern(1, WorkoutTypeRuck, WorkoutTypeStrength, WorkoutTypeRest, WorkoutTypeEndurance,
						WorkoutTypeInterval),
					pattern(1, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeEndurance, WorkoutTypeStrength,
						WorkoutTypeRecovery),
				},
				PhasePeak: {
					pattern(1.1, WorkoutTypeRuck, WorkoutTypeInterval, WorkoutTypeRest, WorkoutTypeEndurance,
						WorkoutTypeTempo),
				},
				PhaseTaper: {pattern(0.8, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeTest)},
			},
			BaseParameters: map[WorkoutType]WorkoutParameters{
				WorkoutTypeRuck:      params(WorkoutTypeRuck, 20, 3, 16, 0.55),
				WorkoutTypeEndurance: params(WorkoutTypeEndurance, 25, 4, 16, 0.6),
				WorkoutTypeStrength:  params(WorkoutTypeStrength, 30, 0, 0, 0.65),
				WorkoutTypeInterval:  params(WorkoutTypeInterval, 0, 2, 9.5, 0.8),
				WorkoutTypeTempo:     params(WorkoutTypeTempo, 0, 3, 10.5, 0.75),
				WorkoutTypeTest:      params(WorkoutTypeTest, 35, 4, 15, 1),
			},
			ProgressionRules: []TemplateProgressionRule{
				{StartWeek: 1, EndWeek: 4, WeightProgression: 2.5, DistanceProgression: 0.25, IntensityProgression: 0.02},
				{StartWeek: 5, EndWeek: 8, WeightProgression: 1.5, DistanceProgression: 0.5, IntensityProgression: 0.03},
			},
		},
		{
			ID:            "selection-prep",
			Name:          "Selection Prep",
			Description:   "Twelve weeks of heavy, long rucks and threshold work for selection courses.",
			Category:      CategoryMilitary,
			Difficulty:    DifficultyAdvanced,
			DurationWeeks: 12,
			Phases: map[Phase][]WeekPattern{
				PhaseFoundation: {
					pattern(0.95, WorkoutTypeRuck, WorkoutTypeStrength, WorkoutTypeRun, WorkoutTypeRest,
						WorkoutTypeEndurance, WorkoutTypeRecovery),
				},
				PhaseBuild: {
					pattern(1, WorkoutTypeRuck, WorkoutTypeInterval, WorkoutTypeStrength, WorkoutTypeRest,
						WorkoutTypeEndurance, WorkoutTypeTempo),
					pattern(1.05, WorkoutTypeRuck, WorkoutTypeStrength, WorkoutTypeTempo, WorkoutTypeRest,
						WorkoutTypeEndurance, WorkoutTypeRecovery),
				},
				PhasePeak: {
					pattern(1.1, WorkoutTypeEndurance, WorkoutTypeInterval, WorkoutTypeStrength, WorkoutTypeRest,
						WorkoutTypeRuck, WorkoutTypeTempo),
				},
				PhaseTaper: {pattern(0.8, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeRecovery, WorkoutTypeTest)},
			},
			BaseParameters: map[WorkoutType]WorkoutParameters{
				WorkoutTypeRuck:      params(WorkoutTypeRuck, 45, 6, 14, 0.75),
				WorkoutTypeEndurance: params(WorkoutTypeEndurance, 35, 8, 15, 0.7),
				WorkoutTypeStrength:  params(WorkoutTypeStrength, 60, 0, 0, 0.8),
				WorkoutTypeRun:       params(WorkoutTypeRun, 0, 5, 8.5, 0.7),
				WorkoutTypeInterval:  params(WorkoutTypeInterval, 0, 3, 7.5, 0.9),
				WorkoutTypeTempo:     params(WorkoutTypeTempo, 0, 4, 8, 0.85),
				WorkoutTypeTest:      params(WorkoutTypeTest, 45, 12, 14, 1),
			},
			ProgressionRules: []TemplateProgressionRule{
				{StartWeek: 1, EndWeek: 6, WeightProgression: 2.5, DistanceProgression: 0.5, IntensityProgression: 0.02},
				{StartWeek: 7, EndWeek: 12, WeightProgression: 1, DistanceProgression: 0.25, IntensityProgression: 0.01},
			},
		},
		{
			ID:            "5k-builder",
			Name:          "5K Builder",
			Description:   "Six weeks from easy running to a strong 5K.",
			Category:      CategoryEndurance,
			Difficulty:    DifficultyBeginner,
			DurationWeeks: 6,
			Phases: map[Phase][]WeekPattern{
				PhaseFoundation: {pattern(0.9, WorkoutTypeRun, WorkoutTypeRest, WorkoutTypeRun, WorkoutTypeRecovery)},
				PhaseBuild: {
					pattern(1, WorkoutTypeRun, WorkoutTypeInterval, WorkoutTypeRest, WorkoutTypeTempo),
				},
				PhasePeak:  {pattern(1.1, WorkoutTypeInterval, WorkoutTypeRest, WorkoutTypeTempo, WorkoutTypeRun)},
				PhaseTaper: {pattern(0.8, WorkoutTypeRun, WorkoutTypeRest, WorkoutTypeTest)},
			},
			BaseParameters: map[WorkoutType]WorkoutParameters{
				WorkoutTypeRun:      params(WorkoutTypeRun, 0, 1.5, 11, 0.55),
				WorkoutTypeInterval: params(WorkoutTypeInterval, 0, 1.5, 9.5, 0.8),
				WorkoutTypeTempo:    params(WorkoutTypeTempo, 0, 2, 10, 0.7),
				WorkoutTypeTest:     params(WorkoutTypeTest, 0, 3.1, 9.5, 1),
			},
			ProgressionRules: []TemplateProgressionRule{
				{StartWeek: 1, EndWeek: 6, WeightProgression: 0, DistanceProgression: 0.25, IntensityProgression: 0.03},
			},
		},
		{
			ID:            "strength-base",
			Name:          "Strength Base",
			Description:   "Eight weeks of loaded carries and strength circuits with supporting rucks.",
			Category:      CategoryStrength,
			Difficulty:    DifficultyIntermediate,
			DurationWeeks: 8,
			Phases: map[Phase][]WeekPattern{
				PhaseFoundation: {pattern(0.9, WorkoutTypeStrength, WorkoutTypeRest, WorkoutTypeRuck, WorkoutTypeStrength)},
				PhaseBuild: {
					pattern(1, WorkoutTypeStrength, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeStrength,
						WorkoutTypeRecovery),
				},
				PhasePeak:  {pattern(1.1, WorkoutTypeStrength, WorkoutTypeInterval, WorkoutTypeRest, WorkoutTypeStrength)},
				PhaseTaper: {pattern(0.8, WorkoutTypeStrength, WorkoutTypeRest, WorkoutTypeRecovery)},
			},
			BaseParameters: map[WorkoutType]WorkoutParameters{
				WorkoutTypeStrength: params(WorkoutTypeStrength, 40, 0, 0, 0.7),
				WorkoutTypeRuck:     params(WorkoutTypeRuck, 30, 3, 16, 0.6),
			},
			ProgressionRules: []TemplateProgressionRule{
				{StartWeek: 1, EndWeek: 8, WeightProgression: 5, DistanceProgression: 0, IntensityProgression: 0.02},
			},
		},
		{
			ID:            "maintenance",
			Name:          "Maintenance",
			Description:   "Ongoing balanced week to hold fitness between programs.",
			Category:      CategoryGeneral,
			Difficulty:    DifficultyIntermediate,
			DurationWeeks: 0,
			Phases: map[Phase][]WeekPattern{
				PhaseBuild: {
					pattern(1, WorkoutTypeRuck, WorkoutTypeStrength, WorkoutTypeRest, WorkoutTypeRun),
					pattern(0.95, WorkoutTypeRuck, WorkoutTypeRest, WorkoutTypeStrength, WorkoutTypeRecovery),
				},
			},
			BaseParameters: map[WorkoutType]WorkoutParameters{
				WorkoutTypeRuck:     params(WorkoutTypeRuck, 30, 4, 15, 0.65),
				WorkoutTypeStrength: params(WorkoutTypeStrength, 40, 0, 0, 0.65),
				WorkoutTypeRun:      params(WorkoutTypeRun, 0, 3, 10, 0.6),
			},
			ProgressionRules: nil,
		},
		DefaultTemplate(),
	}
}
