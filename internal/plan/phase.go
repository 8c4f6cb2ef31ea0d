package plan

// Phase boundaries as fractions of program progress.
const (
	buildPhaseStart = 0.25
	peakPhaseStart  = 0.75
	taperPhaseStart = 0.9
)

// DeterminePhase maps a week of a program to its training phase.
//
// Ongoing programs (totalWeeks <= 0) are always in the build phase.
func DeterminePhase(week, totalWeeks int) Phase {
	if totalWeeks <= 0 {
		return PhaseBuild
	}
	progress := float64(week) / float64(totalWeeks)
	switch {
	case progress < buildPhaseStart:
		return PhaseFoundation
	case progress < peakPhaseStart:
		return PhaseBuild
	case progress < taperPhaseStart:
		return PhasePeak
	default:
		return PhaseTaper
	}
}
