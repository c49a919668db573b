package extractor

import "shr_parser/internal/patterns"

// MinutesPerDay is added when the arrival clock time is earlier than departure.
const MinutesPerDay = 24 * 60

// MinutesBetween returns the flight duration in minutes. An arrival earlier
// than departure is taken as crossing midnight once. Missing times give 0.
func MinutesBetween(dep, arr *patterns.TimeOfDay) int {
	if dep == nil || arr == nil {
		return 0
	}
	d := arr.Minutes() - dep.Minutes()
	if d < 0 {
		d += MinutesPerDay
	}
	return d
}
