package plan

import (
	"slices"
	"time"
)

// MaxScheduleDays bounds how far the scheduler walks the calendar from the start date.
const MaxScheduleDays = 100

const daysPerWeek = 7

// QueueItem is one entry of the flattened, week-ordered workout queue handed to the scheduler.
type QueueItem struct {
	WorkoutID   string
	Type        WorkoutType
	DayIndex    int
	Title       string
	Description string
}

// ScheduleResult is the outcome of mapping a queue onto calendar dates.
type ScheduleResult struct {
	Workouts []ScheduledWorkout
	// Truncated is set when the day cap was reached before the queue ran out of training workouts.
	Truncated bool
	// Unscheduled counts the non-rest items left in the queue.
	Unscheduled int
}

// Schedule assigns queue items to dates starting at start, one per preferred weekday.
//
// Rest items consume their queue slot without occupying a date. Week numbers are calendar-relative:
// floor(daysSinceStart/7)+1. The walk stops when the queue is empty or after [MaxScheduleDays] days.
func Schedule(queue []QueueItem, start time.Time, weekdays []time.Weekday) ScheduleResult {
	start = truncateToDay(start)
	var (
		result ScheduleResult
		next   int
	)
	for day := 0; day < MaxScheduleDays && next < len(queue); day++ {
		date := start.AddDate(0, 0, day)
		if !slices.Contains(weekdays, date.Weekday()) {
			continue
		}
		for next < len(queue) && queue[next].Type == WorkoutTypeRest {
			next++
		}
		if next == len(queue) {
			break
		}
		item := queue[next]
		next++
		result.Workouts = append(result.Workouts, ScheduledWorkout{
			Date:        date,
			Week:        day/daysPerWeek + 1,
			Title:       item.Title,
			Description: item.Description,
			WorkoutID:   item.WorkoutID,
			DayIndex:    item.DayIndex,
			Type:        item.Type,
			Completed:   false,
			Locked:      false,
		})
	}
	for _, item := range queue[next:] {
		if item.Type != WorkoutTypeRest {
			result.Unscheduled++
		}
	}
	result.Truncated = result.Unscheduled > 0
	return result
}

// truncateToDay returns midnight of t's calendar day in t's location.
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
