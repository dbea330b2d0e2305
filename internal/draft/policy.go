package draft

import "time"

// HeavyDayPolicy decides whether a report date is a heavy-machine round.
type HeavyDayPolicy func(day time.Time) bool

// DefaultHeavyDay is the plant rule: heavy machines are inspected on
// Mondays and Fridays, in the date's own timezone.
func DefaultHeavyDay(day time.Time) bool {
	return WeekdayPolicy(time.Monday, time.Friday)(day)
}

// WeekdayPolicy returns a policy that is true on the given weekdays.
func WeekdayPolicy(days ...time.Weekday) HeavyDayPolicy {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return func(day time.Time) bool {
		return set[day.Weekday()]
	}
}
