package reminder

import "time"

const (
	// LeadTime is how long before departure a ride reminder fires.
	LeadTime = 10 * time.Minute

	// DefaultTolerance is the match window for instant-based triggers.
	DefaultTolerance = 60 * time.Second
)

// At returns the reminder instant for a departure.
func At(departure time.Time) time.Time {
	return departure.Add(-LeadTime)
}

// IsDue reports whether trigger has already been reached at now.
func IsDue(trigger, now time.Time) bool {
	return !trigger.After(now)
}

// Matches reports whether a stored trigger fires at target. Instant-based
// triggers match when they are strictly closer than tolerance; calendar
// tuples carry no sub-minute precision and must agree on every field in
// local time.
func Matches(stored Trigger, target time.Time, tolerance time.Duration) bool {
	switch tr := stored.(type) {
	case EpochTrigger:
		return withinTolerance(tr.Millis, target, tolerance)
	case DateTrigger:
		return withinTolerance(tr.Millis, target, tolerance)
	case CalendarTrigger:
		lt := target.Local()
		return tr.Year == lt.Year() &&
			tr.Month == lt.Month() &&
			tr.Day == lt.Day() &&
			tr.Hour == lt.Hour() &&
			tr.Minute == lt.Minute()
	}
	return false
}

func withinTolerance(millis int64, target time.Time, tolerance time.Duration) bool {
	diff := time.Duration(millis-target.UnixMilli()) * time.Millisecond
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}
