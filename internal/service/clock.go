package service

import "time"

// Clock supplies the current time. The engines take it as a
// dependency so tests can pin "today" to a fixed date.
type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time
	// Today returns the current calendar day in UTC, truncated to
	// midnight. All loan and reservation dates are compared at day
	// granularity.
	Today() time.Time
}

// UTCClock is the production Clock.
type UTCClock struct{}

func (UTCClock) Now() time.Time   { return time.Now().UTC() }
func (UTCClock) Today() time.Time { return DateOnly(time.Now().UTC()) }

// DateOnly truncates a time to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the whole days from a to b at day granularity;
// negative when b is before a.
func daysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)) / (24 * time.Hour))
}
