package clock

import "time"

// Clock is the single source of "now" for date and slot decisions.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type realClock struct {
	loc *time.Location
}

// New returns a wall clock pinned to the clinic's time zone.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return realClock{loc: loc}
}

func (c realClock) Now() time.Time            { return time.Now().In(c.loc) }
func (c realClock) Location() *time.Location { return c.loc }

// Fixed always reports the same instant. Tests use it to make past-date checks deterministic.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }

func (f Fixed) Location() *time.Location { return f.At.Location() }

// DateOf returns the calendar date of t as midnight UTC, the form every date in the engine is kept in.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today is the clinic-local calendar date.
func Today(c Clock) time.Time {
	return DateOf(c.Now().In(c.Location()))
}

// MinuteOfDay is the clinic-local wall-clock minute, 0..1439.
func MinuteOfDay(c Clock) int {
	now := c.Now().In(c.Location())
	return now.Hour()*60 + now.Minute()
}
