package model

import "time"

// Actor identifies who performs a mutation. It is stored as created_by.
type Actor string

// System is the actor used by imports and repair jobs.
const System Actor = "system"

// Ref returns the actor as a nullable column value.
func (a Actor) Ref() *string {
	if a == "" {
		return nil
	}
	s := string(a)
	return &s
}

// Day truncates t to its calendar date (in t's own location) and returns it as
// UTC midnight, the shape pgx gives back for DATE columns.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from from to to.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// Clock is the current-date source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the server clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T. Useful for repair jobs pinned to a date.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
