// Package occurrence decides which events appear on a calendar day and at
// what times. Every function is pure: it reads the events it is given, never
// mutates them, and may be called concurrently.
//
// Calendar days are taken in the location of the queried day. Two instants
// fall on the same calendar day when their year, month and day match in that
// location; time of day is ignored.
package occurrence

import (
	"time"

	"github.com/dukerupert/timenest/internal/model"
)

// OccursOn reports whether the event has an occurrence on day's calendar day.
//
// The event occurs on its start day, on every day of a multi-day span, and
// for recurring events on every matching day from the start day onward.
// Malformed events (end not after start, an invalid rule, or a recurring
// multi-day event) occur on no day at all.
func OccursOn(e model.Event, day time.Time) bool {
	if !wellFormed(e) {
		return false
	}

	loc := day.Location()
	d := dateOf(day, loc)
	start := dateOf(e.Start, loc)

	if d.Equal(start) {
		return true
	}

	if e.IsMultiDay {
		end := dateOf(e.End, loc)
		return !d.Before(start) && !d.After(end)
	}

	if !e.Recurrence.IsZero() && d.After(start) {
		return e.Recurrence.Matches(d, start)
	}

	return false
}

// Project returns the start and end instants of the event's occurrence on
// day. On the event's own start day the stored times are returned unchanged.
// On any other day the occurrence starts at the event's start time of day on
// that date and lasts exactly as long as the stored event.
//
// Project does not check OccursOn; callers filter first.
func Project(e model.Event, day time.Time) (time.Time, time.Time) {
	loc := day.Location()
	start := e.Start.In(loc)
	if SameDay(start, day) {
		return e.Start, e.End
	}

	y, m, d := day.In(loc).Date()
	projected := time.Date(y, m, d, start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), loc)
	return projected, projected.Add(e.End.Sub(e.Start))
}

// SameDay reports whether a and b fall on the same calendar day in b's
// location.
func SameDay(a, b time.Time) bool {
	loc := b.Location()
	return dateOf(a, loc).Equal(dateOf(b, loc))
}

func wellFormed(e model.Event) bool {
	if !e.End.After(e.Start) {
		return false
	}
	if !e.Recurrence.Valid() {
		return false
	}
	return !(e.IsMultiDay && !e.Recurrence.IsZero())
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
