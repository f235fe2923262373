package occurrence

import (
	"time"

	"github.com/dukerupert/timenest/internal/model"
)

// Entry is one occurrence of an event with its projected times.
type Entry struct {
	Event model.Event `json:"event"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
}

// Day groups the entries of a single calendar day.
type Day struct {
	Date    time.Time `json:"date"`
	Entries []Entry   `json:"entries"`
}

// ForDay returns the occurrences on day in the order the events were given.
func ForDay(events []model.Event, day time.Time) []Entry {
	entries := []Entry{}
	for _, e := range events {
		if !OccursOn(e, day) {
			continue
		}
		start, end := Project(e, day)
		entries = append(entries, Entry{Event: e, Start: start, End: end})
	}
	return entries
}

// ForHour returns the occurrences on day that overlap the hour cell starting
// at hour. An occurrence ending exactly on the hour does not spill into it.
//
// An occurrence that runs past midnight fills every cell from its start hour
// to the end of the day. Its end hours only count on the days after the
// event's first day, where they stand for the part carried over from the
// previous evening.
func ForHour(events []model.Event, day time.Time, hour int) []Entry {
	loc := day.Location()
	d := dateOf(day, loc)
	entries := []Entry{}
	for _, entry := range ForDay(events, day) {
		firstDay := dateOf(entry.Event.Start, loc).Equal(d)
		if overlapsHour(entry.Start.In(loc), entry.End.In(loc), hour, firstDay) {
			entries = append(entries, entry)
		}
	}
	return entries
}

func overlapsHour(start, end time.Time, hour int, firstDay bool) bool {
	endsInCell := end.Hour() == hour && end.Minute() > 0
	if dateOf(end, start.Location()).After(dateOf(start, start.Location())) {
		if hour >= start.Hour() {
			return true
		}
		return !firstDay && (hour < end.Hour() || endsInCell)
	}
	if start.Hour() == hour || endsInCell {
		return true
	}
	return start.Hour() < hour && hour < end.Hour()
}

// ForRange returns one Day per calendar day in [from, to), in from's
// location. Days with no occurrences are included with no entries.
func ForRange(events []model.Event, from, to time.Time) []Day {
	loc := from.Location()
	var days []Day
	for d := dateOf(from, loc); d.Before(to); d = d.AddDate(0, 0, 1) {
		days = append(days, Day{Date: d, Entries: ForDay(events, d)})
	}
	return days
}
