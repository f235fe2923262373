package occurrence

import "time"

// WeekRange returns [start, end) of the week containing day, beginning on
// first at midnight.
func WeekRange(day time.Time, first time.Weekday) (time.Time, time.Time) {
	offset := int(day.Weekday()) - int(first)
	if offset < 0 {
		offset += 7
	}
	start := dateOf(day, day.Location()).AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// MonthRange returns [start, end) of the given month in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
