package recurrence

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

type Freq int

const (
	None Freq = iota
	Weekly
	Monthly
)

// MonthlyName is the sentinel stored in place of weekday names for events
// that repeat on the same day of every month.
const MonthlyName = "Monthly"

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Rule is the recurrence of an event. A zero Rule means the event does not
// repeat. Days is only meaningful for Weekly and keeps the order the days
// were given in.
type Rule struct {
	Freq Freq
	Days []time.Weekday
}

// Parse builds a Rule from weekday names ("Monday", ...) or the single
// sentinel "Monthly". Names are matched case-insensitively; duplicates are
// collapsed.
func Parse(names []string) (Rule, error) {
	var r Rule
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		if strings.EqualFold(name, MonthlyName) {
			if r.Freq == Weekly {
				return Rule{}, fmt.Errorf("%s cannot be combined with weekdays", MonthlyName)
			}
			r.Freq = Monthly
			continue
		}

		wd, ok := dayNames[strings.ToLower(name)]
		if !ok {
			return Rule{}, fmt.Errorf("unknown day: %q", raw)
		}
		if r.Freq == Monthly {
			return Rule{}, fmt.Errorf("%s cannot be combined with weekdays", MonthlyName)
		}
		r.Freq = Weekly
		if !slices.Contains(r.Days, wd) {
			r.Days = append(r.Days, wd)
		}
	}
	return r, nil
}

// ParseString parses the comma-separated form produced by Encode.
func ParseString(s string) (Rule, error) {
	if strings.TrimSpace(s) == "" {
		return Rule{}, nil
	}
	return Parse(strings.Split(s, ","))
}

// Encode serializes the rule as comma-separated names for storage.
func (r Rule) Encode() string {
	return strings.Join(r.Names(), ",")
}

// Names returns the rule as the list of names it was parsed from.
func (r Rule) Names() []string {
	switch r.Freq {
	case Weekly:
		names := make([]string, 0, len(r.Days))
		for _, d := range r.Days {
			names = append(names, d.String())
		}
		return names
	case Monthly:
		return []string{MonthlyName}
	}
	return []string{}
}

func (r Rule) IsZero() bool {
	return r.Freq == None
}

// Valid reports whether the rule is internally consistent. Rules built by
// Parse are always valid; hand-built ones may not be.
func (r Rule) Valid() bool {
	switch r.Freq {
	case None, Monthly:
		return len(r.Days) == 0
	case Weekly:
		if len(r.Days) == 0 {
			return false
		}
		for _, d := range r.Days {
			if d < time.Sunday || d > time.Saturday {
				return false
			}
		}
		return true
	}
	return false
}

// Matches reports whether day is one of the rule's days, relative to the
// anchor (the first occurrence). It does not check that day is after the
// anchor.
func (r Rule) Matches(day, anchor time.Time) bool {
	switch r.Freq {
	case Weekly:
		return slices.Contains(r.Days, day.Weekday())
	case Monthly:
		return day.Day() == anchor.Day()
	}
	return false
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	switch r.Freq {
	case Weekly:
		var names []string
		for _, d := range r.Days {
			names = append(names, d.String()[:3])
		}
		return "Repeats weekly on " + strings.Join(names, ", ")
	case Monthly:
		return "Repeats monthly"
	}
	return "Does not repeat"
}

// Option converts the rule to an rrule option anchored at dtstart. Monthly
// rules repeat on dtstart's day of month.
func (r Rule) Option(dtstart time.Time) (rrule.ROption, error) {
	switch r.Freq {
	case Weekly:
		days := make([]rrule.Weekday, 0, len(r.Days))
		for _, d := range r.Days {
			days = append(days, rruleDays[d])
		}
		return rrule.ROption{Freq: rrule.WEEKLY, Byweekday: days, Dtstart: dtstart}, nil
	case Monthly:
		return rrule.ROption{Freq: rrule.MONTHLY, Bymonthday: []int{dtstart.Day()}, Dtstart: dtstart}, nil
	}
	return rrule.ROption{}, fmt.Errorf("rule does not repeat")
}

// RRule returns the RFC 5545 RRULE value (without DTSTART), e.g.
// "FREQ=WEEKLY;BYDAY=MO,WE". It returns "" for a non-repeating rule.
func (r Rule) RRule(dtstart time.Time) string {
	opt, err := r.Option(dtstart)
	if err != nil {
		return ""
	}
	opt.Dtstart = time.Time{}
	return opt.RRuleString()
}

// FromRRule converts an RRULE value to a Rule when it can be expressed as
// one: an open-ended weekly rule on whole weekdays, or a monthly rule on
// dtstart's day of month.
func FromRRule(s string, dtstart time.Time) (Rule, error) {
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return Rule{}, fmt.Errorf("parse rrule: %w", err)
	}
	if opt.Interval > 1 || opt.Count > 0 || !opt.Until.IsZero() {
		return Rule{}, fmt.Errorf("unsupported rrule %q: interval, count and until are not supported", s)
	}

	switch opt.Freq {
	case rrule.WEEKLY:
		if len(opt.Byweekday) == 0 {
			return Rule{Freq: Weekly, Days: []time.Weekday{dtstart.Weekday()}}, nil
		}
		r := Rule{Freq: Weekly}
		for _, w := range opt.Byweekday {
			if w.N() != 0 {
				return Rule{}, fmt.Errorf("unsupported rrule %q: numbered weekdays", s)
			}
			wd := weekdayOf(w)
			if !slices.Contains(r.Days, wd) {
				r.Days = append(r.Days, wd)
			}
		}
		return r, nil
	case rrule.MONTHLY:
		if len(opt.Byweekday) > 0 {
			return Rule{}, fmt.Errorf("unsupported rrule %q: monthly by weekday", s)
		}
		if len(opt.Bymonthday) > 0 && (len(opt.Bymonthday) != 1 || opt.Bymonthday[0] != dtstart.Day()) {
			return Rule{}, fmt.Errorf("unsupported rrule %q: day of month must match the start", s)
		}
		return Rule{Freq: Monthly}, nil
	}
	return Rule{}, fmt.Errorf("unsupported rrule %q: only weekly and monthly rules", s)
}

func weekdayOf(w rrule.Weekday) time.Weekday {
	for wd, rw := range rruleDays {
		if rw.Day() == w.Day() {
			return wd
		}
	}
	return time.Sunday
}
