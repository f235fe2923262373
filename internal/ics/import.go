package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/timenest/internal/event"
	"github.com/dukerupert/timenest/internal/recurrence"
)

// Skipped records a VEVENT that could not be imported.
type Skipped struct {
	UID    string `json:"uid"`
	Reason string `json:"reason"`
}

// Parsed is an importable VEVENT.
type Parsed struct {
	UID   string
	Draft event.Draft
}

// Import reads a VCALENDAR and returns one draft per importable VEVENT.
// All-day events and recurrence rules with no equivalent are skipped.
// Floating times are read in loc.
func Import(r io.Reader, loc *time.Location) ([]Parsed, []Skipped, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse calendar: %w", err)
	}

	var parsed []Parsed
	var skipped []Skipped
	for _, ve := range cal.Events() {
		uid := propValue(ve, ical.ComponentPropertyUniqueId)
		d, err := draftFrom(ve, loc)
		if err != nil {
			skipped = append(skipped, Skipped{UID: uid, Reason: err.Error()})
			continue
		}
		parsed = append(parsed, Parsed{UID: uid, Draft: d})
	}
	return parsed, skipped, nil
}

func draftFrom(ve *ical.VEvent, loc *time.Location) (event.Draft, error) {
	if ve.GetProperty(ical.ComponentPropertyRecurrenceId) != nil {
		return event.Draft{}, fmt.Errorf("recurrence overrides are not supported")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil && len(p.Value) == len("20060102") {
		return event.Draft{}, fmt.Errorf("all-day events are not supported")
	}

	start, err := timeProp(ve, ical.ComponentPropertyDtStart, func() (time.Time, error) { return ve.GetStartAt() }, loc)
	if err != nil {
		return event.Draft{}, fmt.Errorf("start: %w", err)
	}
	end, err := timeProp(ve, ical.ComponentPropertyDtEnd, func() (time.Time, error) { return ve.GetEndAt() }, loc)
	if err != nil {
		return event.Draft{}, fmt.Errorf("end: %w", err)
	}

	d := event.Draft{
		Title:       propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		Start:       start,
		End:         end,
	}

	switch propValue(ve, ical.ComponentPropertyClass) {
	case "PUBLIC":
		public := true
		d.IsPublic = &public
	case "PRIVATE", "CONFIDENTIAL":
		public := false
		d.IsPublic = &public
	}

	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		rule, err := recurrence.FromRRule(raw, start)
		if err != nil {
			return event.Draft{}, err
		}
		d.Recurrence = rule.Names()
	}
	return d, nil
}

const floatingLayout = "20060102T150405"

// timeProp reads a date-time property. Floating values, which carry neither
// a TZID nor a trailing Z, are wall-clock times in loc.
func timeProp(ve *ical.VEvent, prop ical.ComponentProperty, get func() (time.Time, error), loc *time.Location) (time.Time, error) {
	p := ve.GetProperty(prop)
	if p == nil {
		return time.Time{}, fmt.Errorf("missing %s", prop)
	}
	_, zoned := p.ICalParameters["TZID"]
	if !zoned && !strings.HasSuffix(p.Value, "Z") {
		return time.ParseInLocation(floatingLayout, p.Value, loc)
	}
	return get()
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}
