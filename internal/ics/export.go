// Package ics converts events to and from iCalendar (RFC 5545).
package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/timenest/internal/model"
)

const productID = "-//TimeNest//Calendar//EN"

// Export renders events as a VCALENDAR. Users resolves participant ids to
// organizer and attendee addresses; unknown ids are left out.
func Export(name string, events []model.Event, users map[int64]model.User, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		ve := cal.AddEvent(e.ID + "@timenest")
		ve.SetDtStampTime(now)
		ve.SetCreatedTime(e.CreatedOn)
		ve.SetModifiedAt(e.UpdatedAt)
		ve.SetStartAt(e.Start)
		ve.SetEndAt(e.End)
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if rule := e.Recurrence.RRule(e.Start); rule != "" {
			ve.AddRrule(rule)
		}
		if e.IsPublic {
			ve.SetProperty(ical.ComponentPropertyClass, "PUBLIC")
		} else {
			ve.SetProperty(ical.ComponentPropertyClass, "PRIVATE")
		}

		if owner, ok := users[e.CreatedBy]; ok {
			ve.SetOrganizer("mailto:" + owner.Email)
		}
		for _, id := range e.Participants {
			if u, ok := users[id]; ok {
				ve.AddAttendee(u.Email)
			}
		}
	}

	return cal.Serialize()
}
