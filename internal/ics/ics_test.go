package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/recurrence"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEvents() ([]model.Event, map[int64]model.User) {
	users := map[int64]model.User{
		1: {ID: 1, Username: "alice", Email: "alice@example.com"},
		2: {ID: 2, Username: "bob", Email: "bob@example.com"},
	}
	events := []model.Event{
		{
			ID:           "standup",
			Title:        "Standup",
			Description:  "Daily sync",
			Location:     "Room 4",
			Start:        time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			End:          time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC),
			CreatedBy:    1,
			CreatedOn:    now,
			UpdatedAt:    now,
			Participants: []int64{1, 2},
			IsPublic:     true,
			Recurrence:   recurrence.Rule{Freq: recurrence.Weekly, Days: []time.Weekday{time.Monday, time.Wednesday}},
		},
		{
			ID:           "dentist",
			Title:        "Dentist",
			Start:        time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
			End:          time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC),
			CreatedBy:    1,
			CreatedOn:    now,
			UpdatedAt:    now,
			Participants: []int64{1, 99},
		},
	}
	return events, users
}

func TestExport(t *testing.T) {
	events, users := sampleEvents()
	out := Export("alice", events, users, now)

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse exported calendar: %v", err)
	}
	got := cal.Events()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}

	standup := got[0]
	if v := propValue(standup, ical.ComponentPropertySummary); v != "Standup" {
		t.Errorf("summary = %q, want Standup", v)
	}
	if v := propValue(standup, ical.ComponentPropertyUniqueId); v != "standup@timenest" {
		t.Errorf("uid = %q", v)
	}
	rule := propValue(standup, ical.ComponentPropertyRrule)
	if !strings.Contains(rule, "FREQ=WEEKLY") || !strings.Contains(rule, "BYDAY=MO,WE") {
		t.Errorf("rrule = %q", rule)
	}
	if v := propValue(standup, ical.ComponentPropertyClass); v != "PUBLIC" {
		t.Errorf("class = %q, want PUBLIC", v)
	}
	if v := propValue(standup, ical.ComponentPropertyOrganizer); !strings.HasSuffix(v, "alice@example.com") {
		t.Errorf("organizer = %q", v)
	}
	if n := len(standup.GetProperties(ical.ComponentPropertyAttendee)); n != 2 {
		t.Errorf("attendees = %d, want 2", n)
	}
	start, err := standup.GetStartAt()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !start.Equal(events[0].Start) {
		t.Errorf("start = %v, want %v", start, events[0].Start)
	}

	dentist := got[1]
	if v := propValue(dentist, ical.ComponentPropertyClass); v != "PRIVATE" {
		t.Errorf("class = %q, want PRIVATE", v)
	}
	if dentist.GetProperty(ical.ComponentPropertyRrule) != nil {
		t.Error("non-recurring event should have no RRULE")
	}
	if n := len(dentist.GetProperties(ical.ComponentPropertyAttendee)); n != 1 {
		t.Errorf("attendees = %d, want 1 (unknown user skipped)", n)
	}
}

func TestImportRoundTrip(t *testing.T) {
	events, users := sampleEvents()
	out := Export("", events, users, now)

	drafts, skipped, err := Import(strings.NewReader(out), time.UTC)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped = %+v", skipped)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}

	d := drafts[0].Draft
	if drafts[0].UID != "standup@timenest" {
		t.Errorf("uid = %q", drafts[0].UID)
	}
	if d.Title != "Standup" || d.Description != "Daily sync" || d.Location != "Room 4" {
		t.Errorf("got %+v", d)
	}
	if !d.Start.Equal(events[0].Start) || !d.End.Equal(events[0].End) {
		t.Errorf("times = %v-%v", d.Start, d.End)
	}
	if strings.Join(d.Recurrence, ",") != "Monday,Wednesday" {
		t.Errorf("recurrence = %v", d.Recurrence)
	}
	if d.IsPublic == nil || !*d.IsPublic {
		t.Error("expected public draft")
	}
	if drafts[1].Draft.IsPublic == nil || *drafts[1].Draft.IsPublic {
		t.Error("expected private draft")
	}
}

func TestImportFloatingAndSkipped(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:floating",
		"SUMMARY:Yoga",
		"DTSTART:20240304T180000",
		"DTEND:20240304T190000",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:allday",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20240305",
		"DTEND;VALUE=DATE:20240306",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:daily",
		"SUMMARY:Vitamins",
		"DTSTART:20240304T080000Z",
		"DTEND:20240304T080500Z",
		"RRULE:FREQ=DAILY",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	est := time.FixedZone("EST", -5*60*60)
	drafts, skipped, err := Import(strings.NewReader(body), est)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	want := time.Date(2024, 3, 4, 18, 0, 0, 0, est)
	if !drafts[0].Draft.Start.Equal(want) {
		t.Errorf("start = %v, want %v", drafts[0].Draft.Start, want)
	}
	if drafts[0].Draft.IsPublic != nil {
		t.Error("visibility should be left to the importer's preference")
	}

	if len(skipped) != 2 {
		t.Fatalf("skipped = %+v, want 2", skipped)
	}
	if skipped[0].UID != "allday" || skipped[1].UID != "daily" {
		t.Errorf("skipped = %+v", skipped)
	}
}

func TestImportInvalid(t *testing.T) {
	if _, _, err := Import(strings.NewReader("not a calendar"), time.UTC); err == nil {
		t.Error("expected error for invalid calendar")
	}
}
