// Package event validates event writes and decides who may see or change an
// event. Records leaving this package satisfy every invariant the occurrence
// resolver relies on.
package event

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/occurrence"
	"github.com/dukerupert/timenest/internal/recurrence"
)

const (
	MinTitleLength       = 3
	MaxTitleLength       = 30
	MaxDescriptionLength = 500
)

// ValidationError reports a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Draft carries the user-editable fields of an event.
type Draft struct {
	Title        string
	Description  string
	Location     string
	Start        time.Time
	End          time.Time
	Recurrence   []string
	IsPublic     *bool
	Participants []int64
}

// Prepare validates a draft and builds a new event owned by creator.
// Visibility defaults to the creator's profile preference.
func Prepare(d Draft, creator model.User, now time.Time) (*model.Event, error) {
	e := &model.Event{
		ID:        uuid.NewString(),
		CreatedBy: creator.ID,
		CreatedOn: now,
		UpdatedAt: now,
		IsPublic:  creator.EventsPublic,
	}
	if d.IsPublic != nil {
		e.IsPublic = *d.IsPublic
	}
	e.Participants = participants(creator.ID, d.Participants)

	if err := apply(e, d); err != nil {
		return nil, err
	}
	return e, nil
}

// ApplyUpdate returns a copy of existing with the draft's fields applied.
// Identity, ownership, creation time and participants are kept; visibility
// only changes when the draft sets it.
func ApplyUpdate(existing model.Event, d Draft, now time.Time) (*model.Event, error) {
	e := existing
	e.Participants = slices.Clone(existing.Participants)
	e.UpdatedAt = now
	if d.IsPublic != nil {
		e.IsPublic = *d.IsPublic
	}

	if err := apply(&e, d); err != nil {
		return nil, err
	}
	return &e, nil
}

func apply(e *model.Event, d Draft) error {
	title := strings.TrimSpace(d.Title)
	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return invalid("title", "must be between %d and %d characters", MinTitleLength, MaxTitleLength)
	}

	description := strings.TrimSpace(d.Description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return invalid("description", "must be at most %d characters", MaxDescriptionLength)
	}

	if d.Start.IsZero() || d.End.IsZero() {
		return invalid("start", "start and end are required")
	}
	if !d.End.After(d.Start) {
		return invalid("end", "must be after start")
	}

	rule, err := recurrence.Parse(d.Recurrence)
	if err != nil {
		return invalid("recurrence", "%v", err)
	}

	multiDay := !occurrence.SameDay(d.End, d.Start)
	if multiDay && !rule.IsZero() {
		return invalid("recurrence", "a recurring event must start and end on the same day")
	}

	e.Title = title
	e.Description = description
	e.Location = strings.TrimSpace(d.Location)
	e.Start = d.Start
	e.End = d.End
	e.Recurrence = rule
	e.IsMultiDay = multiDay
	return nil
}

// participants returns the creator followed by the requested ids,
// deduplicated in insertion order.
func participants(creatorID int64, requested []int64) []int64 {
	out := []int64{creatorID}
	for _, id := range requested {
		if id == 0 || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// CanView reports whether the user may read the event.
func CanView(e model.Event, u model.User) bool {
	return e.IsPublic || u.IsAdmin() || e.HasParticipant(u.ID)
}

// CanEdit reports whether the user may change or delete the event.
func CanEdit(e model.Event, u model.User) bool {
	return e.CreatedBy == u.ID || u.IsAdmin()
}

// CanJoin reports whether the user may add themselves to the event.
func CanJoin(e model.Event, u model.User) bool {
	return e.IsPublic || CanEdit(e, u)
}
