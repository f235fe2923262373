package model

import (
	"slices"
	"time"

	"github.com/dukerupert/timenest/internal/recurrence"
)

// Kind classifies how an event is laid out on the calendar.
type Kind string

const (
	KindSingleDay Kind = "single_day"
	KindMultiDay  Kind = "multi_day"
	KindRecurring Kind = "recurring"
)

type Event struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	CreatedBy    int64           `json:"created_by"`
	CreatedOn    time.Time       `json:"created_on"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Participants []int64         `json:"participants"`
	IsPublic     bool            `json:"is_public"`
	Location     string          `json:"location"`
	Recurrence   recurrence.Rule `json:"recurrence"`
	IsMultiDay   bool            `json:"is_multi_day"`
}

// Kind reports the event's schedule. A recurring event is never multi-day
// once it has passed write-path validation.
func (e Event) Kind() Kind {
	switch {
	case !e.Recurrence.IsZero():
		return KindRecurring
	case e.IsMultiDay:
		return KindMultiDay
	}
	return KindSingleDay
}

func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

func (e Event) HasParticipant(userID int64) bool {
	return slices.Contains(e.Participants, userID)
}
