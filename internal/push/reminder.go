package push

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/occurrence"
	"github.com/dukerupert/timenest/internal/store"
)

// Reminders notifies participants shortly before their events start.
type Reminders struct {
	sender Sender
	push   *store.PushStore
	events *store.EventStore
	lead   time.Duration
	loc    *time.Location
	logger *slog.Logger
}

// NewReminders returns a Reminders that fires lead before each occurrence.
// Calendar days are taken in loc.
func NewReminders(sender Sender, ps *store.PushStore, es *store.EventStore, lead time.Duration, loc *time.Location, logger *slog.Logger) *Reminders {
	return &Reminders{sender: sender, push: ps, events: es, lead: lead, loc: loc, logger: logger}
}

// Due returns the occurrences starting in (now, now+lead]. A multi-day
// event is due only before its first day.
func Due(events []model.Event, now time.Time, lead time.Duration, loc *time.Location) []occurrence.Entry {
	until := now.Add(lead)
	y, m, d := now.In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	y, m, d = until.In(loc).Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	due := []occurrence.Entry{}
	for _, day := range occurrence.ForRange(events, from, to) {
		for _, entry := range day.Entries {
			if entry.Event.IsMultiDay && !entry.Start.Equal(entry.Event.Start) {
				continue
			}
			if entry.Start.After(now) && !entry.Start.After(until) {
				due = append(due, entry)
			}
		}
	}
	return due
}

// Run sends every reminder due at now that has not been sent yet and
// returns how many notifications were delivered.
func (r *Reminders) Run(now time.Time) (int, error) {
	userIDs, err := r.push.ListUserIDs()
	if err != nil {
		return 0, fmt.Errorf("list subscribed users: %w", err)
	}

	delivered := 0
	for _, userID := range userIDs {
		n, err := r.remind(userID, now)
		if err != nil {
			r.logger.Error("reminders", "error", err, "user_id", userID)
			continue
		}
		delivered += n
	}
	return delivered, nil
}

func (r *Reminders) remind(userID int64, now time.Time) (int, error) {
	events, err := r.events.ListByParticipant(userID)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	due := Due(events, now, r.lead, r.loc)
	if len(due) == 0 {
		return 0, nil
	}

	subs, err := r.push.ListByUser(userID)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	delivered := 0
	for _, entry := range due {
		sent, err := r.push.WasSent(entry.Event.ID, userID, entry.Start)
		if err != nil {
			return delivered, err
		}
		if sent {
			continue
		}

		payload := reminderPayload(entry, r.loc)
		ok := 0
		live := subs[:0]
		for i := range subs {
			if err := r.sender.Send(&subs[i], payload); err != nil {
				if errors.Is(err, ErrExpired) {
					r.logger.Info("dropping expired push subscription", "user_id", userID, "subscription_id", subs[i].ID)
					if err := r.push.DeleteByEndpoint(subs[i].Endpoint); err != nil {
						r.logger.Error("delete expired subscription", "error", err)
					}
					continue
				}
				r.logger.Warn("send reminder", "error", err, "user_id", userID, "event_id", entry.Event.ID)
				live = append(live, subs[i])
				continue
			}
			ok++
			live = append(live, subs[i])
		}
		subs = live
		delivered += ok

		// Transient failures on every subscription leave the reminder
		// unrecorded so the next run retries it.
		if ok == 0 && len(subs) > 0 {
			continue
		}
		if err := r.push.RecordSent(entry.Event.ID, userID, entry.Start); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

func reminderPayload(entry occurrence.Entry, loc *time.Location) Payload {
	body := "Starts at " + entry.Start.In(loc).Format("15:04")
	if entry.Event.Location != "" {
		body += " at " + entry.Event.Location
	}
	return Payload{
		Title: entry.Event.Title,
		Body:  body,
		URL:   "/events/" + entry.Event.ID,
		Tag:   "event-" + entry.Event.ID,
	}
}
