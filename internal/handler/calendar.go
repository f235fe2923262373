package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/timenest/internal/event"
	"github.com/dukerupert/timenest/internal/ics"
	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/occurrence"
	"github.com/dukerupert/timenest/internal/store"
	ws "github.com/dukerupert/timenest/internal/websocket"
)

// CalendarHandler serves the caller's calendar: every event they take part
// in, laid out by day.
type CalendarHandler struct {
	events   *store.EventStore
	users    *store.UserStore
	hub      *ws.Hub
	loc      *time.Location
	firstDay time.Weekday
	logger   *slog.Logger
	now      func() time.Time
}

func NewCalendarHandler(es *store.EventStore, us *store.UserStore, hub *ws.Hub, loc *time.Location, firstDay time.Weekday, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{events: es, users: us, hub: hub, loc: loc, firstDay: firstDay, logger: logger, now: time.Now}
}

type dayResponse struct {
	Date     string             `json:"date"`
	Timezone string             `json:"timezone"`
	Hour     *int               `json:"hour,omitempty"`
	Entries  []occurrence.Entry `json:"entries"`
}

type rangeResponse struct {
	Start    string           `json:"start"`
	End      string           `json:"end"`
	Timezone string           `json:"timezone"`
	Days     []occurrence.Day `json:"days"`
}

// location resolves the tz query parameter, falling back to the default.
func (h *CalendarHandler) location(w http.ResponseWriter, r *http.Request) (*time.Location, bool) {
	tz := r.URL.Query().Get("tz")
	if tz == "" {
		return h.loc, true
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown timezone")
		return nil, false
	}
	return loc, true
}

// day parses the date query parameter as midnight in loc. It defaults to
// today.
func (h *CalendarHandler) day(w http.ResponseWriter, r *http.Request, loc *time.Location) (time.Time, bool) {
	s := r.URL.Query().Get("date")
	if s == "" {
		y, m, d := h.now().In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	}
	day, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

func (h *CalendarHandler) myEvents(w http.ResponseWriter, r *http.Request) (*model.User, []model.Event, bool) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return nil, nil, false
	}
	events, err := h.events.ListByParticipant(u.ID)
	if err != nil {
		h.logger.Error("list events", "error", err, "user_id", u.ID)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return nil, nil, false
	}
	return u, events, true
}

func (h *CalendarHandler) Day(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r, loc)
	if !ok {
		return
	}
	_, events, ok := h.myEvents(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, dayResponse{
		Date:     day.Format("2006-01-02"),
		Timezone: loc.String(),
		Entries:  occurrence.ForDay(events, day),
	})
}

func (h *CalendarHandler) Hour(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r, loc)
	if !ok {
		return
	}
	hour, err := strconv.Atoi(r.URL.Query().Get("hour"))
	if err != nil || hour < 0 || hour > 23 {
		writeError(w, http.StatusBadRequest, "hour must be 0-23")
		return
	}
	_, events, ok := h.myEvents(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, dayResponse{
		Date:     day.Format("2006-01-02"),
		Timezone: loc.String(),
		Hour:     &hour,
		Entries:  occurrence.ForHour(events, day, hour),
	})
}

func (h *CalendarHandler) Week(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	day, ok := h.day(w, r, loc)
	if !ok {
		return
	}
	_, events, ok := h.myEvents(w, r)
	if !ok {
		return
	}

	start, end := occurrence.WeekRange(day, h.firstDay)
	h.writeRange(w, events, start, end, loc)
}

func (h *CalendarHandler) Month(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}

	var year int
	var month time.Month
	if s := r.URL.Query().Get("month"); s != "" {
		t, err := time.Parse("2006-01", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		year, month = t.Year(), t.Month()
	} else {
		year, month, _ = h.now().In(loc).Date()
	}

	_, events, ok := h.myEvents(w, r)
	if !ok {
		return
	}

	start, end := occurrence.MonthRange(year, month, loc)
	h.writeRange(w, events, start, end, loc)
}

func (h *CalendarHandler) writeRange(w http.ResponseWriter, events []model.Event, start, end time.Time, loc *time.Location) {
	writeJSON(w, http.StatusOK, rangeResponse{
		Start:    start.Format("2006-01-02"),
		End:      end.Format("2006-01-02"),
		Timezone: loc.String(),
		Days:     occurrence.ForRange(events, start, end),
	})
}

// Export serves the caller's events as an iCalendar feed.
func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	u, events, ok := h.myEvents(w, r)
	if !ok {
		return
	}

	people := map[int64]model.User{u.ID: *u}
	for _, e := range events {
		for _, id := range e.Participants {
			if _, seen := people[id]; seen {
				continue
			}
			p, err := h.users.GetByID(id)
			if err != nil {
				h.logger.Error("load participant", "error", err, "user_id", id)
				continue
			}
			if p != nil {
				people[id] = *p
			}
		}
	}

	body := ics.Export(u.Username, events, people, h.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="timenest.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

type importResponse struct {
	Created []eventView   `json:"created"`
	Skipped []ics.Skipped `json:"skipped"`
}

// Import creates events owned by the caller from an uploaded iCalendar file.
// Entries that cannot be represented or fail validation are reported back
// as skipped.
func (h *CalendarHandler) Import(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}

	parsed, skipped, err := ics.Import(http.MaxBytesReader(w, r.Body, maxBodyBytes), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid iCalendar file")
		return
	}

	resp := importResponse{Created: []eventView{}, Skipped: skipped}
	if resp.Skipped == nil {
		resp.Skipped = []ics.Skipped{}
	}
	var prepared []*model.Event
	for _, p := range parsed {
		e, err := event.Prepare(p.Draft, *u, h.now())
		if err != nil {
			resp.Skipped = append(resp.Skipped, ics.Skipped{UID: p.UID, Reason: err.Error()})
			continue
		}
		prepared = append(prepared, e)
	}

	if len(prepared) > 0 {
		created, err := h.events.CreateAll(prepared)
		if err != nil {
			h.logger.Error("import events", "error", err, "user_id", u.ID)
			writeError(w, http.StatusInternalServerError, "failed to import events")
			return
		}
		for _, e := range created {
			h.hub.Publish(ws.NewMessage("event", "created", e.ID), audience(e))
			resp.Created = append(resp.Created, viewOf(e))
		}
	}

	h.logger.Info("calendar imported", "user_id", u.ID, "created", len(resp.Created), "skipped", len(resp.Skipped))
	writeJSON(w, http.StatusOK, resp)
}
