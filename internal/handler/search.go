package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/occurrence"
	"github.com/dukerupert/timenest/internal/search"
	"github.com/dukerupert/timenest/internal/store"
)

type SearchHandler struct {
	events *store.EventStore
	users  *store.UserStore
	loc    *time.Location
	logger *slog.Logger
}

func NewSearchHandler(es *store.EventStore, us *store.UserStore, loc *time.Location, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{events: es, users: us, loc: loc, logger: logger}
}

func (h *SearchHandler) Users(w http.ResponseWriter, r *http.Request) {
	all, err := h.users.List()
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search users")
		return
	}
	matches := search.Users(all, r.URL.Query().Get("q"))
	out := make([]model.PublicUser, 0, len(matches))
	for _, u := range matches {
		out = append(out, u.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

// Events searches the events visible to the caller. With a date parameter
// only events occurring that day are returned, as calendar entries.
func (h *SearchHandler) Events(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}
	q := r.URL.Query()

	loc := h.loc
	if tz := q.Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
		loc = l
	}

	var day time.Time
	if s := q.Get("date"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	visible, err := h.events.ListVisible(u.ID, u.IsAdmin())
	if err != nil {
		h.logger.Error("list visible events", "error", err, "user_id", u.ID)
		writeError(w, http.StatusInternalServerError, "failed to search events")
		return
	}
	matches := search.Events(visible, q.Get("q"))

	if day.IsZero() {
		writeJSON(w, http.StatusOK, viewsOf(matches))
		return
	}
	writeJSON(w, http.StatusOK, dayResponse{
		Date:     day.Format("2006-01-02"),
		Timezone: loc.String(),
		Entries:  occurrence.ForDay(matches, day),
	})
}
