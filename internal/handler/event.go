package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/dukerupert/timenest/internal/event"
	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/store"
	ws "github.com/dukerupert/timenest/internal/websocket"
)

// Inviter notifies a user who was added to an event by someone else.
type Inviter interface {
	SendInvitation(ctx context.Context, to model.User, inviter string, e model.Event) error
}

type EventHandler struct {
	events  *store.EventStore
	users   *store.UserStore
	hub     *ws.Hub
	invites Inviter
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

func NewEventHandler(es *store.EventStore, us *store.UserStore, hub *ws.Hub, loc *time.Location, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: es, users: us, hub: hub, loc: loc, logger: logger, now: time.Now}
}

// SetInviter enables invitation mail for participants added by an editor.
func (h *EventHandler) SetInviter(inv Inviter) {
	h.invites = inv
}

type eventRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Timezone     string   `json:"timezone"`
	Recurrence   []string `json:"recurrence"`
	IsPublic     *bool    `json:"is_public"`
	Participants []int64  `json:"participants"`
}

// eventView adds derived fields to the stored event.
type eventView struct {
	model.Event
	Kind           model.Kind `json:"kind"`
	RecurrenceText string     `json:"recurrence_text"`
}

func viewOf(e model.Event) eventView {
	return eventView{Event: e, Kind: e.Kind(), RecurrenceText: e.Recurrence.Describe()}
}

func viewsOf(events []model.Event) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, viewOf(e))
	}
	return out
}

func (h *EventHandler) parseDraft(w http.ResponseWriter, r *http.Request) (event.Draft, bool) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return event.Draft{}, false
	}

	loc := h.loc
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return event.Draft{}, false
		}
		loc = l
	}

	start, err := parseFlexibleTime(req.Start, loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be RFC3339 or YYYY-MM-DDTHH:MM", "field": "start"})
		return event.Draft{}, false
	}
	end, err := parseFlexibleTime(req.End, loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be RFC3339 or YYYY-MM-DDTHH:MM", "field": "end"})
		return event.Draft{}, false
	}

	return event.Draft{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		Start:        start,
		End:          end,
		Recurrence:   req.Recurrence,
		IsPublic:     req.IsPublic,
		Participants: req.Participants,
	}, true
}

// load fetches the event named in the path and the caller, writing a 404
// when the caller may not see it.
func (h *EventHandler) load(w http.ResponseWriter, r *http.Request) (*model.Event, *model.User, bool) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return nil, nil, false
	}
	e, err := h.events.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return nil, nil, false
	}
	if e == nil || !event.CanView(*e, *u) {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, nil, false
	}
	return e, u, true
}

// audience lists who should hear about a change to e: everyone for public
// events, otherwise the participants plus any extra users.
func audience(e model.Event, extra ...int64) []int64 {
	if e.IsPublic {
		return nil
	}
	return append(slices.Clone(e.Participants), extra...)
}

func (h *EventHandler) publish(action string, e model.Event, extra ...int64) {
	h.hub.Publish(ws.NewMessage("event", action, e.ID), audience(e, extra...))
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}
	d, ok := h.parseDraft(w, r)
	if !ok {
		return
	}

	e, err := event.Prepare(d, *u, h.now())
	if err != nil {
		if !writeValidation(w, err) {
			writeError(w, http.StatusInternalServerError, "failed to create event")
		}
		return
	}

	exists, err := h.users.Exists(e.Participants...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check participants")
		return
	}
	if !exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown participant", "field": "participants"})
		return
	}

	created, err := h.events.Create(e)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.logger.Info("event created", "id", created.ID, "kind", created.Kind(), "user_id", u.ID)
	h.publish("created", *created)
	writeJSON(w, http.StatusCreated, viewOf(*created))
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, _, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*e))
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, u, ok := h.load(w, r)
	if !ok {
		return
	}
	if !event.CanEdit(*existing, *u) {
		writeError(w, http.StatusForbidden, "only the creator or an administrator can edit this event")
		return
	}
	d, ok := h.parseDraft(w, r)
	if !ok {
		return
	}

	e, err := event.ApplyUpdate(*existing, d, h.now())
	if err != nil {
		if !writeValidation(w, err) {
			writeError(w, http.StatusInternalServerError, "failed to update event")
		}
		return
	}

	updated, err := h.events.Update(e)
	if err != nil {
		h.logger.Error("update event", "error", err, "id", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	h.publish("updated", *updated)
	writeJSON(w, http.StatusOK, viewOf(*updated))
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	e, u, ok := h.load(w, r)
	if !ok {
		return
	}
	if !event.CanEdit(*e, *u) {
		writeError(w, http.StatusForbidden, "only the creator or an administrator can delete this event")
		return
	}

	if err := h.events.Delete(e.ID); err != nil {
		h.logger.Error("delete event", "error", err, "id", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	h.logger.Info("event deleted", "id", e.ID, "user_id", u.ID)
	h.publish("deleted", *e)
	w.WriteHeader(http.StatusNoContent)
}

// ListMine returns the events the caller created.
func (h *EventHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}
	events, err := h.events.ListByCreator(u.ID)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(events))
}

// ListParticipating returns the events the caller takes part in.
func (h *EventHandler) ListParticipating(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}
	events, err := h.events.ListByParticipant(u.ID)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(events))
}

func (h *EventHandler) Join(w http.ResponseWriter, r *http.Request) {
	e, u, ok := h.load(w, r)
	if !ok {
		return
	}
	if !event.CanJoin(*e, *u) {
		writeError(w, http.StatusForbidden, "private events can only be joined by invitation")
		return
	}
	h.addParticipant(w, e, u.ID)
}

func (h *EventHandler) Leave(w http.ResponseWriter, r *http.Request) {
	e, u, ok := h.load(w, r)
	if !ok {
		return
	}
	h.removeParticipant(w, e, u.ID)
}

// AddParticipant lets the creator or an administrator invite a user.
func (h *EventHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	e, u, ok := h.load(w, r)
	if !ok {
		return
	}
	if !event.CanEdit(*e, *u) {
		writeError(w, http.StatusForbidden, "only the creator or an administrator can add participants")
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	invitee, err := h.users.GetByID(req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}
	if invitee == nil {
		writeError(w, http.StatusBadRequest, "unknown user")
		return
	}
	alreadyIn := e.HasParticipant(invitee.ID)
	if !h.addParticipant(w, e, invitee.ID) || alreadyIn || invitee.ID == u.ID {
		return
	}
	h.invite(*invitee, *u, *e)
}

// invite mails the new participant without holding up the response.
func (h *EventHandler) invite(to, from model.User, e model.Event) {
	if h.invites == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.invites.SendInvitation(ctx, to, from.Username, e); err != nil {
			h.logger.Warn("send invitation", "error", err, "event_id", e.ID, "user_id", to.ID)
		}
	}()
}

func (h *EventHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	e, u, ok := h.load(w, r)
	if !ok {
		return
	}
	if !event.CanEdit(*e, *u) {
		writeError(w, http.StatusForbidden, "only the creator or an administrator can remove participants")
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	h.removeParticipant(w, e, userID)
}

func (h *EventHandler) addParticipant(w http.ResponseWriter, e *model.Event, userID int64) bool {
	if err := h.events.AddParticipant(e.ID, userID); err != nil {
		h.logger.Error("add participant", "error", err, "id", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to add participant")
		return false
	}
	return h.respondParticipants(w, e.ID, userID)
}

// removeParticipant drops a user from the event. The creator always stays.
func (h *EventHandler) removeParticipant(w http.ResponseWriter, e *model.Event, userID int64) {
	if userID == e.CreatedBy {
		writeError(w, http.StatusBadRequest, "the creator cannot leave their own event")
		return
	}
	if err := h.events.RemoveParticipant(e.ID, userID); err != nil {
		h.logger.Error("remove participant", "error", err, "id", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to remove participant")
		return
	}
	h.respondParticipants(w, e.ID, userID)
}

func (h *EventHandler) respondParticipants(w http.ResponseWriter, id string, changed int64) bool {
	updated, err := h.events.GetByID(id)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "failed to reload event")
		return false
	}
	h.publish("participants_changed", *updated, changed)
	writeJSON(w, http.StatusOK, viewOf(*updated))
	return true
}
