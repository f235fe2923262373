package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/timenest/internal/auth"
	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/store"
	ws "github.com/dukerupert/timenest/internal/websocket"
)

const maxContactListName = 50

type ContactHandler struct {
	contacts *store.ContactStore
	users    *store.UserStore
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewContactHandler(cs *store.ContactStore, us *store.UserStore, hub *ws.Hub, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contacts: cs, users: us, hub: hub, logger: logger}
}

func (h *ContactHandler) publish(action string, l *model.ContactList) {
	h.hub.Publish(ws.NewMessage("contact_list", action, strconv.FormatInt(l.ID, 10)), []int64{l.OwnerID})
}

// load returns the caller's list named in the path. Lists of other users
// are reported as missing.
func (h *ContactHandler) load(w http.ResponseWriter, r *http.Request) (*model.ContactList, bool) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid list ID")
		return nil, false
	}
	l, err := h.contacts.GetByID(id)
	if err != nil {
		h.logger.Error("get contact list", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to get contact list")
		return nil, false
	}
	if l == nil || l.OwnerID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "contact list not found")
		return nil, false
	}
	return l, true
}

// validName trims name and checks it is unused among the owner's other lists.
func (h *ContactHandler) validName(w http.ResponseWriter, ownerID, selfID int64, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxContactListName {
		writeError(w, http.StatusBadRequest, "name must be 1-50 characters")
		return "", false
	}
	lists, err := h.contacts.ListByOwner(ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return "", false
	}
	for _, l := range lists {
		if l.ID != selfID && strings.EqualFold(l.Name, name) {
			writeError(w, http.StatusConflict, "a contact list with that name already exists")
			return "", false
		}
	}
	return name, true
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	lists, err := h.contacts.ListByOwner(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contact lists")
		return
	}
	if lists == nil {
		lists = []model.ContactList{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ownerID := auth.UserID(r.Context())
	name, ok := h.validName(w, ownerID, 0, req.Name)
	if !ok {
		return
	}

	l, err := h.contacts.Create(ownerID, name)
	if err != nil {
		h.logger.Error("create contact list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create contact list")
		return
	}
	h.publish("created", l)
	writeJSON(w, http.StatusCreated, l)
}

func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *ContactHandler) Rename(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name, ok := h.validName(w, l.OwnerID, l.ID, req.Name)
	if !ok {
		return
	}

	updated, err := h.contacts.Rename(l.ID, name)
	if err != nil {
		h.logger.Error("rename contact list", "error", err, "id", l.ID)
		writeError(w, http.StatusInternalServerError, "failed to rename contact list")
		return
	}
	h.publish("updated", updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.contacts.Delete(l.ID); err != nil {
		h.logger.Error("delete contact list", "error", err, "id", l.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete contact list")
		return
	}
	h.publish("deleted", l)
	w.WriteHeader(http.StatusNoContent)
}

// Members returns the public profiles of the list's members.
func (h *ContactHandler) Members(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r)
	if !ok {
		return
	}
	members := make([]model.PublicUser, 0, len(l.MemberIDs))
	for _, id := range l.MemberIDs {
		u, err := h.users.GetByID(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load members")
			return
		}
		if u != nil {
			members = append(members, u.Public())
		}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *ContactHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == l.OwnerID {
		writeError(w, http.StatusBadRequest, "you cannot add yourself to a contact list")
		return
	}
	exists, err := h.users.Exists(req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}
	if !exists {
		writeError(w, http.StatusBadRequest, "unknown user")
		return
	}

	if err := h.contacts.AddMember(l.ID, req.UserID); err != nil {
		h.logger.Error("add contact", "error", err, "id", l.ID)
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	h.respond(w, l.ID)
}

func (h *ContactHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r)
	if !ok {
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	if err := h.contacts.RemoveMember(l.ID, userID); err != nil {
		h.logger.Error("remove contact", "error", err, "id", l.ID)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	h.respond(w, l.ID)
}

func (h *ContactHandler) respond(w http.ResponseWriter, id int64) {
	l, err := h.contacts.GetByID(id)
	if err != nil || l == nil {
		writeError(w, http.StatusInternalServerError, "failed to reload contact list")
		return
	}
	h.publish("updated", l)
	writeJSON(w, http.StatusOK, l)
}
