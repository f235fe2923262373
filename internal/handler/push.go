package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/timenest/internal/auth"
	"github.com/dukerupert/timenest/internal/store"
)

// PushHandler manages the caller's browser push subscriptions.
type PushHandler struct {
	push      *store.PushStore
	publicKey string
	logger    *slog.Logger
}

// NewPushHandler returns a PushHandler. An empty publicKey means push is not
// configured on this server.
func NewPushHandler(ps *store.PushStore, publicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{push: ps, publicKey: publicKey, logger: logger}
}

func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

func (h *PushHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.push.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Subscribe accepts the browser's PushSubscription JSON.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
		DeviceName string `json:"device_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	userID := auth.UserID(r.Context())
	sub, err := h.push.Subscribe(userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth, strings.TrimSpace(req.DeviceName))
	if err != nil {
		h.logger.Error("subscribe", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}
	sub, err := h.push.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil || sub.UserID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err := h.push.Delete(id); err != nil {
		h.logger.Error("unsubscribe", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
