package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/timenest/internal/auth"
	"github.com/dukerupert/timenest/internal/event"
	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/store"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeValidation reports a rejected event field as a 400.
func writeValidation(w http.ResponseWriter, err error) bool {
	var verr *event.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// parseFlexibleTime accepts RFC 3339, a local "2006-01-02T15:04" or a bare
// date. Local forms are read in loc.
func parseFlexibleTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

// currentUser loads the authenticated caller. It writes a 401 and returns
// nil when the account no longer exists.
func currentUser(w http.ResponseWriter, r *http.Request, users *store.UserStore) *model.User {
	u, err := users.GetByID(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil
	}
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	return u
}
