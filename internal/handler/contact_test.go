package handler

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/dukerupert/timenest/internal/model"
)

func createList(t *testing.T, h *ContactHandler, u *model.User, name string) model.ContactList {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Create(rec, newRequest(t, "POST", "/api/contacts", map[string]string{"name": name}, u))
	assertStatus(t, rec, http.StatusCreated)
	return decode[model.ContactList](t, rec)
}

func TestContactListLifecycle(t *testing.T) {
	env := setupEnv(t)
	h := NewContactHandler(env.contacts, env.users, env.hub, env.logger)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	l := createList(t, h, alice, "  Family ")
	if l.Name != "Family" || l.OwnerID != alice.ID {
		t.Errorf("got %+v", l)
	}
	id := strconv.FormatInt(l.ID, 10)

	rec := httptest.NewRecorder()
	h.Create(rec, newRequest(t, "POST", "/api/contacts", map[string]string{"name": "family"}, alice))
	assertStatus(t, rec, http.StatusConflict)

	rec = httptest.NewRecorder()
	h.AddMember(rec, newRequest(t, "POST", "/", map[string]int64{"user_id": bob.ID}, alice, "id", id))
	assertStatus(t, rec, http.StatusOK)
	if got := decode[model.ContactList](t, rec); len(got.MemberIDs) != 1 || got.MemberIDs[0] != bob.ID {
		t.Errorf("members = %v, want [%d]", got.MemberIDs, bob.ID)
	}

	rec = httptest.NewRecorder()
	h.Members(rec, newRequest(t, "GET", "/", nil, alice, "id", id))
	assertStatus(t, rec, http.StatusOK)
	if members := decode[[]model.PublicUser](t, rec); len(members) != 1 || members[0].Username != "bob" {
		t.Errorf("members = %+v", members)
	}

	rec = httptest.NewRecorder()
	h.Rename(rec, newRequest(t, "PATCH", "/", map[string]string{"name": "Relatives"}, alice, "id", id))
	assertStatus(t, rec, http.StatusOK)
	if got := decode[model.ContactList](t, rec); got.Name != "Relatives" {
		t.Errorf("name = %q, want Relatives", got.Name)
	}

	rec = httptest.NewRecorder()
	h.RemoveMember(rec, newRequest(t, "DELETE", "/", nil, alice, "id", id, "userID", strconv.FormatInt(bob.ID, 10)))
	assertStatus(t, rec, http.StatusOK)
	if got := decode[model.ContactList](t, rec); len(got.MemberIDs) != 0 {
		t.Errorf("members = %v, want none", got.MemberIDs)
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, newRequest(t, "DELETE", "/", nil, alice, "id", id))
	assertStatus(t, rec, http.StatusNoContent)

	rec = httptest.NewRecorder()
	h.List(rec, newRequest(t, "GET", "/api/contacts", nil, alice))
	assertStatus(t, rec, http.StatusOK)
	if lists := decode[[]model.ContactList](t, rec); len(lists) != 0 {
		t.Errorf("lists = %+v, want none", lists)
	}
}

func TestContactListRules(t *testing.T) {
	env := setupEnv(t)
	h := NewContactHandler(env.contacts, env.users, env.hub, env.logger)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	l := createList(t, h, alice, "Work")
	id := strconv.FormatInt(l.ID, 10)

	rec := httptest.NewRecorder()
	h.Create(rec, newRequest(t, "POST", "/api/contacts", map[string]string{"name": "   "}, alice))
	assertStatus(t, rec, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	h.AddMember(rec, newRequest(t, "POST", "/", map[string]int64{"user_id": alice.ID}, alice, "id", id))
	assertStatus(t, rec, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	h.AddMember(rec, newRequest(t, "POST", "/", map[string]int64{"user_id": 99}, alice, "id", id))
	assertStatus(t, rec, http.StatusBadRequest)

	// Other users cannot see the list.
	rec = httptest.NewRecorder()
	h.Get(rec, newRequest(t, "GET", "/", nil, bob, "id", id))
	assertStatus(t, rec, http.StatusNotFound)

	// The same name is fine for a different owner.
	createList(t, h, bob, "Work")
}
