package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/timenest/internal/model"
)

func TestSearchUsers(t *testing.T) {
	env := setupEnv(t)
	h := NewSearchHandler(env.events, env.users, time.UTC, env.logger)
	alice := env.createUser(t, "alice", model.RoleUser)
	env.createUser(t, "bob", model.RoleUser)
	env.createUser(t, "alicia", model.RoleUser)

	rec := httptest.NewRecorder()
	h.Users(rec, newRequest(t, "GET", "/api/search/users?q=ALI", nil, alice))
	assertStatus(t, rec, http.StatusOK)
	got := decode[[]map[string]any](t, rec)
	if len(got) != 2 {
		t.Fatalf("got %d users, want 2", len(got))
	}
	for _, u := range got {
		if _, ok := u["email"]; ok {
			t.Error("search results must not expose email")
		}
	}
}

func TestSearchEvents(t *testing.T) {
	env := setupEnv(t)
	eh := newEventHandler(env)
	h := NewSearchHandler(env.events, env.users, time.UTC, env.logger)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	yoga := createEvent(t, eh, alice, map[string]any{
		"title": "Yoga", "start": "2024-03-04T18:00", "end": "2024-03-04T19:00",
		"recurrence": []string{"Monday"}, "is_public": true,
	})
	createEvent(t, eh, alice, map[string]any{
		"title": "Private yoga", "start": "2024-03-05T18:00", "end": "2024-03-05T19:00", "is_public": false,
	})
	createEvent(t, eh, bob, map[string]any{
		"title": "Lunch", "description": "after yoga", "start": "2024-03-06T12:00", "end": "2024-03-06T13:00", "is_public": true,
	})

	rec := httptest.NewRecorder()
	h.Events(rec, newRequest(t, "GET", "/api/search/events?q=yoga", nil, bob))
	assertStatus(t, rec, http.StatusOK)
	got := decode[[]eventView](t, rec)
	if len(got) != 2 {
		t.Fatalf("bob sees %d events, want 2", len(got))
	}
	if got[0].ID != yoga.ID || got[1].Title != "Lunch" {
		t.Errorf("order = %s, %s; title matches should come first", got[0].Title, got[1].Title)
	}

	rec = httptest.NewRecorder()
	h.Events(rec, newRequest(t, "GET", "/api/search/events?q=yoga", nil, alice))
	assertStatus(t, rec, http.StatusOK)
	if got := decode[[]eventView](t, rec); len(got) != 3 {
		t.Errorf("alice sees %d events, want 3", len(got))
	}

	rec = httptest.NewRecorder()
	h.Events(rec, newRequest(t, "GET", "/api/search/events?q=yoga&date=2024-03-11", nil, bob))
	assertStatus(t, rec, http.StatusOK)
	day := decode[dayBody](t, rec)
	if len(day.Entries) != 1 || day.Entries[0].Event.ID != yoga.ID {
		t.Errorf("entries = %+v, want the recurring yoga class", day.Entries)
	}

	rec = httptest.NewRecorder()
	h.Events(rec, newRequest(t, "GET", "/api/search/events?q=yoga&date=soon", nil, bob))
	assertStatus(t, rec, http.StatusBadRequest)
}
