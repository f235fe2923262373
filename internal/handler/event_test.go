package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/timenest/internal/model"
)

func newEventHandler(env *testEnv) *EventHandler {
	h := NewEventHandler(env.events, env.users, env.hub, time.UTC, env.logger)
	h.now = func() time.Time { return testNow }
	return h
}

func createEvent(t *testing.T, h *EventHandler, u *model.User, body map[string]any) eventView {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Create(rec, newRequest(t, "POST", "/api/events", body, u))
	assertStatus(t, rec, http.StatusCreated)
	return decode[eventView](t, rec)
}

func standup(public bool) map[string]any {
	return map[string]any{
		"title":     "Standup",
		"start":     "2024-03-04T10:00",
		"end":       "2024-03-04T10:15",
		"is_public": public,
	}
}

func TestCreateEvent(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	body := standup(true)
	body["recurrence"] = []string{"Monday", "Wednesday"}
	body["participants"] = []int64{bob.ID}
	got := createEvent(t, h, alice, body)

	if got.ID == "" {
		t.Error("expected id")
	}
	if got.Kind != model.KindRecurring {
		t.Errorf("kind = %q, want recurring", got.Kind)
	}
	if got.RecurrenceText == "" {
		t.Error("expected recurrence description")
	}
	if len(got.Participants) != 2 || got.Participants[0] != alice.ID || got.Participants[1] != bob.ID {
		t.Errorf("participants = %v, want [%d %d]", got.Participants, alice.ID, bob.ID)
	}
	if !got.Start.Equal(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", got.Start)
	}
	if !got.CreatedOn.Equal(testNow) {
		t.Errorf("created_on = %v, want %v", got.CreatedOn, testNow)
	}
}

func TestCreateEventTimezone(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)

	body := standup(true)
	body["start"] = "2024-03-04T10:00:00-05:00"
	body["end"] = "2024-03-04T11:00:00-05:00"
	got := createEvent(t, h, alice, body)

	if !got.Start.Equal(time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v, want 15:00 UTC", got.Start)
	}

	body["timezone"] = "Not/AZone"
	rec := httptest.NewRecorder()
	h.Create(rec, newRequest(t, "POST", "/api/events", body, alice))
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestCreateEventRejected(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"short title", func(b map[string]any) { b["title"] = "x" }, "title"},
		{"bad start", func(b map[string]any) { b["start"] = "tomorrow" }, "start"},
		{"end before start", func(b map[string]any) { b["end"] = "2024-03-04T09:00" }, "end"},
		{"recurring multi-day", func(b map[string]any) {
			b["recurrence"] = []string{"Monday"}
			b["end"] = "2024-03-05T10:00"
		}, "recurrence"},
		{"unknown participant", func(b map[string]any) { b["participants"] = []int64{42} }, "participants"},
	}
	for _, tt := range tests {
		body := standup(true)
		tt.mutate(body)
		rec := httptest.NewRecorder()
		h.Create(rec, newRequest(t, "POST", "/api/events", body, alice))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
			continue
		}
		got := decode[map[string]string](t, rec)
		if got["field"] != tt.field {
			t.Errorf("%s: field = %q, want %q", tt.name, got["field"], tt.field)
		}
	}
}

func TestPrivateEventVisibility(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)
	carol := env.createUser(t, "carol", model.RoleUser)
	admin := env.createUser(t, "root", model.RoleAdmin)

	body := standup(false)
	body["participants"] = []int64{bob.ID}
	e := createEvent(t, h, alice, body)

	tests := []struct {
		user *model.User
		want int
	}{
		{alice, http.StatusOK},
		{bob, http.StatusOK},
		{carol, http.StatusNotFound},
		{admin, http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.Get(rec, newRequest(t, "GET", "/api/events/"+e.ID, nil, tt.user, "id", e.ID))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.user.Username, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	h.Join(rec, newRequest(t, "POST", "/api/events/"+e.ID+"/join", nil, carol, "id", e.ID))
	assertStatus(t, rec, http.StatusNotFound)
}

func TestUpdateAndDeleteEvent(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	e := createEvent(t, h, alice, standup(true))

	update := standup(true)
	update["title"] = "Retro"
	update["recurrence"] = []string{"Monthly"}

	rec := httptest.NewRecorder()
	h.Update(rec, newRequest(t, "PUT", "/api/events/"+e.ID, update, bob, "id", e.ID))
	assertStatus(t, rec, http.StatusForbidden)

	rec = httptest.NewRecorder()
	h.Update(rec, newRequest(t, "PUT", "/api/events/"+e.ID, update, alice, "id", e.ID))
	assertStatus(t, rec, http.StatusOK)
	got := decode[eventView](t, rec)
	if got.Title != "Retro" || got.Kind != model.KindRecurring {
		t.Errorf("got %+v", got)
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, newRequest(t, "DELETE", "/api/events/"+e.ID, nil, bob, "id", e.ID))
	assertStatus(t, rec, http.StatusForbidden)

	rec = httptest.NewRecorder()
	h.Delete(rec, newRequest(t, "DELETE", "/api/events/"+e.ID, nil, alice, "id", e.ID))
	assertStatus(t, rec, http.StatusNoContent)

	rec = httptest.NewRecorder()
	h.Get(rec, newRequest(t, "GET", "/api/events/"+e.ID, nil, alice, "id", e.ID))
	assertStatus(t, rec, http.StatusNotFound)
}

func TestJoinAndLeave(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	e := createEvent(t, h, alice, standup(true))

	rec := httptest.NewRecorder()
	h.Join(rec, newRequest(t, "POST", "/", nil, bob, "id", e.ID))
	assertStatus(t, rec, http.StatusOK)
	got := decode[eventView](t, rec)
	if !got.HasParticipant(bob.ID) {
		t.Errorf("participants = %v, want bob included", got.Participants)
	}

	rec = httptest.NewRecorder()
	h.ListParticipating(rec, newRequest(t, "GET", "/api/events/participating", nil, bob))
	assertStatus(t, rec, http.StatusOK)
	if list := decode[[]eventView](t, rec); len(list) != 1 {
		t.Errorf("participating = %d events, want 1", len(list))
	}

	rec = httptest.NewRecorder()
	h.Leave(rec, newRequest(t, "POST", "/", nil, bob, "id", e.ID))
	assertStatus(t, rec, http.StatusOK)
	if got := decode[eventView](t, rec); got.HasParticipant(bob.ID) {
		t.Error("bob should have left")
	}

	rec = httptest.NewRecorder()
	h.Leave(rec, newRequest(t, "POST", "/", nil, alice, "id", e.ID))
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestManageParticipants(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)
	carol := env.createUser(t, "carol", model.RoleUser)

	e := createEvent(t, h, alice, standup(false))

	rec := httptest.NewRecorder()
	h.AddParticipant(rec, newRequest(t, "POST", "/", map[string]int64{"user_id": 99}, alice, "id", e.ID))
	assertStatus(t, rec, http.StatusBadRequest)

	for _, id := range []int64{bob.ID, carol.ID} {
		rec = httptest.NewRecorder()
		h.AddParticipant(rec, newRequest(t, "POST", "/", map[string]int64{"user_id": id}, alice, "id", e.ID))
		assertStatus(t, rec, http.StatusOK)
	}
	got := decode[eventView](t, rec)
	want := []int64{alice.ID, bob.ID, carol.ID}
	if len(got.Participants) != len(want) {
		t.Fatalf("participants = %v, want %v", got.Participants, want)
	}
	for i := range want {
		if got.Participants[i] != want[i] {
			t.Errorf("participants[%d] = %d, want %d", i, got.Participants[i], want[i])
		}
	}

	rec = httptest.NewRecorder()
	h.RemoveParticipant(rec, newRequest(t, "DELETE", "/", nil, bob, "id", e.ID, "userID", "3"))
	assertStatus(t, rec, http.StatusForbidden)

	rec = httptest.NewRecorder()
	h.RemoveParticipant(rec, newRequest(t, "DELETE", "/", nil, alice, "id", e.ID, "userID", "3"))
	assertStatus(t, rec, http.StatusOK)
	if got := decode[eventView](t, rec); got.HasParticipant(carol.ID) {
		t.Error("carol should be removed")
	}
}

type invitation struct {
	to      string
	inviter string
	title   string
}

type fakeInviter chan invitation

func (f fakeInviter) SendInvitation(_ context.Context, to model.User, inviter string, e model.Event) error {
	f <- invitation{to: to.Username, inviter: inviter, title: e.Title}
	return nil
}

func TestAddParticipantSendsInvitation(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	sent := make(fakeInviter, 4)
	h.SetInviter(sent)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	e := createEvent(t, h, alice, standup(true))

	for _, id := range []int64{bob.ID, bob.ID, alice.ID} {
		rec := httptest.NewRecorder()
		h.AddParticipant(rec, newRequest(t, "POST", "/", map[string]int64{"user_id": id}, alice, "id", e.ID))
		assertStatus(t, rec, http.StatusOK)
	}

	select {
	case got := <-sent:
		want := invitation{to: "bob", inviter: "alice", title: "Standup"}
		if got != want {
			t.Errorf("invitation = %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no invitation sent")
	}

	rec := httptest.NewRecorder()
	h.Join(rec, newRequest(t, "POST", "/", nil, env.createUser(t, "carol", model.RoleUser), "id", e.ID))
	assertStatus(t, rec, http.StatusOK)

	select {
	case got := <-sent:
		t.Errorf("unexpected invitation %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListMine(t *testing.T) {
	env := setupEnv(t)
	h := newEventHandler(env)
	alice := env.createUser(t, "alice", model.RoleUser)
	bob := env.createUser(t, "bob", model.RoleUser)

	createEvent(t, h, alice, standup(true))
	createEvent(t, h, bob, standup(true))

	rec := httptest.NewRecorder()
	h.ListMine(rec, newRequest(t, "GET", "/api/events/mine", nil, alice))
	assertStatus(t, rec, http.StatusOK)
	list := decode[[]eventView](t, rec)
	if len(list) != 1 || list[0].CreatedBy != alice.ID {
		t.Errorf("got %+v, want alice's single event", list)
	}
}
