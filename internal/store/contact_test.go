package store

import "testing"

func TestContactListLifecycle(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	cs := NewContactStore(db)
	alice := createUser(t, us, "alice")
	bob := createUser(t, us, "bob")
	carol := createUser(t, us, "carol")

	l, err := cs.Create(alice.ID, "Friends")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Name != "Friends" || l.OwnerID != alice.ID {
		t.Errorf("got %+v", l)
	}
	if l.MemberIDs == nil || len(l.MemberIDs) != 0 {
		t.Errorf("members = %v, want empty", l.MemberIDs)
	}

	if _, err := cs.Create(alice.ID, "Friends"); err == nil {
		t.Error("expected error for duplicate list name")
	}
	if _, err := cs.Create(bob.ID, "Friends"); err != nil {
		t.Errorf("other owners may reuse a name: %v", err)
	}

	cs.AddMember(l.ID, bob.ID)
	cs.AddMember(l.ID, carol.ID)
	cs.AddMember(l.ID, bob.ID)

	got, _ := cs.GetByID(l.ID)
	if len(got.MemberIDs) != 2 || got.MemberIDs[0] != bob.ID || got.MemberIDs[1] != carol.ID {
		t.Errorf("members = %v, want [%d %d]", got.MemberIDs, bob.ID, carol.ID)
	}

	if err := cs.RemoveMember(l.ID, bob.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	renamed, err := cs.Rename(l.ID, "Close friends")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Close friends" || len(renamed.MemberIDs) != 1 {
		t.Errorf("got %+v", renamed)
	}

	lists, err := cs.ListByOwner(alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lists) != 1 || lists[0].MemberIDs[0] != carol.ID {
		t.Errorf("lists = %+v", lists)
	}

	if err := cs.Delete(l.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := cs.GetByID(l.ID); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestContactListGetByIDNotFound(t *testing.T) {
	cs := NewContactStore(setupTestDB(t))

	l, err := cs.GetByID(42)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if l != nil {
		t.Error("expected nil for nonexistent list")
	}
}
