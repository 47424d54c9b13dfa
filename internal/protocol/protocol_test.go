package protocol

import (
	"strings"
	"testing"
)

func TestNewUserStateDefaults(t *testing.T) {
	state := NewUserState("user1")
	if state.UserID != "user1" {
		t.Fatalf("UserID = %q, want user1", state.UserID)
	}
	if state.PlaylistPos != 0 {
		t.Fatalf("PlaylistPos = %d, want 0", state.PlaylistPos)
	}
	if !state.Paused {
		t.Fatal("new state should start paused")
	}
	if state.Timestamp == 0 {
		t.Fatal("new state should be timestamped")
	}
}

func TestUpdateDerivesFileName(t *testing.T) {
	state := NewUserState("user1")
	state.Update(3, 12.5, false, "/media/photos/page004.jpg")

	if state.PlaylistPos != 3 {
		t.Fatalf("PlaylistPos = %d, want 3", state.PlaylistPos)
	}
	if state.CurrentFileName != "page004.jpg" {
		t.Fatalf("CurrentFileName = %q, want page004.jpg", state.CurrentFileName)
	}
	if state.Paused {
		t.Fatal("state should be unpaused")
	}

	state.Update(-1, 0, true, "")
	if state.CurrentFileName != "" {
		t.Fatalf("CurrentFileName = %q, want empty after deselect", state.CurrentFileName)
	}
}

func TestUpdateUserUpsertsAndRemoveUserDeletes(t *testing.T) {
	session := NewSessionState()

	u := NewUserState("user1")
	session.UpdateUser(u)
	if session.Len() != 1 {
		t.Fatalf("Len = %d, want 1", session.Len())
	}

	u.PlaylistPos = 7
	session.UpdateUser(u)
	if session.Len() != 1 {
		t.Fatalf("Len after upsert = %d, want 1", session.Len())
	}
	got, ok := session.User("user1")
	if !ok || got.PlaylistPos != 7 {
		t.Fatalf("User(user1) = %+v, %v; want pos 7", got, ok)
	}

	session.RemoveUser("user1")
	if _, ok := session.User("user1"); ok {
		t.Fatal("user1 should be removed")
	}
}

func TestUsersSortedOrdersByID(t *testing.T) {
	session := NewSessionState()
	for _, id := range []string{"carol", "alice", "bob"} {
		session.UpdateUser(NewUserState(id))
	}

	users := session.UsersSorted()
	if len(users) != 3 {
		t.Fatalf("len = %d, want 3", len(users))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if users[i].UserID != want {
			t.Fatalf("users[%d] = %q, want %q", i, users[i].UserID, want)
		}
	}
}

func TestCheckSyncTolerance(t *testing.T) {
	session := NewSessionState()

	if !session.CheckSync(1) {
		t.Fatal("empty session should be trivially in sync")
	}

	u1 := NewUserState("user1")
	u1.PlaylistPos = 5
	session.UpdateUser(u1)
	if !session.CheckSync(1) {
		t.Fatal("single user should be trivially in sync")
	}

	u2 := NewUserState("user2")
	u2.PlaylistPos = 5
	session.UpdateUser(u2)
	if !session.CheckSync(1) {
		t.Fatal("positions {5,5} should be in sync at tolerance 1")
	}

	u2.PlaylistPos = 10
	session.UpdateUser(u2)
	if session.CheckSync(1) {
		t.Fatal("positions {5,10} should be out of sync at tolerance 1")
	}
	if !session.CheckSync(5) {
		t.Fatal("positions {5,10} should be in sync at tolerance 5")
	}
}

func TestSyncSummary(t *testing.T) {
	session := NewSessionState()
	u1 := NewUserState("user1")
	u1.PlaylistPos = 2
	u2 := NewUserState("user2")
	u2.PlaylistPos = 9
	session.UpdateUser(u1)
	session.UpdateUser(u2)

	summary := session.SyncSummary(1)
	if !strings.Contains(summary, "2 users") {
		t.Fatalf("summary %q should mention user count", summary)
	}
	if !strings.Contains(summary, "out of sync") {
		t.Fatalf("summary %q should report out of sync", summary)
	}

	// A wider configured tolerance flips the same spread to in sync.
	relaxed := session.SyncSummary(7)
	if strings.Contains(relaxed, "out of sync") {
		t.Fatalf("summary %q should report in sync at tolerance 7", relaxed)
	}
}

func TestDisplayLineNoFile(t *testing.T) {
	state := NewUserState("user1")
	line := state.DisplayLine()
	if !strings.Contains(line, "(no file)") {
		t.Fatalf("line %q should show placeholder for missing file", line)
	}
	if !strings.Contains(line, "paused") {
		t.Fatalf("line %q should show paused status", line)
	}
}
