package handle

import "testing"

func TestCaseInsensitiveUsernameLookup(t *testing.T) {
	a := New()
	a.AddHandle(Handle{Username: "Rio", Policy: PolicyInstantExecute, Rooms: AllRooms()})

	if !a.IsAuthorized("rio") || !a.IsAuthorized("RIO") {
		t.Fatal("expected username lookup to be case-insensitive")
	}
}

func TestExternalIDWinsOverUsername(t *testing.T) {
	a := New()
	a.AddHandle(Handle{Username: "rio", ExternalID: "discord-1", Policy: PolicyConfirmFirst, Rooms: AllRooms()})
	a.AddHandle(Handle{Username: "cursor", ExternalID: "discord-2", Policy: PolicyInstantExecute, Rooms: AllRooms()})

	// Username "rio" paired with cursor's external id should resolve via
	// external id, which wins when both are present and distinct.
	tier := a.ResolveTier("rio", "room-a", "discord-2")
	if tier != TierAdmin {
		t.Fatalf("expected external id match to win and resolve admin, got %s", tier)
	}
}

func TestCanExecuteInRoomRequiresInstantExecuteAndRoomMatch(t *testing.T) {
	a := New()
	a.AddHandle(Handle{Username: "rio", Policy: PolicyInstantExecute, Rooms: RoomSet("room-a")})

	if !a.CanExecuteInRoom("rio", "room-a", "") {
		t.Fatal("expected execution permitted in room-a")
	}
	if a.CanExecuteInRoom("rio", "room-b", "") {
		t.Fatal("expected execution denied in room-b")
	}
}

func TestResolveTierUnauthorizedIsGeneral(t *testing.T) {
	a := New()
	if tier := a.ResolveTier("nobody", "room-a", ""); tier != TierGeneral {
		t.Fatalf("expected general tier for unauthorized author, got %s", tier)
	}
}

func TestResolveTierConfirmFirstIsTrusted(t *testing.T) {
	a := New()
	a.AddHandle(Handle{Username: "cursor", Policy: PolicyConfirmFirst, Rooms: AllRooms()})
	if tier := a.ResolveTier("cursor", "room-a", ""); tier != TierTrusted {
		t.Fatalf("expected trusted tier for confirm-first handle, got %s", tier)
	}
}

func TestResolveTierInstantExecuteWrongRoomIsTrusted(t *testing.T) {
	a := New()
	a.AddHandle(Handle{Username: "rio", Policy: PolicyInstantExecute, Rooms: RoomSet("room-a")})
	if tier := a.ResolveTier("rio", "room-b", ""); tier != TierTrusted {
		t.Fatalf("expected trusted tier outside the handle's rooms, got %s", tier)
	}
}

func TestRemoveHandleKeepsIndexesConsistent(t *testing.T) {
	a := New()
	a.AddHandle(Handle{Username: "rio", ExternalID: "discord-1", Policy: PolicyInstantExecute, Rooms: AllRooms()})
	a.RemoveHandle("rio")

	if a.IsAuthorized("rio") || a.IsAuthorizedByID("discord-1") {
		t.Fatal("expected both indexes to drop the removed handle")
	}
}

func TestRemoveHandleByIDKeepsIndexesConsistent(t *testing.T) {
	a := New()
	a.AddHandle(Handle{Username: "rio", ExternalID: "discord-1", Policy: PolicyInstantExecute, Rooms: AllRooms()})
	a.RemoveHandleByID("discord-1")

	if a.IsAuthorized("rio") || a.IsAuthorizedByID("discord-1") {
		t.Fatal("expected both indexes to drop the removed handle")
	}
}
