// Package handle implements the Handle Authority: resolving a chat author
// into an execution tier (spec §4.3).
package handle

import "strings"

// Policy governs whether a handle's requests execute immediately or need
// confirmation.
type Policy string

const (
	PolicyInstantExecute Policy = "instant-execute"
	PolicyConfirmFirst   Policy = "confirm-first"
)

// Tier is the execution tier Steering Loop consumes.
type Tier string

const (
	TierAdmin   Tier = "admin"
	TierTrusted Tier = "trusted"
	TierGeneral Tier = "general"
)

// Rooms is either "all" or an explicit set of room names.
type Rooms struct {
	All   bool
	Names map[string]bool
}

// AllRooms returns a Rooms value matching every room.
func AllRooms() Rooms { return Rooms{All: true} }

// RoomSet returns a Rooms value matching only the named rooms.
func RoomSet(names ...string) Rooms {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return Rooms{Names: set}
}

// Contains reports whether room is permitted.
func (r Rooms) Contains(room string) bool {
	if r.All {
		return true
	}
	return r.Names[room]
}

// Handle is one authorized operator identity.
type Handle struct {
	Username   string
	ExternalID string
	Policy     Policy
	Rooms      Rooms
}

// Authority maintains two lookup indexes over the same records: by
// case-insensitive username, and by exact external id.
type Authority struct {
	byUsername   map[string]*Handle
	byExternalID map[string]*Handle
}

// New creates an empty Authority.
func New() *Authority {
	return &Authority{
		byUsername:   make(map[string]*Handle),
		byExternalID: make(map[string]*Handle),
	}
}

// AddHandle inserts or replaces a handle, keeping both indexes consistent.
func (a *Authority) AddHandle(h Handle) {
	stored := &h
	a.byUsername[strings.ToLower(h.Username)] = stored
	if h.ExternalID != "" {
		a.byExternalID[h.ExternalID] = stored
	}
}

// RemoveHandle removes a handle by username, also dropping its external-id
// entry if it's the same record.
func (a *Authority) RemoveHandle(username string) {
	key := strings.ToLower(username)
	h, ok := a.byUsername[key]
	if !ok {
		return
	}
	delete(a.byUsername, key)
	if h.ExternalID != "" {
		if cur, ok := a.byExternalID[h.ExternalID]; ok && cur == h {
			delete(a.byExternalID, h.ExternalID)
		}
	}
}

// RemoveHandleByID removes a handle by external id, also dropping its
// username entry if it's the same record.
func (a *Authority) RemoveHandleByID(externalID string) {
	h, ok := a.byExternalID[externalID]
	if !ok {
		return
	}
	delete(a.byExternalID, externalID)
	key := strings.ToLower(h.Username)
	if cur, ok := a.byUsername[key]; ok && cur == h {
		delete(a.byUsername, key)
	}
}

// IsAuthorized reports whether username (case-insensitive) has a handle.
func (a *Authority) IsAuthorized(username string) bool {
	_, ok := a.byUsername[strings.ToLower(username)]
	return ok
}

// IsAuthorizedByID reports whether externalID has a handle.
func (a *Authority) IsAuthorizedByID(externalID string) bool {
	_, ok := a.byExternalID[externalID]
	return ok
}

// IsAuthorizedByEither reports whether either identifier resolves to a
// handle.
func (a *Authority) IsAuthorizedByEither(username, externalID string) bool {
	if externalID != "" && a.IsAuthorizedByID(externalID) {
		return true
	}
	return a.IsAuthorized(username)
}

// resolve finds the handle for (username, externalID), preferring the
// external-id match when both are present and resolve to distinct records.
func (a *Authority) resolve(username, externalID string) (*Handle, bool) {
	if externalID != "" {
		if h, ok := a.byExternalID[externalID]; ok {
			return h, true
		}
	}
	h, ok := a.byUsername[strings.ToLower(username)]
	return h, ok
}

// PolicyFor returns the resolved handle's policy.
func (a *Authority) PolicyFor(username, externalID string) (Policy, bool) {
	h, ok := a.resolve(username, externalID)
	if !ok {
		return "", false
	}
	return h.Policy, true
}

// CanExecuteInRoom reports whether (username, externalID) has an
// instant-execute handle permitted in room.
func (a *Authority) CanExecuteInRoom(username, room, externalID string) bool {
	h, ok := a.resolve(username, externalID)
	if !ok {
		return false
	}
	return h.Policy == PolicyInstantExecute && h.Rooms.Contains(room)
}

// ResolveTier classifies (username, externalID) into admin/trusted/general
// for a given room, implementing the tier rules in spec §4.3.
func (a *Authority) ResolveTier(username, room, externalID string) Tier {
	h, ok := a.resolve(username, externalID)
	if !ok {
		return TierGeneral
	}
	if h.Policy == PolicyInstantExecute && h.Rooms.Contains(room) {
		return TierAdmin
	}
	return TierTrusted
}
