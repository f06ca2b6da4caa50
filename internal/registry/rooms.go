// Adapted from the teacher's internal/game/room_manager.go: same
// mutex-guarded map-of-structs-with-package-level-singleton shape, room
// semantics replaced with spec.md §4.6's GameRoom.
package registry

import (
	"sync"

	"wodserver/internal/player"
)

// Mode is the room/session player-count mode of spec.md §3.
type Mode string

const (
	Mode1v1 Mode = "1v1"
	Mode3   Mode = "v3"
	Mode4   Mode = "v4"
)

// TargetPlayerCount returns the seat count a mode fills before it is ready.
func (m Mode) TargetPlayerCount() int {
	switch m {
	case Mode1v1:
		return 2
	case Mode3:
		return 3
	case Mode4:
		return 4
	default:
		return 0
	}
}

// RoomPlayer pairs a seated player's handle with the username, kept
// alongside it so room snapshots can be read without re-deriving identity
// from the handle.
type RoomPlayer struct {
	Username string
	Handle   *player.Player
}

// GameRoom is the in-memory, client-keyed room of spec.md §3.
type GameRoom struct {
	Code      string
	Mode      Mode
	Players   []RoomPlayer // index 0 is the host
	CustomMap []byte       // nil/empty if absent
}

// Ready reports whether the room has accumulated enough seats to start.
func (r *GameRoom) Ready() bool {
	return len(r.Players) >= r.Mode.TargetPlayerCount()
}

// Rooms is the process-wide room registry of spec.md §3/§4.6, keyed by
// client-chosen code. A room is either present in the registry or has been
// destroyed; the transition is one-way per code instance (invariant 3).
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]*GameRoom
}

// NewRooms creates an empty room registry.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*GameRoom)}
}

// GetOrHost returns the existing room for code, or creates one with mode and
// host as seat 0 if none exists. The bool reports whether this call created
// the room (the caller is the host) versus found an existing one.
func (r *Rooms) GetOrHost(code string, mode Mode, host RoomPlayer, customMap []byte) (*GameRoom, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[code]; ok {
		return room, false
	}

	room := &GameRoom{
		Code:      code,
		Mode:      mode,
		Players:   []RoomPlayer{host},
		CustomMap: customMap,
	}
	r.rooms[code] = room
	return room, true
}

// Join appends player to an existing room, returning false if the code is
// not registered.
func (r *Rooms) Join(code string, player RoomPlayer) (*GameRoom, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	room.Players = append(room.Players, player)
	return room, true
}

// Snapshot returns a copy of the room's player list, safe to read without
// holding the registry lock further.
func (r *Rooms) Snapshot(code string) (*GameRoom, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	cp := *room
	cp.Players = append([]RoomPlayer(nil), room.Players...)
	return &cp, true
}

// RemovePlayer removes a username from a room, deleting the room outright if
// it becomes empty. Returns false if the room does not exist.
func (r *Rooms) RemovePlayer(code, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return false
	}
	for i, p := range room.Players {
		if p.Username == username {
			room.Players = append(room.Players[:i], room.Players[i+1:]...)
			break
		}
	}
	if len(room.Players) == 0 {
		delete(r.rooms, code)
	}
	return true
}

// Destroy removes a room from the registry outright (used when a room
// starts its session, per spec.md §4.6).
func (r *Rooms) Destroy(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, code)
}

// All returns the codes of every currently registered room, for the
// room-health sweeper to iterate (§4.6).
func (r *Rooms) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	return codes
}
