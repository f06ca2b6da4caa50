package queue

import (
	"context"
	"log"
	"time"

	"wodserver/internal/player"
	"wodserver/internal/protocol"
	"wodserver/internal/registry"
	"wodserver/internal/transport"
)

const roomProbeInterval = 4 * time.Second

// HostRoom creates a room with requester as host (seat 0), per spec.md
// §4.6. Returns the created room.
func HostRoom(rooms *registry.Rooms, code string, mode registry.Mode, host *player.Player, customMap []byte) *registry.GameRoom {
	room, _ := rooms.GetOrHost(code, mode, registry.RoomPlayer{Username: host.Username, Handle: host}, customMap)
	return room
}

// JoinRoom appends p to an existing room and returns a snapshot of the
// room's player list to send to the joiner, per spec.md §4.6: "upon
// appending, that player receives the room snapshot".
func JoinRoom(rooms *registry.Rooms, code string, p *player.Player) (*registry.GameRoom, bool) {
	_, ok := rooms.Join(code, registry.RoomPlayer{Username: p.Username, Handle: p})
	if !ok {
		return nil, false
	}
	snap, _ := rooms.Snapshot(code)
	return snap, true
}

// RoomSweeper runs the room-health supervisor of spec.md §4.6 forever:
// probe every seated player roughly every 4s with the current player list
// and, for the host, a ready flag; a host {action:"start"} response starts
// the session. Rooms with no players are pruned by Rooms.RemovePlayer as a
// side effect of probing dead seats.
func RoomSweeper(ctx context.Context, rooms *registry.Rooms, online *registry.Online, codec protocol.Codec, start StartSession) error {
	for {
		for _, code := range rooms.All() {
			sweepRoom(rooms, online, code, codec, start)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(roomProbeInterval):
		}
	}
}

func sweepRoom(rooms *registry.Rooms, online *registry.Online, code string, codec protocol.Codec, start StartSession) {
	room, ok := rooms.Snapshot(code)
	if !ok {
		return
	}

	names := make([]string, len(room.Players))
	for i, p := range room.Players {
		names[i] = p.Username
	}

	for i, rp := range room.Players {
		host := rp.Handle
		payload := map[string]any{"players": names}
		if i == 0 {
			payload["ready"] = room.Ready()
		}

		b, err := codec.Encode(payload)
		if err != nil {
			continue
		}
		if !host.Conn.Write(b) {
			log.Printf("room sweeper: dropping dead seat %s from room %s", rp.Username, code)
			rooms.RemovePlayer(code, rp.Username)
			online.Remove(rp.Username)
			continue
		}

		if i == 0 {
			reply := readHostAction(host, codec)
			if reply == "start" {
				startRoom(rooms, code, start)
				return
			}
		}
	}
}

// readHostAction reads one control message from the host looking for
// {"action":"start"}; any other content or a read fault is treated as "no
// action yet" rather than propagated as an error, since the host is not
// required to respond to every probe.
func readHostAction(host *player.Player, codec protocol.Codec) string {
	payload, outcome := host.Conn.ReadInGame()
	if outcome != transport.ReadOK {
		return ""
	}
	m, err := codec.DecodeMap(payload)
	if err != nil {
		return ""
	}
	action, _ := m["action"].(string)
	return action
}

// startRoom spawns a game session with the first target-player-count seats
// and any extras as spectators, then destroys the room, per spec.md §4.6.
func startRoom(rooms *registry.Rooms, code string, start StartSession) {
	room, ok := rooms.Snapshot(code)
	if !ok {
		return
	}
	rooms.Destroy(code)

	target := room.Mode.TargetPlayerCount()
	var players, spectators []*player.Player
	for i, rp := range room.Players {
		if i < target {
			players = append(players, rp.Handle)
		} else {
			spectators = append(spectators, rp.Handle)
		}
	}

	log.Printf("room %s: starting %s session with %d players, %d spectators", code, room.Mode, len(players), len(spectators))
	go start(string(room.Mode), players, room.CustomMap, false, spectators)
}
