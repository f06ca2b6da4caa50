// Package player defines the Player handle: the in-memory, per-live-
// connection identity of spec.md §3, exclusively owned by whichever
// subsystem currently holds the connection (queue, room, or active
// session). Ownership is handed off by move, never shared, by convention -
// Go can't enforce linear ownership, so callers must stop using a Player
// once they've passed it along (e.g. into a queue channel or a session's
// player list).
package player

import "wodserver/internal/transport"

// Player is the per-connection handle spec.md §3 describes.
type Player struct {
	Username      string
	RatingAtStart int
	Conn          *transport.Conn
}

// New constructs a Player handle.
func New(username string, rating int, conn *transport.Conn) *Player {
	return &Player{Username: username, RatingAtStart: rating, Conn: conn}
}

// IsConnected is the liveness probe of spec.md §4.7: sends a one-shot
// "check" message and waits up to 1s for the exact echoed reply.
func (p *Player) IsConnected(codec interface{ Encode(any) ([]byte, error) }) bool {
	return p.Conn.Probe(codec)
}

// Disconnect closes the underlying connection. Idempotent.
func (p *Player) Disconnect() {
	p.Conn.Close()
}
