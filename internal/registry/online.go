// Package registry holds the process-wide, mutex-guarded singletons spec.md
// §3/§5/§9 describes: the online-user set, the private-room table, and the
// pending verification-code table. Grounded on the teacher's
// internal/game/room_manager.go (package-level singleton behind a mutex,
// guarded map access).
package registry

import "sync"

// Online is the set of usernames currently holding a live session, per
// spec.md §3/§4.5. At most one Player handle per username is enforced by
// checking this set under its own lock before adding.
type Online struct {
	mu  sync.Mutex
	set map[string]bool
}

// NewOnline creates an empty online-user registry.
func NewOnline() *Online {
	return &Online{set: make(map[string]bool)}
}

// TryAdd adds username if and only if it is not already present, returning
// whether the add succeeded. Callers must treat a false return as
// "user-online-fail" per spec.md §4.5.
func (o *Online) TryAdd(username string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.set[username] {
		return false
	}
	o.set[username] = true
	return true
}

// Remove removes username unconditionally; safe to call on a username that
// was never added (e.g. a connection that failed before authenticating).
func (o *Online) Remove(username string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.set, username)
}

// Contains reports whether username currently holds a session.
func (o *Online) Contains(username string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set[username]
}

// Count returns the number of online users, for diagnostics/logging.
func (o *Online) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.set)
}
