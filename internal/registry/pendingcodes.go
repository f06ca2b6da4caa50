package registry

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingCodes is the mapping username -> verification code of spec.md §3,
// with entries expiring after a configurable TTL (30 minutes by default).
// A pending code exists for a username iff that username has an outstanding
// register1 or login1 within the TTL window (invariant 4).
type PendingCodes struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	ttl     time.Duration

	// cache, when non-nil, mirrors entries into Redis so a second process
	// sharing the same store can see pending codes too. The in-memory map
	// stays authoritative for this process; Redis is a cross-process cache,
	// not a second source of truth.
	cache *redis.Client
}

type pendingEntry struct {
	code      string
	expiresAt time.Time
}

// NewPendingCodes creates a pending-code table with the given TTL. cache may
// be nil to disable the Redis mirror (e.g. in tests or single-process
// deployments with REDIS_ENABLED=false).
func NewPendingCodes(ttl time.Duration, cache *redis.Client) *PendingCodes {
	return &PendingCodes{
		entries: make(map[string]pendingEntry),
		ttl:     ttl,
		cache:   cache,
	}
}

// Set stores a fresh code for username, replacing any existing entry.
func (p *PendingCodes) Set(ctx context.Context, username, code string) {
	p.mu.Lock()
	p.entries[username] = pendingEntry{code: code, expiresAt: time.Now().Add(p.ttl)}
	p.mu.Unlock()

	if p.cache != nil {
		p.cache.Set(ctx, pendingCodeKey(username), code, p.ttl)
	}
}

// Get returns the pending code for username and whether it exists and has
// not expired.
func (p *PendingCodes) Get(username string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[username]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.code, true
}

// Delete removes the pending entry for username, if any.
func (p *PendingCodes) Delete(ctx context.Context, username string) {
	p.mu.Lock()
	delete(p.entries, username)
	p.mu.Unlock()

	if p.cache != nil {
		p.cache.Del(ctx, pendingCodeKey(username))
	}
}

func pendingCodeKey(username string) string {
	return "wod:pending-code:" + username
}
