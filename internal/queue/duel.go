// Package queue implements the three matchmaking engines of spec.md §4.6:
// the 1v1 score-sorted queue, the mixed 3/4-player queue, and the private
// room lifecycle. Grounded on other_examples' matchmaking loop shapes
// (0b6649fa_vimsent-L3__matchmaker-main.go's periodic-scan-and-match loop,
// d3f248df_..._matchmaking_tcp.go's pending-queue-entry shape) and the
// teacher's internal/game/room_manager.go for the private-room registry.
package queue

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"wodserver/internal/player"
	"wodserver/internal/protocol"
	"wodserver/internal/registry"
)

// StartSession is the callback the matchers use to hand a matched batch of
// players off to the game-session loop; internal/session implements it. It
// is a function value rather than an interface import to avoid a cyclic
// dependency between queue and session.
type StartSession func(mode string, players []*player.Player, customMap []byte, scoreFlag bool, spectators []*player.Player)

// Mailbox is a FIFO of Player handles, per spec.md §3's "Queues" data model.
// Backed by a slice behind a mutex rather than a channel so the matcher can
// drain it non-blockingly and re-enqueue survivors of a liveness probe.
type Mailbox struct {
	mu      sync.Mutex
	players []*player.Player
}

// NewMailbox creates an empty queue.
func NewMailbox() *Mailbox { return &Mailbox{} }

// Push enqueues a player.
func (m *Mailbox) Push(p *player.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = append(m.players, p)
}

// DrainAll removes and returns every currently queued player, non-blocking.
func (m *Mailbox) DrainAll() []*player.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	drained := m.players
	m.players = nil
	return drained
}

// Requeue pushes back players that weren't matched this round.
func (m *Mailbox) Requeue(players []*player.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = append(players, m.players...)
}

const duelScanInterval = 20 * time.Second

// DuelMatcher runs the 1v1 matcher supervisor of spec.md §4.6 forever: drain
// the queue, probe and evict the dead, and once >=2 players have
// accumulated, sort by rating and pair adjacent seats. Returns nil when ctx
// is cancelled, so it can be supervised via errgroup.WithContext alongside
// the other long-running matchers, grounded on the teacher/la2go's
// ctx-aware manager Start loops.
func DuelMatcher(ctx context.Context, queue *Mailbox, online *registry.Online, codec protocol.Codec, start StartSession) error {
	var held []*player.Player

	for {
		held = append(held, queue.DrainAll()...)
		held = evictDead(held, online, codec)

		if len(held) >= 2 {
			sort.Slice(held, func(i, j int) bool {
				return held[i].RatingAtStart < held[j].RatingAtStart
			})

			pairCount := len(held) / 2
			for i := 0; i < pairCount; i++ {
				a, b := held[2*i], held[2*i+1]
				log.Printf("duel matcher: pairing %s (%d) vs %s (%d)", a.Username, a.RatingAtStart, b.Username, b.RatingAtStart)
				go start("1v1", []*player.Player{a, b}, nil, true, nil)
			}
			// An odd one out waits for the next batch.
			held = held[pairCount*2:]
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(duelScanInterval):
		}
	}
}

// evictDead probes every held player and drops the ones that fail, removing
// them from the online set so a dropped-while-queued username can
// re-authenticate, per spec.md §3 invariant 2.
func evictDead(held []*player.Player, online *registry.Online, codec protocol.Codec) []*player.Player {
	alive := held[:0]
	for _, p := range held {
		if p.IsConnected(codec) {
			alive = append(alive, p)
		} else {
			log.Printf("duel matcher: evicting dead player %s", p.Username)
			online.Remove(p.Username)
			p.Disconnect()
		}
	}
	return alive
}
