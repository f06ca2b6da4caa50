package queue

import (
	"context"
	"log"
	"time"

	"wodserver/internal/player"
	"wodserver/internal/protocol"
	"wodserver/internal/registry"
)

const mixedScanInterval = 1 * time.Second

// MixedQueues holds the three source mailboxes the 3/4-player matcher reads
// from, per spec.md §4.6.
type MixedQueues struct {
	V3  *Mailbox // only 3-player
	V4  *Mailbox // only 4-player
	V34 *Mailbox // either
}

// NewMixedQueues creates the three empty source queues.
func NewMixedQueues() *MixedQueues {
	return &MixedQueues{V3: NewMailbox(), V4: NewMailbox(), V34: NewMailbox()}
}

// MixedMatcher runs the 3/4-player matcher supervisor of spec.md §4.6
// forever: collect from all three sources non-blockingly, prefer forming a
// 4-player game (strict-v4 players first, filled with v34), else a 3-player
// game, with liveness probes evicting the dead each scan.
func MixedMatcher(ctx context.Context, q *MixedQueues, online *registry.Online, codec protocol.Codec, start StartSession) error {
	var v3, v4, v34 []*player.Player

	for {
		v3 = append(v3, q.V3.DrainAll()...)
		v4 = append(v4, q.V4.DrainAll()...)
		v34 = append(v34, q.V34.DrainAll()...)

		v3 = evictDead(v3, online, codec)
		v4 = evictDead(v4, online, codec)
		v34 = evictDead(v34, online, codec)

		if len(v4)+len(v34) >= 4 {
			var batch []*player.Player
			batch, v4, v34 = takeStrictFirst(v4, v34, 4)
			log.Printf("mixed matcher: starting v4 game with %d players", len(batch))
			go start("v4", batch, nil, true, nil)
			continue
		}

		if len(v3)+len(v34) >= 3 {
			var batch []*player.Player
			batch, v3, v34 = takeStrictFirst(v3, v34, 3)
			log.Printf("mixed matcher: starting v3 game with %d players", len(batch))
			go start("v3", batch, nil, true, nil)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(mixedScanInterval):
		}
	}
}

// takeStrictFirst fills a batch of size n preferring strict players first,
// then filling the remainder from the flexible pool, per spec.md §4.6's
// "preferring strict-v4 players first and filling with v34".
func takeStrictFirst(strict, flexible []*player.Player, n int) (batch, strictRem, flexibleRem []*player.Player) {
	take := n
	if len(strict) < take {
		take = len(strict)
	}
	batch = append(batch, strict[:take]...)
	strictRem = strict[take:]

	remaining := n - take
	if remaining > len(flexible) {
		remaining = len(flexible)
	}
	batch = append(batch, flexible[:remaining]...)
	flexibleRem = flexible[remaining:]

	return batch, strictRem, flexibleRem
}
