package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wodserver/internal/player"
)

func namedPlayers(names ...string) []*player.Player {
	out := make([]*player.Player, len(names))
	for i, n := range names {
		out[i] = &player.Player{Username: n}
	}
	return out
}

func usernames(players []*player.Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.Username
	}
	return out
}

func TestTakeStrictFirstPrefersStrictPlayers(t *testing.T) {
	strict := namedPlayers("s1", "s2", "s3")
	flexible := namedPlayers("f1", "f2")

	batch, strictRem, flexRem := takeStrictFirst(strict, flexible, 4)

	require.Equal(t, []string{"s1", "s2", "s3", "f1"}, usernames(batch))
	require.Empty(t, strictRem)
	require.Equal(t, []string{"f2"}, usernames(flexRem))
}

func TestTakeStrictFirstAllFlexible(t *testing.T) {
	flexible := namedPlayers("f1", "f2", "f3")

	batch, strictRem, flexRem := takeStrictFirst(nil, flexible, 3)

	require.Equal(t, []string{"f1", "f2", "f3"}, usernames(batch))
	require.Empty(t, strictRem)
	require.Empty(t, flexRem)
}

func TestMailboxDrainAndRequeue(t *testing.T) {
	m := NewMailbox()
	m.Push(&player.Player{Username: "a"})
	m.Push(&player.Player{Username: "b"})

	drained := m.DrainAll()
	require.Equal(t, []string{"a", "b"}, usernames(drained))
	require.Empty(t, m.DrainAll())

	m.Requeue(drained[:1])
	require.Equal(t, []string{"a"}, usernames(m.DrainAll()))
}
