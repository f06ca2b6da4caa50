package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	var c Codec
	in := map[string]any{
		"type":     "register1",
		"username": "alice",
		"nested":   map[string]any{"a": 1.0, "b": []any{"x", "y"}},
		"flag":     true,
	}

	encoded, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.DecodeMap(encoded)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestParseEndGameSeat(t *testing.T) {
	eg, ok := ParseEndGame(map[string]any{"end-game": float64(1)})
	require.True(t, ok)
	require.Equal(t, EndGameSeat, eg.Kind)
	require.Equal(t, 1, eg.Seat)
}

func TestParseEndGameSurrenderAndDraw(t *testing.T) {
	eg, ok := ParseEndGame(map[string]any{"end-game": "surrender"})
	require.True(t, ok)
	require.Equal(t, EndGameSurrender, eg.Kind)

	eg, ok = ParseEndGame(map[string]any{"end-game": float64(0.5)})
	require.True(t, ok)
	require.Equal(t, EndGameDraw, eg.Kind)
}

func TestParseEndGameAbsent(t *testing.T) {
	_, ok := ParseEndGame(map[string]any{"peace": true})
	require.False(t, ok)
}
