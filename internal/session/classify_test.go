package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wodserver/internal/protocol"
)

func TestClassifyDuelBothReportedMatchingWinner(t *testing.T) {
	a := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 0}
	b := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 0}

	c := ClassifyDuelBothReported(a, b)

	require.True(t, c.Terminal)
	require.False(t, c.NoWinner)
	require.Equal(t, 0, c.Winner)
}

func TestClassifyDuelBothReportedDisagreeingNumericIsNoWinner(t *testing.T) {
	a := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 0}
	b := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 1}

	c := ClassifyDuelBothReported(a, b)

	require.True(t, c.Terminal)
	require.True(t, c.NoWinner)
}

func TestClassifyDuelBothReportedSurrenderHandsOpponentWin(t *testing.T) {
	a := protocol.EndGame{Kind: protocol.EndGameSurrender}
	b := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 1}

	c := ClassifyDuelBothReported(a, b)

	require.True(t, c.Terminal)
	require.Equal(t, 1, c.Winner)
}

func TestClassifyDuelOneReportedSurrenderIsImmediate(t *testing.T) {
	claim := protocol.EndGame{Kind: protocol.EndGameConnectionLost}

	c, needsFollowup := ClassifyDuelOneReported(0, claim)

	require.False(t, needsFollowup)
	require.True(t, c.Terminal)
	require.Equal(t, 1, c.Winner)
}

func TestClassifyDuelOneReportedNumericNeedsFollowup(t *testing.T) {
	claim := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 0}

	_, needsFollowup := ClassifyDuelOneReported(0, claim)

	require.True(t, needsFollowup)
}

func TestClassifyDuelFollowupNilStandsOnReporterClaim(t *testing.T) {
	claim := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 1}

	c := ClassifyDuelFollowup(1, claim, nil)

	require.True(t, c.Terminal)
	require.Equal(t, 1, c.Winner)
}

func TestClassifyDuelFollowupAgreeingConfirms(t *testing.T) {
	claim := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 1}
	followup := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 1}

	c := ClassifyDuelFollowup(1, claim, &followup)

	require.True(t, c.Terminal)
	require.Equal(t, 1, c.Winner)
}

func TestClassifyDuelFollowupDisagreeingIsNoWinner(t *testing.T) {
	claim := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 1}
	followup := protocol.EndGame{Kind: protocol.EndGameSeat, Seat: 0}

	c := ClassifyDuelFollowup(1, claim, &followup)

	require.True(t, c.Terminal)
	require.True(t, c.NoWinner)
}

func TestClassifyMultiSeatSoleSurvivorWins(t *testing.T) {
	active := []int{0, 1, 2}
	reports := map[int]protocol.EndGame{
		0: {Kind: protocol.EndGameSurrender},
		1: {Kind: protocol.EndGameConnectionLost},
	}

	result := ClassifyMultiSeat(active, reports)

	require.ElementsMatch(t, []int{0, 1}, result.Disconnected)
	require.True(t, result.SurvivorWins)
	require.Equal(t, 2, result.SoleSurvivor)
}

func TestClassifyMultiSeatNumericWinnerReported(t *testing.T) {
	active := []int{0, 1, 2}
	reports := map[int]protocol.EndGame{
		1: {Kind: protocol.EndGameSeat, Seat: 1},
	}

	result := ClassifyMultiSeat(active, reports)

	require.False(t, result.SurvivorWins)
	require.True(t, result.WinnerReported)
	require.Equal(t, 1, result.Winner)
}

func TestClassifyMultiSeatNoTerminationContinues(t *testing.T) {
	active := []int{0, 1, 2}
	reports := map[int]protocol.EndGame{}

	result := ClassifyMultiSeat(active, reports)

	require.Empty(t, result.Disconnected)
	require.False(t, result.SurvivorWins)
	require.False(t, result.WinnerReported)
}

func TestPeaceTrackerUnanimousVoteTriggers(t *testing.T) {
	var p PeaceTracker

	require.False(t, p.Tick(2, 3))
	require.True(t, p.Tick(1, 3))
}

func TestPeaceTrackerResetsAfterWindowExpires(t *testing.T) {
	var p PeaceTracker

	require.False(t, p.Tick(1, 3))
	for i := 0; i < peaceWindowTicks; i++ {
		require.False(t, p.Tick(0, 3))
	}
	// Window has expired and the vote count reset; a single new vote must
	// not be mistaken for a unanimous one.
	require.False(t, p.Tick(1, 3))
}
