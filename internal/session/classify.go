// Package session implements the fixed-tick game-session loop of spec.md
// §4.8: setup, per-tick input gather, merged broadcast, and termination
// classification, plus the rating/stats application step of §4.9.
// Grounded on original_source/server.py's fan-in/fan-out game_loop and
// other_examples/a1ae865d_annel0-mmo-game's tick-rate goroutine shape.
package session

import "wodserver/internal/protocol"

// Classification is the result of one tick's termination check.
type Classification struct {
	Terminal bool
	NoWinner bool // terminal with no declared winner
	Winner   int  // valid seat index when Terminal && !NoWinner && !Draw
	Draw     bool
}

// ClassifyDuelBothReported handles the 1v1 case where both seats carry an
// end-game this tick, per spec.md §4.8: matching numeric claims win; a
// surrender/connection-lost claim from either seat hands the win to the
// other; otherwise no winner.
func ClassifyDuelBothReported(a, b protocol.EndGame) Classification {
	if a.Kind == protocol.EndGameSeat && b.Kind == protocol.EndGameSeat && a.Seat == b.Seat {
		return Classification{Terminal: true, Winner: a.Seat}
	}
	if a.Kind == protocol.EndGameSurrender || a.Kind == protocol.EndGameConnectionLost {
		return Classification{Terminal: true, Winner: 1}
	}
	if b.Kind == protocol.EndGameSurrender || b.Kind == protocol.EndGameConnectionLost {
		return Classification{Terminal: true, Winner: 0}
	}
	return Classification{Terminal: true, NoWinner: true}
}

// ClassifyDuelOneReported handles the 1v1 case where exactly one seat
// (reporterSeat) carries an end-game this tick. If the reporter's claim is
// itself a surrender/connection-lost, the other seat wins immediately with
// no follow-up needed.
func ClassifyDuelOneReported(reporterSeat int, claim protocol.EndGame) (Classification, bool) {
	if claim.Kind == protocol.EndGameSurrender || claim.Kind == protocol.EndGameConnectionLost {
		return Classification{Terminal: true, Winner: otherSeat(reporterSeat)}, false
	}
	// Numeric claim: needs a follow-up read from the other seat before a
	// verdict can be reached (open question 1 of spec.md §9).
	return Classification{}, true
}

// ClassifyDuelFollowup resolves the pending numeric-claim case once the
// other seat's follow-up read has been taken. followup is nil if that read
// returned "no update" (spec.md: "if it returns nothing, the reporter's
// claim stands").
func ClassifyDuelFollowup(reporterSeat int, reporterClaim protocol.EndGame, followup *protocol.EndGame) Classification {
	if followup == nil {
		return Classification{Terminal: true, Winner: reporterClaim.Seat}
	}
	if followup.Kind == protocol.EndGameSeat && followup.Seat == reporterClaim.Seat {
		return Classification{Terminal: true, Winner: reporterClaim.Seat}
	}
	return Classification{Terminal: true, NoWinner: true}
}

func otherSeat(seat int) int {
	if seat == 0 {
		return 1
	}
	return 0
}

// MultiSeatResult is the outcome of one tick's multi-player (3+) termination
// scan, per spec.md §4.8.
type MultiSeatResult struct {
	Disconnected []int // seats to remove this tick
	SoleSurvivor int   // valid iff SurvivorWins
	SurvivorWins bool
	Winner       int // valid iff WinnerReported
	WinnerReported bool
}

// ClassifyMultiSeat scans this tick's end-game reports across all currently
// active seats (multi-player, 3+ participants).
func ClassifyMultiSeat(activeSeats []int, reports map[int]protocol.EndGame) MultiSeatResult {
	var result MultiSeatResult
	remaining := make([]int, 0, len(activeSeats))

	for _, seat := range activeSeats {
		eg, ok := reports[seat]
		if ok && (eg.Kind == protocol.EndGameSurrender || eg.Kind == protocol.EndGameConnectionLost) {
			result.Disconnected = append(result.Disconnected, seat)
			continue
		}
		remaining = append(remaining, seat)
	}

	if len(remaining) < 2 {
		if len(remaining) == 1 {
			result.SurvivorWins = true
			result.SoleSurvivor = remaining[0]
		}
		return result
	}

	for _, seat := range remaining {
		eg, ok := reports[seat]
		if ok && eg.Kind == protocol.EndGameSeat {
			result.WinnerReported = true
			result.Winner = eg.Seat
			break
		}
	}

	return result
}

// PeaceTracker implements the peace-voting timer of spec.md §4.8: a 20-tick
// window that resets if the vote count doesn't reach every active seat in
// time.
type PeaceTracker struct {
	votes int
	timer int
}

const peaceWindowTicks = 20

// Tick records this tick's peace-vote count and decrements the window
// timer, returning true once the accumulated vote count reaches
// activeSeats (a unanimous peace).
func (t *PeaceTracker) Tick(votesThisTick, activeSeats int) bool {
	if votesThisTick > 0 {
		if t.votes == 0 {
			t.timer = peaceWindowTicks
		}
		t.votes += votesThisTick
	}

	if t.votes >= activeSeats && activeSeats > 0 {
		return true
	}

	if t.votes > 0 {
		t.timer--
		if t.timer <= 0 {
			t.votes = 0
		}
	}
	return false
}
