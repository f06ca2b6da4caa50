// File: internal/session/rating.go
// Rating & stats applier of spec.md §4.9. Grounded in shape on
// _examples/cra88y-block-server/go/items/match_result.go and rewards.go
// (Nakama RPC match-result/reward application), adapted to Elo + stats
// merge against internal/store instead of Nakama's key/value storage API.
package session

import (
	"context"
	"math"

	"wodserver/internal/store"
)

const eloK = 50.0

// EloDeltas computes the unrounded Elo delta for every participant given
// their ratings-at-session-start and the winner's seat index, per spec.md
// §4.9: delta_i = K*(1 - 1/(1+10^((r_i - r_w)/400))) for each loser i,
// added to the winner's delta and subtracted from the loser's.
func EloDeltas(ratings []int, winner int) []float64 {
	deltas := make([]float64, len(ratings))
	rw := float64(ratings[winner])

	for i, ri := range ratings {
		if i == winner {
			continue
		}
		expectedLoss := 1.0 / (1.0 + math.Pow(10, (float64(ri)-rw)/400.0))
		delta := eloK * (1 - expectedLoss)
		deltas[i] -= delta
		deltas[winner] += delta
	}
	return deltas
}

// RoundedEloDeltas rounds each Elo delta to the nearest integer, the form
// actually applied to base ratings.
func RoundedEloDeltas(ratings []int, winner int) []int {
	raw := EloDeltas(ratings, winner)
	out := make([]int, len(raw))
	for i, d := range raw {
		out[i] = int(math.Round(d))
	}
	return out
}

// Outcome is the terminal result of a finished session, assembled by the
// tick loop's termination classification and fed to Apply.
type Outcome struct {
	Usernames  []string
	Ratings    []int // rating snapshot at session start, same order as Usernames
	Winner     int   // -1 if no winner (no-winner or peace draw)
	Draw       bool
	ScoreFlag  bool // true for queued matches, false for private rooms
	Casualties []int // per-seat casualty counts from the terminal stats bundle, nil if none was reported
	GameSeconds int
}

// Apply applies the rating/stats/counters update for a finished match in a
// single store transaction, per spec.md §4.9. Counters are incremented for
// every non-peace, non-no-winner termination (open question 4 of spec.md
// §9, resolved as documented in DESIGN.md); peace draws and no-winner
// terminations still increment number_of_games per spec.md's literal text,
// but apply no Elo change.
func Apply(ctx context.Context, db *store.Store, o Outcome) error {
	n := len(o.Usernames)
	scoreDeltas := make([]int, n)

	if o.ScoreFlag && o.Winner >= 0 && !o.Draw {
		scoreDeltas = RoundedEloDeltas(o.Ratings, o.Winner)
	}

	var devDefeated string
	if n == 2 && o.Winner >= 0 {
		loser := otherSeat(o.Winner)
		devDefeated = o.Usernames[loser]
	}

	participants := make([]store.MatchParticipant, n)
	for i, username := range o.Usernames {
		casualties := -1
		if o.Casualties != nil && i < len(o.Casualties) {
			casualties = o.Casualties[i]
		}
		won := !o.Draw && o.Winner == i
		moneyDelta := 0
		if won {
			moneyDelta = n - 1
		}
		participants[i] = store.MatchParticipant{
			Username:    username,
			ScoreDelta:  scoreDeltas[i],
			Won:         won,
			MoneyDelta:  moneyDelta,
			Casualties:  casualties,
			GameSeconds: o.GameSeconds,
		}
	}

	return db.ApplyMatchResult(ctx, participants, devDefeated)
}
