package session

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"wodserver/internal/player"
	"wodserver/internal/protocol"
	"wodserver/internal/registry"
	"wodserver/internal/store"
	"wodserver/internal/transport"
)

const tickPeriod = 1030 * time.Millisecond

// mapRanges gives the random map-id range per mode, per spec.md §4.8.
var mapRanges = map[string][2]int{
	"1v1": {1, 30},
	"v3":  {31, 33},
	"v4":  {37, 39},
}

// New builds the StartSession callback the matchers invoke, closing over the
// dependencies a session needs that the matchers don't carry.
func New(codec protocol.Codec, db *store.Store, online *registry.Online) func(mode string, players []*player.Player, customMap []byte, scoreFlag bool, spectators []*player.Player) {
	return func(mode string, players []*player.Player, customMap []byte, scoreFlag bool, spectators []*player.Player) {
		run(mode, players, customMap, scoreFlag, spectators, codec, db, online)
	}
}

func run(mode string, players []*player.Player, customMap []byte, scoreFlag bool, spectators []*player.Player, codec protocol.Codec, db *store.Store, online *registry.Online) {
	defer teardown(players, spectators, online)

	sessionID := uuid.New().String()
	mapID := chooseMapID(mode, customMap)
	seats := permute(players)
	ratings := make([]int, len(seats))
	for i, p := range seats {
		ratings[i] = p.RatingAtStart
	}

	log.Printf("session %s: starting %s with %d players, %d spectators", sessionID, mode, len(seats), len(spectators))
	broadcastSetup(seats, spectators, mapID, codec)
	time.Sleep(time.Second)

	active := make([]int, len(seats))
	for i := range seats {
		active[i] = i
	}

	peace := &PeaceTracker{}
	ctx := context.Background()

	for {
		tickStart := time.Now()

		reports, payloads := gatherInGame(seats, active, codec)

		if len(seats) == 2 {
			if terminal, ok := classifyDuel(seats, active, reports, codec); ok {
				log.Printf("session %s: duel terminal, noWinner=%v winner=%d", sessionID, terminal.noWinner, terminal.winner)
				finishDuel(ctx, db, seats, ratings, spectators, scoreFlag, terminal, payloads, codec)
				return
			}
		} else {
			result := ClassifyMultiSeat(active, reports)
			if len(result.Disconnected) > 0 {
				active = removeSeats(active, result.Disconnected)
			}
			if result.SurvivorWins {
				log.Printf("session %s: sole survivor seat %d wins", sessionID, result.SoleSurvivor)
				finishMultiSeat(ctx, db, seats, ratings, spectators, scoreFlag, result.SoleSurvivor, false, payloads, codec)
				return
			}
			if result.WinnerReported {
				log.Printf("session %s: seat %d reported as winner", sessionID, result.Winner)
				finishMultiSeat(ctx, db, seats, ratings, spectators, scoreFlag, result.Winner, false, payloads, codec)
				return
			}
			if len(active) < 2 {
				// Everyone disconnected this tick; nobody to declare a winner.
				log.Printf("session %s: all seats disconnected with no winner", sessionID)
				return
			}
		}

		votes := countPeaceVotes(active, payloads)
		if peace.Tick(votes, len(active)) {
			log.Printf("session %s: unanimous peace vote", sessionID)
			finishPeace(ctx, db, seats, ratings, spectators, scoreFlag, active, payloads, codec)
			return
		}

		merged := mergeTick(active, payloads)
		broadcastMerged(seats, spectators, active, merged, codec)

		if elapsed := time.Since(tickStart); elapsed < tickPeriod {
			time.Sleep(tickPeriod - elapsed)
		}
	}
}

func chooseMapID(mode string, customMap []byte) int {
	if customMap != nil {
		return 0
	}
	r, ok := mapRanges[mode]
	if !ok {
		return 0
	}
	return r[0] + rand.Intn(r[1]-r[0]+1)
}

// permute randomly reorders the player list; the resulting index is each
// player's seat/color for the session, per spec.md §4.8 step 2.
func permute(players []*player.Player) []*player.Player {
	seats := make([]*player.Player, len(players))
	copy(seats, players)
	rand.Shuffle(len(seats), func(i, j int) { seats[i], seats[j] = seats[j], seats[i] })
	return seats
}

func broadcastSetup(seats, spectators []*player.Player, mapID int, codec protocol.Codec) {
	names := make([]string, len(seats))
	for i, p := range seats {
		names[i] = p.Username
	}

	for i, p := range seats {
		sendEnvelope(p, map[string]any{"color": i, "map": mapID, "players": names}, codec)
	}
	for _, p := range spectators {
		sendEnvelope(p, map[string]any{"color": nil, "map": mapID, "players": names}, codec)
	}
}

func sendEnvelope(p *player.Player, payload map[string]any, codec protocol.Codec) {
	b, err := codec.Encode(payload)
	if err != nil {
		log.Printf("session: encode failed for %s: %v", p.Username, err)
		return
	}
	if !p.Conn.Write(b) {
		log.Printf("session: write failed for %s", p.Username)
	}
}

// gatherInGame reads every active seat concurrently, per spec.md §4.8 step 2,
// returning both the classified end-game reports and the raw decoded
// payloads (for merge and peace-vote scanning).
func gatherInGame(seats []*player.Player, active []int, codec protocol.Codec) (map[int]protocol.EndGame, map[int]map[string]any) {
	var mu sync.Mutex
	reports := make(map[int]protocol.EndGame)
	payloads := make(map[int]map[string]any)

	var wg sync.WaitGroup
	for _, seat := range active {
		seat := seat
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := seats[seat]
			raw, outcome := p.Conn.ReadInGame()

			var payload map[string]any
			switch outcome {
			case transport.ReadOK:
				m, err := codec.DecodeMap(raw)
				if err != nil {
					payload = protocol.SyntheticConnectionLost()
				} else {
					payload = m
				}
			case transport.ReadNoUpdate:
				payload = map[string]any{}
			default:
				payload = protocol.SyntheticConnectionLost()
			}

			mu.Lock()
			payloads[seat] = payload
			if eg, ok := protocol.ParseEndGame(payload); ok {
				reports[seat] = eg
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return reports, payloads
}

// duelTerminal carries the resolved 1v1 outcome plus the stats bundle needed
// to apply it.
type duelTerminal struct {
	winner   int
	noWinner bool
}

func classifyDuel(seats []*player.Player, active []int, reports map[int]protocol.EndGame, codec protocol.Codec) (duelTerminal, bool) {
	if len(active) < 2 {
		return duelTerminal{}, false
	}
	a, aok := reports[0]
	b, bok := reports[1]

	var c Classification
	switch {
	case aok && bok:
		c = ClassifyDuelBothReported(a, b)
	case aok && !bok:
		pending, needsFollowup := ClassifyDuelOneReported(0, a)
		if needsFollowup {
			followup := readFollowup(seats[1], codec)
			c = ClassifyDuelFollowup(0, a, followup)
		} else {
			c = pending
		}
	case bok && !aok:
		pending, needsFollowup := ClassifyDuelOneReported(1, b)
		if needsFollowup {
			followup := readFollowup(seats[0], codec)
			c = ClassifyDuelFollowup(1, b, followup)
		} else {
			c = pending
		}
	default:
		return duelTerminal{}, false
	}

	if !c.Terminal {
		return duelTerminal{}, false
	}
	return duelTerminal{winner: c.Winner, noWinner: c.NoWinner}, true
}

// readFollowup performs the single tick-bounded follow-up read open question
// 1 (spec.md §9) calls for, returning nil on "no update" per the resolution
// recorded in DESIGN.md.
func readFollowup(p *player.Player, codec protocol.Codec) *protocol.EndGame {
	raw, outcome := p.Conn.ReadInGame()
	if outcome != transport.ReadOK {
		return nil
	}
	m, err := codec.DecodeMap(raw)
	if err != nil {
		eg := protocol.EndGame{Kind: protocol.EndGameConnectionLost}
		return &eg
	}
	eg, ok := protocol.ParseEndGame(m)
	if !ok {
		return nil
	}
	return &eg
}

func countPeaceVotes(active []int, payloads map[int]map[string]any) int {
	votes := 0
	for _, seat := range active {
		if v, ok := payloads[seat]["peace"]; ok {
			if b, ok := v.(bool); ok && b {
				votes++
			}
		}
	}
	return votes
}

// mergeTick merges every active seat's payload into one record, later seats
// overriding earlier ones on key collision, per spec.md §4.8 step 5 /
// testable property 9.
func mergeTick(active []int, payloads map[int]map[string]any) map[string]any {
	merged := map[string]any{}
	for _, seat := range active {
		for k, v := range payloads[seat] {
			merged[k] = v
		}
	}
	return merged
}

func broadcastMerged(seats, spectators []*player.Player, active []int, merged map[string]any, codec protocol.Codec) {
	b, err := codec.Encode(merged)
	if err != nil {
		return
	}
	for _, seat := range active {
		seats[seat].Conn.Write(b)
	}
	for _, p := range spectators {
		p.Conn.Write(b)
	}
}

func removeSeats(active []int, remove []int) []int {
	drop := make(map[int]bool, len(remove))
	for _, s := range remove {
		drop[s] = true
	}
	kept := active[:0]
	for _, s := range active {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	return kept
}

// statsBundle is the {casualties, time} payload carried by a terminal tick's
// declaring-seat payload, per spec.md §4.9 ("when the terminal payload
// carried a stats bundle").
type statsBundle struct {
	casualties []int
	seconds    int
}

// extractStats pulls the stats bundle out of the payload the tick already
// gathered for this seat, rather than issuing a second read: S2 shows the
// client sending `{end-game:0, stats:{...}}` in the same message.
func extractStats(payload map[string]any) statsBundle {
	stats, ok := payload["stats"].(map[string]any)
	if !ok {
		return statsBundle{}
	}

	var bundle statsBundle
	if rawList, ok := stats["casualties"].([]any); ok {
		bundle.casualties = make([]int, len(rawList))
		for i, v := range rawList {
			if f, ok := v.(float64); ok {
				bundle.casualties[i] = int(f)
			}
		}
	}
	if t, ok := stats["time"].(float64); ok {
		bundle.seconds = int(t)
	}
	return bundle
}

func finishDuel(ctx context.Context, db *store.Store, seats []*player.Player, ratings []int, spectators []*player.Player, scoreFlag bool, t duelTerminal, payloads map[int]map[string]any, codec protocol.Codec) {
	marker := map[string]any{"end-game": "no-winner"}
	if !t.noWinner {
		marker = map[string]any{"end-game": t.winner}
	}
	for _, p := range seats {
		sendEnvelope(p, marker, codec)
	}
	for _, p := range spectators {
		sendEnvelope(p, marker, codec)
	}

	if t.noWinner {
		return
	}

	bundle := extractStats(payloads[t.winner])
	names := []string{seats[0].Username, seats[1].Username}
	apply(ctx, db, names, ratings, t.winner, false, scoreFlag, bundle)
}

func finishMultiSeat(ctx context.Context, db *store.Store, seats []*player.Player, ratings []int, spectators []*player.Player, scoreFlag bool, winner int, draw bool, payloads map[int]map[string]any, codec protocol.Codec) {
	marker := map[string]any{"end-game": winner}
	for _, p := range seats {
		sendEnvelope(p, marker, codec)
	}
	for _, p := range spectators {
		sendEnvelope(p, marker, codec)
	}

	bundle := extractStats(payloads[winner])
	names := usernamesOf(seats)
	apply(ctx, db, names, ratings, winner, draw, scoreFlag, bundle)
}

func finishPeace(ctx context.Context, db *store.Store, seats []*player.Player, ratings []int, spectators []*player.Player, scoreFlag bool, active []int, payloads map[int]map[string]any, codec protocol.Codec) {
	marker := map[string]any{"end-game": 0.5}
	for _, p := range seats {
		sendEnvelope(p, marker, codec)
	}
	for _, p := range spectators {
		sendEnvelope(p, marker, codec)
	}

	var bundle statsBundle
	if len(active) > 0 {
		bundle = extractStats(payloads[active[0]])
	}
	names := usernamesOf(seats)
	apply(ctx, db, names, ratings, -1, true, scoreFlag, bundle)
}

func apply(ctx context.Context, db *store.Store, names []string, ratings []int, winner int, draw bool, scoreFlag bool, bundle statsBundle) {
	if db == nil {
		return
	}
	outcome := Outcome{
		Usernames:   names,
		Ratings:     ratings,
		Winner:      winner,
		Draw:        draw,
		ScoreFlag:   scoreFlag,
		Casualties:  bundle.casualties,
		GameSeconds: bundle.seconds,
	}
	if err := Apply(ctx, db, outcome); err != nil {
		log.Printf("session: rating apply failed: %v", err)
	}
}

func usernamesOf(seats []*player.Player) []string {
	out := make([]string, len(seats))
	for i, p := range seats {
		out[i] = p.Username
	}
	return out
}

func teardown(players, spectators []*player.Player, online *registry.Online) {
	for _, p := range players {
		online.Remove(p.Username)
		p.Disconnect()
	}
	for _, p := range spectators {
		online.Remove(p.Username)
		p.Disconnect()
	}
}
