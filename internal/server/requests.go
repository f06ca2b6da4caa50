package server

import (
	"context"
	"errors"
	"log"

	"wodserver/internal/protocol"
	"wodserver/internal/store"
	"wodserver/internal/transport"
)

// handleGetStats replies with the full stats bundle of spec.md §6.
func (d Deps) handleGetStats(ctx context.Context, conn *transport.Conn, username string) {
	bundle, err := d.Store.GetStatsBundle(ctx, username)
	if err != nil {
		log.Printf("server: get-stats failed for %s: %v", username, err)
		d.reply(conn, protocol.Fail(protocol.ErrGetStatsFail))
		return
	}

	d.reply(conn, protocol.OK(map[string]any{
		"username":           username,
		"title":              bundle.Title,
		"score":              bundle.Score,
		"rank":               bundle.Rank,
		"number_of_games":    bundle.NumberOfGames,
		"number_of_wins":     bundle.NumberOfWins,
		"units_destroyed":    bundle.UnitsDestroyed,
		"shortest_game":      bundle.ShortestGame,
		"minimal_casualties": bundle.MinimalCasualties,
		"dev_defeated":       bundle.DevDefeated,
		"campaign_completed": bundle.CampaignCompleted,
		"money":              bundle.Money,
		"items":              bundle.Items,
	}))
}

// handleBuyItem deducts money and appends an item, per spec.md §6: requires
// price >= 0 and money >= price.
func (d Deps) handleBuyItem(ctx context.Context, conn *transport.Conn, req map[string]any, username string) {
	price, _ := toInt(req["price"])
	itemID, _ := req["item_id"].(string)

	err := d.Store.DeductAndAppendItem(ctx, username, price, itemID)
	switch {
	case err == nil:
		d.reply(conn, protocol.OK(nil))
	case errors.Is(err, store.ErrInvalidPrice):
		d.reply(conn, protocol.Fail(protocol.ErrInvalidPrice))
	case errors.Is(err, store.ErrInsufficientFunds):
		d.reply(conn, protocol.Fail(protocol.ErrGeneric))
	default:
		log.Printf("server: buy-item failed for %s: %v", username, err)
		d.reply(conn, protocol.Fail(protocol.ErrGeneric))
	}
}

// handleSetTitle applies a title change; spec.md §4.3 exposes set_title with
// no validation rules beyond the store call itself.
func (d Deps) handleSetTitle(ctx context.Context, conn *transport.Conn, req map[string]any, username string) {
	title, _ := req["title"].(string)
	if err := d.Store.SetTitle(ctx, username, title); err != nil {
		log.Printf("server: set-title failed for %s: %v", username, err)
		d.reply(conn, protocol.Fail(protocol.ErrGeneric))
		return
	}
	d.reply(conn, protocol.OK(nil))
}

// handleSyncCampaign merges a client's completed-level list into the
// account's campaign progress, per spec.md §6.
func (d Deps) handleSyncCampaign(ctx context.Context, conn *transport.Conn, req map[string]any, username string) {
	rawIDs, _ := req["progress"].([]any)
	ids := make([]int, 0, len(rawIDs))
	for _, v := range rawIDs {
		if n, ok := toInt(v); ok {
			ids = append(ids, n)
		}
	}

	progress, completed, err := d.Store.MergeCampaignProgress(ctx, username, ids)
	if err != nil {
		log.Printf("server: sync-campaign failed for %s: %v", username, err)
		d.reply(conn, protocol.Fail(protocol.ErrGeneric))
		return
	}

	d.reply(conn, protocol.OK(map[string]any{"progress": progress, "completed": completed}))
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
