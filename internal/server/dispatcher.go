// Package server implements the top-level connection dispatcher of spec.md
// §4.4/§6/§7: version check, first-message routing to the short-lived
// request handlers or the long-lived queue/room handoff, and the catch-all
// teardown path. Grounded on the teacher's cmd/server/main.go Client
// struct/processMessage dispatch shape, adapted from a per-state switch
// over an auth state machine to a per-message-type switch over the wire
// protocol's single discriminator field.
package server

import (
	"context"
	"log"
	"net"

	"wodserver/internal/auth"
	"wodserver/internal/player"
	"wodserver/internal/protocol"
	"wodserver/internal/queue"
	"wodserver/internal/registry"
	"wodserver/internal/store"
	"wodserver/internal/transport"
)

// Deps bundles every collaborator the dispatcher and its handlers need.
type Deps struct {
	Store           *store.Store
	Online          *registry.Online
	Rooms           *registry.Rooms
	Auth            auth.Deps
	DuelQueue       *queue.Mailbox
	MixedQueues     *queue.MixedQueues
	Codec           protocol.Codec
	ProtocolVersion string
}

// HandleConnection is the entry point for every accepted TCP connection,
// per spec.md §7's "top-level dispatcher wraps its whole body in a
// catch-all" requirement: any early return here closes the raw socket,
// and any return past the online-set add removes the username first.
func (d Deps) HandleConnection(nc net.Conn) {
	conn := transport.NewConn(nc)

	payload, outcome := conn.ReadControl()
	if outcome != transport.ReadOK {
		conn.Close()
		return
	}

	req, err := d.Codec.DecodeMap(payload)
	if err != nil {
		conn.Close()
		return
	}

	if version, _ := req["version"].(string); version != d.ProtocolVersion {
		d.reply(conn, protocol.Fail(protocol.ErrVersionFail))
		conn.Close()
		return
	}

	msgType, _ := req["type"].(string)
	ctx := context.Background()

	switch protocol.MessageType(msgType) {
	case protocol.TypeRegister1:
		d.reply(conn, d.Auth.Register1(ctx, req))
		conn.Close()
	case protocol.TypeLogin1:
		d.reply(conn, d.Auth.Login1(ctx, req))
		conn.Close()
	case protocol.TypeLogin2:
		d.reply(conn, d.Auth.Login2(ctx, req))
		conn.Close()
	case protocol.TypeSteamRegister:
		d.reply(conn, d.Auth.SteamRegister(ctx, req))
		conn.Close()
	case protocol.TypeSteamLogin:
		d.reply(conn, d.Auth.SteamLogin(ctx, req))
		conn.Close()
	default:
		d.handleCredentialed(ctx, conn, msgType, req)
	}
}

// handleCredentialed handles every message type that isn't one of the five
// registration flows: per spec.md §4.4, "any other first message" is
// treated as an already-credentialed action gated by authorize.
func (d Deps) handleCredentialed(ctx context.Context, conn *transport.Conn, msgType string, req map[string]any) {
	username, _ := req["username"].(string)
	password, _ := req["password"].(string)

	if !d.Auth.Authorize(ctx, username, password) {
		d.reply(conn, protocol.Fail(protocol.ErrAuthorizeFail))
		conn.Close()
		return
	}

	switch protocol.MessageType(msgType) {
	case protocol.TypeGetStats:
		d.handleGetStats(ctx, conn, username)
		conn.Close()
	case protocol.TypeBuyItem:
		d.handleBuyItem(ctx, conn, req, username)
		conn.Close()
	case protocol.TypeSetTitle:
		d.handleSetTitle(ctx, conn, req, username)
		conn.Close()
	case protocol.TypeSyncCampaign:
		d.handleSyncCampaign(ctx, conn, req, username)
		conn.Close()
	case protocol.Type1v1, protocol.Type3Player, protocol.Type4Player, protocol.TypeMixed:
		d.handleMatchmaking(ctx, conn, protocol.MessageType(msgType), req, username)
	default:
		d.reply(conn, protocol.Fail(protocol.ErrGeneric))
		conn.Close()
	}
}

// handleMatchmaking enforces the at-most-one-session invariant and then
// hands the connection off to the room or queue subsystem, per spec.md
// §4.5/§4.6/§9's "add-to-queue/room and the online-set add occur in that
// guarded section".
func (d Deps) handleMatchmaking(ctx context.Context, conn *transport.Conn, msgType protocol.MessageType, req map[string]any, username string) {
	if !d.Online.TryAdd(username) {
		d.reply(conn, protocol.Fail(protocol.ErrUserOnlineFail))
		conn.Close()
		return
	}

	rating, err := d.Store.GetScore(ctx, username)
	if err != nil {
		log.Printf("server: score lookup failed for %s: %v", username, err)
		d.Online.Remove(username)
		d.reply(conn, protocol.Fail(protocol.ErrConnectionFail))
		conn.Close()
		return
	}
	conn.SetGameSocketOptions()
	p := player.New(username, rating, conn)

	code, _ := req["code"].(string)
	if code != "" {
		d.joinOrHostRoom(req, msgType, p, code)
		return
	}

	d.reply(conn, protocol.OK(nil))
	d.enqueue(msgType, p)
}

func (d Deps) joinOrHostRoom(req map[string]any, msgType protocol.MessageType, p *player.Player, code string) {
	mode := registry.Mode(msgType)

	if snap, ok := queue.JoinRoom(d.Rooms, code, p); ok {
		d.reply(p.Conn, protocol.OK(map[string]any{"snapshot": roomSnapshot(snap)}))
		return
	}

	var customMap []byte
	if wantsMap, _ := req["custom_map"].(bool); wantsMap {
		if payload, outcome := p.Conn.ReadControl(); outcome == transport.ReadOK {
			if m, err := d.Codec.DecodeMap(payload); err == nil {
				if b, ok := m["custom_map"].(string); ok {
					customMap = []byte(b)
				}
			}
		}
	}

	queue.HostRoom(d.Rooms, code, mode, p, customMap)
	d.reply(p.Conn, protocol.OK(nil))
}

func roomSnapshot(room *registry.GameRoom) map[string]any {
	names := make([]string, len(room.Players))
	for i, rp := range room.Players {
		names[i] = rp.Username
	}
	return map[string]any{"mode": string(room.Mode), "players": names, "has_custom_map": len(room.CustomMap) > 0}
}

func (d Deps) enqueue(msgType protocol.MessageType, p *player.Player) {
	switch msgType {
	case protocol.Type1v1:
		d.DuelQueue.Push(p)
	case protocol.Type3Player:
		d.MixedQueues.V3.Push(p)
	case protocol.Type4Player:
		d.MixedQueues.V4.Push(p)
	case protocol.TypeMixed:
		d.MixedQueues.V34.Push(p)
	}
}

func (d Deps) reply(conn *transport.Conn, env protocol.Envelope) {
	b, err := d.Codec.Encode(env)
	if err != nil {
		log.Printf("server: encode reply failed: %v", err)
		return
	}
	conn.Write(b)
}
