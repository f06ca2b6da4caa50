package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wodserver/internal/auth"
	"wodserver/internal/config"
	"wodserver/internal/protocol"
	"wodserver/internal/queue"
	"wodserver/internal/registry"
	"wodserver/internal/store"
)

type noopMailer struct{}

func (noopMailer) Send(to, body string) error { return nil }

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	cfg := &config.Config{
		DBType: "sqlite", DBName: ":memory:",
		DBMaxConnections: 5, DBMaxIdleConns: 5, StoreWorkers: 4,
	}
	s, err := store.Open(cfg, noopMailer{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return Deps{
		Store:           s,
		Online:          registry.NewOnline(),
		Rooms:           registry.NewRooms(),
		Auth:            auth.Deps{Store: s, Pending: registry.NewPendingCodes(30*time.Minute, nil)},
		DuelQueue:       queue.NewMailbox(),
		MixedQueues:     queue.NewMixedQueues(),
		Codec:           protocol.Codec{},
		ProtocolVersion: "0.13.3",
	}
}

func writeFramed(t *testing.T, nc net.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	_, err = nc.Write(hdr[:])
	require.NoError(t, err)
	_, err = nc.Write(b)
	require.NoError(t, err)
}

func readFramed(t *testing.T, nc net.Conn) map[string]any {
	t.Helper()
	var hdr [4]byte
	_, err := nc.Read(hdr[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if n > 0 {
		_, err = nc.Read(buf)
		require.NoError(t, err)
	}
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf, &m))
	return m
}

func TestDispatcherRejectsVersionMismatch(t *testing.T) {
	deps := newTestDeps(t)
	server, client := net.Pipe()
	go deps.HandleConnection(server)

	writeFramed(t, client, map[string]any{"version": "0.0.0", "type": "get-stats"})
	reply := readFramed(t, client)

	require.EqualValues(t, 0, reply["status"])
	require.Equal(t, string(protocol.ErrVersionFail), reply["error"])
}

func TestDispatcherRegister1AndGetStats(t *testing.T) {
	deps := newTestDeps(t)

	server, client := net.Pipe()
	go deps.HandleConnection(server)
	writeFramed(t, client, map[string]any{
		"version": "0.13.3", "type": "register1",
		"username": "hana", "email": "hana@example.com",
	})
	reply := readFramed(t, client)
	require.EqualValues(t, 1, reply["status"])

	hash, err := deps.Store.GetPasswordHash(context.Background(), "hana")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
}

func TestDispatcherAuthorizeFailClosesConnection(t *testing.T) {
	deps := newTestDeps(t)
	server, client := net.Pipe()
	go deps.HandleConnection(server)

	writeFramed(t, client, map[string]any{
		"version": "0.13.3", "type": "get-stats",
		"username": "ghost", "password": "wrong",
	})
	reply := readFramed(t, client)

	require.EqualValues(t, 0, reply["status"])
	require.Equal(t, string(protocol.ErrAuthorizeFail), reply["error"])
}
