package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wodserver/internal/config"
	"wodserver/internal/protocol"
	"wodserver/internal/registry"
	"wodserver/internal/store"
)

type recordingMailer struct {
	lastTo   string
	lastBody string
	fail     bool
}

func (m *recordingMailer) Send(to, body string) error {
	if m.fail {
		return errFakeSendFailure
	}
	m.lastTo, m.lastBody = to, body
	return nil
}

var errFakeSendFailure = &sendError{"fake send failure"}

type sendError struct{ msg string }

func (e *sendError) Error() string { return e.msg }

func newTestDeps(t *testing.T, mailer store.Mailer) Deps {
	t.Helper()
	cfg := &config.Config{
		DBType:           "sqlite",
		DBName:           ":memory:",
		DBMaxConnections: 5,
		DBMaxIdleConns:   5,
		StoreWorkers:     4,
	}
	s, err := store.Open(cfg, mailer)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return Deps{Store: s, Pending: registry.NewPendingCodes(30*time.Minute, nil)}
}

func TestRegister1CreatesAccountAndMailsCode(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()

	env := deps.Register1(ctx, map[string]any{
		"username": "alice", "email": "alice@example.com",
	})

	require.Equal(t, 1, env["status"])
	require.Equal(t, "alice@example.com", mailer.lastTo)

	exists, err := deps.Store.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, exists)

	_, ok := deps.Pending.Get("alice")
	require.True(t, ok)
}

func TestRegister1RejectsTakenUsername(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()

	deps.Register1(ctx, map[string]any{"username": "bob", "email": "bob@example.com"})
	env := deps.Register1(ctx, map[string]any{"username": "bob", "email": "other@example.com"})

	require.Equal(t, 0, env["status"])
	require.Equal(t, string(protocol.ErrUsernameTaken), env["error"])
}

func TestRegister1RollsBackOnEmailFailure(t *testing.T) {
	mailer := &recordingMailer{fail: true}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()

	env := deps.Register1(ctx, map[string]any{"username": "carol", "email": "carol@example.com"})

	require.Equal(t, 0, env["status"])
	require.Equal(t, string(protocol.ErrEmailInvalid), env["error"])

	exists, err := deps.Store.ExistsByUsername(ctx, "carol")
	require.NoError(t, err)
	require.False(t, exists, "failed registration must roll back the inserted user")

	_, ok := deps.Pending.Get("carol")
	require.False(t, ok, "failed registration must roll back the pending code")
}

func TestLogin1RequiresMatchingEmail(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()
	deps.Register1(ctx, map[string]any{"username": "dave", "email": "dave@example.com"})

	env := deps.Login1(ctx, map[string]any{"username": "dave", "email": "wrong@example.com"})
	require.Equal(t, string(protocol.ErrEmailMismatch), env["error"])

	env = deps.Login1(ctx, map[string]any{"username": "dave", "email": "dave@example.com"})
	require.Equal(t, 1, env["status"])
}

func TestLogin2RejectsExpiredAndWrongCode(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()

	env := deps.Login2(ctx, map[string]any{"username": "erin", "code": "ABCD"})
	require.Equal(t, string(protocol.ErrExpiredCode), env["error"])

	deps.Pending.Set(ctx, "erin", "WXYZ")
	env = deps.Login2(ctx, map[string]any{"username": "erin", "code": "ABCD"})
	require.Equal(t, string(protocol.ErrWrongCode), env["error"])
}

func TestLogin2RotatesPasswordOnMatchingCode(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()
	deps.Register1(ctx, map[string]any{"username": "frank", "email": "frank@example.com"})
	deps.Pending.Set(ctx, "frank", "WXYZ")

	env := deps.Login2(ctx, map[string]any{"username": "frank", "code": "WXYZ"})

	require.Equal(t, 1, env["status"])
	newPassword, ok := env["password"].(string)
	require.True(t, ok)
	require.Len(t, newPassword, passwordLength)

	ok2, err := deps.Store.Authorize(ctx, "frank", newPassword)
	require.NoError(t, err)
	require.True(t, ok2)

	_, stillPending := deps.Pending.Get("frank")
	require.False(t, stillPending)
}

func TestSteamRegisterAndSteamLogin(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()

	env := deps.SteamRegister(ctx, map[string]any{"username": "gina", "steam_id": "76500000000000001"})
	require.Equal(t, 1, env["status"])
	firstPassword := env["password"].(string)

	loginEnv := deps.SteamLogin(ctx, map[string]any{"steam_id": "76500000000000001"})
	require.Equal(t, 1, loginEnv["status"])
	require.Equal(t, "gina", loginEnv["username"])
	require.NotEqual(t, firstPassword, loginEnv["password"])
}

func TestSteamLoginUnknownIDFails(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	ctx := context.Background()

	env := deps.SteamLogin(ctx, map[string]any{"steam_id": "nope"})
	require.Equal(t, string(protocol.ErrUserNotFound), env["error"])
}
