package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"wodserver/internal/config"
)

// seedFixture is a roster of test accounts, parsed the way the teacher's
// sibling repo (la2go's internal/config) unmarshals its YAML config: a
// struct tagged with `yaml:"..."` fed to yaml.Unmarshal.
type seedFixture struct {
	Users []struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Email    string `yaml:"email"`
	} `yaml:"users"`
}

const seedUsersYAML = `
users:
  - username: hansel
    password: p
    email: hansel@x.com
  - username: gretel
    password: p
    email: gretel@x.com
`

func seedUsers(t *testing.T, s *Store, raw string) []string {
	t.Helper()
	var fixture seedFixture
	require.NoError(t, yaml.Unmarshal([]byte(raw), &fixture))

	ctx := context.Background()
	names := make([]string, len(fixture.Users))
	for i, u := range fixture.Users {
		require.NoError(t, s.InsertUser(ctx, u.Username, u.Password, u.Email, ""))
		names[i] = u.Username
	}
	return names
}

type noopMailer struct{}

func (noopMailer) Send(to, body string) error { return nil }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{
		DBType:           "sqlite",
		DBName:           ":memory:",
		DBMaxConnections: 5,
		DBMaxIdleConns:   5,
		StoreWorkers:     4,
	}
	s, err := Open(cfg, noopMailer{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndFetchUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertUser(ctx, "alice", "hunter2", "a@x.com", ""))

	exists, err := s.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, exists)

	score, err := s.GetScore(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1000, score)

	bundle, err := s.GetStatsBundle(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 3600, bundle.ShortestGame)
	require.Equal(t, 100, bundle.MinimalCasualties)
	require.Equal(t, 0, bundle.NumberOfGames)
}

func TestAuthorizeRotatesOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertUser(ctx, "bob", "oldpass", "bob@x.com", ""))

	ok, err := s.Authorize(ctx, "bob", "oldpass")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.SetPasswordHash(ctx, "bob", "newpass"))

	ok, err = s.Authorize(ctx, "bob", "oldpass")
	require.NoError(t, err)
	require.False(t, ok, "old password must stop working after rotation")

	ok, err = s.Authorize(ctx, "bob", "newpass")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestApplyMatchResultOneVOneWin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertUser(ctx, "winner", "p", "w@x.com", ""))
	require.NoError(t, s.InsertUser(ctx, "loser", "p", "l@x.com", ""))

	err := s.ApplyMatchResult(ctx, []MatchParticipant{
		{Username: "winner", ScoreDelta: 25, Won: true, MoneyDelta: 1, Casualties: 0, GameSeconds: 120},
		{Username: "loser", ScoreDelta: -25, Won: false, Casualties: 5, GameSeconds: 120},
	}, "loser")
	require.NoError(t, err)

	winnerScore, err := s.GetScore(ctx, "winner")
	require.NoError(t, err)
	require.Equal(t, 1025, winnerScore)

	loserScore, err := s.GetScore(ctx, "loser")
	require.NoError(t, err)
	require.Equal(t, 975, loserScore)

	bundle, err := s.GetStatsBundle(ctx, "winner")
	require.NoError(t, err)
	require.Equal(t, 1, bundle.NumberOfGames)
	require.Equal(t, 1, bundle.NumberOfWins)
	require.Equal(t, 5, bundle.UnitsDestroyed, "winner gains opponent's casualty count in a 1v1")
}

func TestDeductAndAppendItemRejectsInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertUser(ctx, "shopper", "p", "s@x.com", ""))

	err := s.DeductAndAppendItem(ctx, "shopper", 10, "sword")
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestSeedUsersFromFixtureGetDefaultStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	names := seedUsers(t, s, seedUsersYAML)
	require.Len(t, names, 2)

	for _, username := range names {
		exists, err := s.ExistsByUsername(ctx, username)
		require.NoError(t, err)
		require.True(t, exists)

		bundle, err := s.GetStatsBundle(ctx, username)
		require.NoError(t, err)
		require.Equal(t, 3600, bundle.ShortestGame)
		require.Equal(t, 100, bundle.MinimalCasualties)
	}
}

func TestMergeCampaignProgressMarksCompleted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertUser(ctx, "camper", "p", "c@x.com", ""))

	ids := make([]int, 30)
	for i := range ids {
		ids[i] = i
	}
	progress, completed, err := s.MergeCampaignProgress(ctx, "camper", ids)
	require.NoError(t, err)
	require.Len(t, progress, 30)
	require.True(t, completed)
}
