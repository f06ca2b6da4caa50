// File: internal/store/users.go
// War of Dots Server - User record CRUD
//
// Adapted from the teacher's internal/database/rooms.go: same
// sql.DB-CRUD-with-struct-and-json-tags shape, applied to the user record of
// spec.md §3 instead of the MUD's Room/Exit types.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Stats is the structured per-user stats bundle of spec.md §3.
type Stats struct {
	UnitsDestroyed     int    `json:"units_destroyed"`
	ShortestGame       int    `json:"shortest_game"`
	MinimalCasualties  int    `json:"minimal_casualties"`
	DevDefeated        bool   `json:"dev_defeated"`
	CampaignCompleted  bool   `json:"campaign_completed"`
	CampaignProgress   []int  `json:"campaign_progress"`
}

// DefaultStats is the value absent stats default to, per spec.md §3.
func DefaultStats() Stats {
	return Stats{
		UnitsDestroyed:    0,
		ShortestGame:      3600,
		MinimalCasualties: 100,
		DevDefeated:       false,
		CampaignCompleted: false,
		CampaignProgress:  []int{},
	}
}

// User is the persisted user record of spec.md §3.
type User struct {
	Username      string
	PasswordHash  string
	SteamID       sql.NullString
	Email         sql.NullString
	Score         int
	NumberOfWins  int
	NumberOfGames int
	LastActive    int64
	Title         sql.NullString
	Money         int
	Items         []string
	Stats         Stats
}

// campaignCap is the progress-list length at which sync-campaign marks the
// campaign complete (spec.md §6: "exceeds 29 entries").
const campaignCap = 29

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var itemsJSON, statsJSON string
	err := row.Scan(
		&u.Username, &u.PasswordHash, &u.SteamID, &u.Email, &u.Score,
		&u.NumberOfWins, &u.NumberOfGames, &u.LastActive, &u.Title,
		&u.Money, &itemsJSON, &statsJSON,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &u.Items); err != nil {
		return nil, fmt.Errorf("store: decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &u.Stats); err != nil {
		return nil, fmt.Errorf("store: decode stats: %w", err)
	}
	return &u, nil
}

const userColumns = `username, password_hash, steam_id, email, score, number_of_wins, number_of_games, last_active, title, money, items, stats`

func (s *Store) getUser(ctx context.Context, username string) (*User, error) {
	var u *User
	err := s.workers.Do(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
		var err error
		u, err = scanUser(row)
		return err
	})
	return u, err
}

// ExistsByUsername reports whether a user with the given username exists.
func (s *Store) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "username", username)
}

// ExistsByEmail reports whether a user with the given email exists.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "email", email)
}

// ExistsBySteamID reports whether a user with the given steam id exists.
func (s *Store) ExistsBySteamID(ctx context.Context, steamID string) (bool, error) {
	return s.exists(ctx, "steam_id", steamID)
}

func (s *Store) exists(ctx context.Context, column, value string) (bool, error) {
	var found bool
	err := s.workers.Do(ctx, func() error {
		var n int
		q := fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE %s = ?`, column)
		if err := s.db.QueryRowContext(ctx, q, value).Scan(&n); err != nil {
			return err
		}
		found = n > 0
		return nil
	})
	return found, err
}

// GetUsernameBySteamID looks up the username owning a steam id.
func (s *Store) GetUsernameBySteamID(ctx context.Context, steamID string) (string, error) {
	var username string
	err := s.workers.Do(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT username FROM users WHERE steam_id = ?`, steamID).Scan(&username)
	})
	return username, err
}

// GetEmail returns the stored email for a username (may be empty/null).
func (s *Store) GetEmail(ctx context.Context, username string) (string, error) {
	u, err := s.getUser(ctx, username)
	if err != nil {
		return "", err
	}
	return u.Email.String, nil
}

// GetPasswordHash returns the bcrypt hash for a username.
func (s *Store) GetPasswordHash(ctx context.Context, username string) (string, error) {
	u, err := s.getUser(ctx, username)
	if err != nil {
		return "", err
	}
	return u.PasswordHash, nil
}

// GetScore returns the rating snapshot for a username.
func (s *Store) GetScore(ctx context.Context, username string) (int, error) {
	u, err := s.getUser(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.Score, nil
}

// GetLastActive returns the unix timestamp of a user's last recorded
// activity, used by the register1 abandonment check of spec.md §4.4.
func (s *Store) GetLastActive(ctx context.Context, username string) (int64, error) {
	u, err := s.getUser(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.LastActive, nil
}

// GetRank returns the user's 1-indexed position in the leaderboard ordered
// by score descending. Supplemented from original_source/server.py, which
// the distilled spec's get-stats reply field implied but never specified
// how to compute.
func (s *Store) GetRank(ctx context.Context, username string) (int, error) {
	score, err := s.GetScore(ctx, username)
	if err != nil {
		return 0, err
	}
	var rank int
	err = s.workers.Do(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) + 1 FROM users WHERE score > ?`, score).Scan(&rank)
	})
	return rank, err
}

// GetTitles returns the titles for a list of usernames, in the order given.
func (s *Store) GetTitles(ctx context.Context, usernames []string) (map[string]string, error) {
	out := make(map[string]string, len(usernames))
	for _, username := range usernames {
		u, err := s.getUser(ctx, username)
		if err != nil {
			return nil, err
		}
		out[username] = u.Title.String
	}
	return out, nil
}

// StatsBundle is the reply shape for get-stats.
type StatsBundle struct {
	Score             int
	Rank              int
	NumberOfGames     int
	NumberOfWins      int
	UnitsDestroyed    int
	ShortestGame      int
	MinimalCasualties int
	DevDefeated       bool
	CampaignCompleted bool
	Money             int
	Items             []string
	Title             string
}

// GetStatsBundle assembles the full get-stats reply payload for a username.
func (s *Store) GetStatsBundle(ctx context.Context, username string) (*StatsBundle, error) {
	u, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	rank, err := s.GetRank(ctx, username)
	if err != nil {
		return nil, err
	}
	return &StatsBundle{
		Score:             u.Score,
		Rank:              rank,
		NumberOfGames:     u.NumberOfGames,
		NumberOfWins:      u.NumberOfWins,
		UnitsDestroyed:    u.Stats.UnitsDestroyed,
		ShortestGame:      u.Stats.ShortestGame,
		MinimalCasualties: u.Stats.MinimalCasualties,
		DevDefeated:       u.Stats.DevDefeated,
		CampaignCompleted: u.Stats.CampaignCompleted,
		Money:             u.Money,
		Items:             u.Items,
		Title:             u.Title.String,
	}, nil
}

// InsertUser creates a new user row with the defaults of spec.md §4.4's
// register1 (score=1000, games=0, wins=0, last_active=now).
func (s *Store) InsertUser(ctx context.Context, username, password, email, steamID string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	statsJSON, _ := json.Marshal(DefaultStats())
	return s.workers.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (username, password_hash, steam_id, email, score, number_of_wins, number_of_games, last_active, items, stats)
			VALUES (?, ?, ?, ?, 1000, 0, 0, ?, '[]', ?)`,
			username, hash, nullableString(steamID), nullableString(email), time.Now().Unix(), string(statsJSON))
		return err
	})
}

// DeleteUser removes a user row outright (used by the pending-code expiry
// sweep on a never-activated registration).
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	return s.workers.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
		return err
	})
}

// SetPasswordHash rotates a user's password (bcrypt-hashed at rest).
func (s *Store) SetPasswordHash(ctx context.Context, username, newPlaintext string) error {
	hash, err := hashPassword(newPlaintext)
	if err != nil {
		return err
	}
	return s.workers.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE username = ?`, hash, username)
		return err
	})
}

// SetSteamID attaches a steam id to an existing username.
func (s *Store) SetSteamID(ctx context.Context, username, steamID string) error {
	return s.workers.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE users SET steam_id = ? WHERE username = ?`, steamID, username)
		return err
	})
}

// SetTitle sets a user's display title.
func (s *Store) SetTitle(ctx context.Context, username, title string) error {
	return s.workers.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE users SET title = ? WHERE username = ?`, title, username)
		return err
	})
}

// SetLastActive stamps last_active to now.
func (s *Store) SetLastActive(ctx context.Context, username string, now int64) error {
	return s.workers.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE users SET last_active = ? WHERE username = ?`, now, username)
		return err
	})
}

// Authorize verifies a username/password pair with bcrypt and, on success,
// updates last_active. spec.md treats bcrypt as an external collaborator;
// this is the one place the store adapter actually calls it.
func (s *Store) Authorize(ctx context.Context, username, password string) (bool, error) {
	u, err := s.getUser(ctx, username)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return false, nil
	}
	if err := s.SetLastActive(ctx, username, time.Now().Unix()); err != nil {
		return false, err
	}
	return true, nil
}

func hashPassword(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("store: hash password: %w", err)
	}
	return string(b), nil
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// MatchParticipant is one row of a match-result application per spec.md §4.9.
type MatchParticipant struct {
	Username    string
	ScoreDelta  int  // rounded Elo delta, 0 if score_flag is false
	Won         bool
	MoneyDelta  int
	Casualties  int // this seat's reported casualties, or -1 if no stats bundle
	GameSeconds int // shared across all seats of the match
}

// ApplyMatchResult applies counters, Elo, money, and stats-merge updates for
// every participant of a finished match in a single transaction, per
// spec.md §4.9's "single store transaction per match" requirement.
func (s *Store) ApplyMatchResult(ctx context.Context, participants []MatchParticipant, devDefeatedUsername string) error {
	return s.workers.Do(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		totalCasualties := 0
		anyCasualtiesKnown := false
		for _, p := range participants {
			if p.Casualties >= 0 {
				totalCasualties += p.Casualties
				anyCasualtiesKnown = true
			}
		}

		for _, p := range participants {
			row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, p.Username)
			u, err := scanUser(row)
			if err != nil {
				return fmt.Errorf("apply match result: load %s: %w", p.Username, err)
			}

			newScore := u.Score + p.ScoreDelta
			newGames := u.NumberOfGames + 1
			newWins := u.NumberOfWins
			newMoney := u.Money
			if p.Won {
				newWins++
				newMoney += p.MoneyDelta
			}

			stats := u.Stats
			if anyCasualtiesKnown && len(participants) > 0 {
				share := totalCasualties
				if len(participants) == 2 {
					// 1v1: each seat gains the *opponent's* casualty count.
					for _, other := range participants {
						if other.Username != p.Username && other.Casualties >= 0 {
							share = other.Casualties
						}
					}
				} else {
					share = totalCasualties / len(participants)
				}
				stats.UnitsDestroyed += share
			}

			if p.Won && totalCasualties > 0 {
				if p.GameSeconds < stats.ShortestGame {
					stats.ShortestGame = p.GameSeconds
				}
				if p.Casualties >= 0 && p.Casualties < stats.MinimalCasualties {
					stats.MinimalCasualties = p.Casualties
				}
			}
			if p.Won && len(participants) == 2 && devDefeatedUsername == "TeaAndPython" {
				stats.DevDefeated = true
			}

			statsJSON, err := json.Marshal(stats)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE users SET score = ?, number_of_games = ?, number_of_wins = ?, money = ?, stats = ?
				WHERE username = ?`,
				newScore, newGames, newWins, newMoney, string(statsJSON), p.Username)
			if err != nil {
				return fmt.Errorf("apply match result: update %s: %w", p.Username, err)
			}
		}

		return tx.Commit()
	})
}

// DeductAndAppendItem deducts price from money and appends item_id to items
// in a single update, enforcing price >= 0 && money >= price per spec.md §6.
func (s *Store) DeductAndAppendItem(ctx context.Context, username string, price int, itemID string) error {
	return s.workers.Do(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
		u, err := scanUser(row)
		if err != nil {
			return err
		}
		if price < 0 {
			return ErrInvalidPrice
		}
		if u.Money < price {
			return ErrInsufficientFunds
		}

		items := append(u.Items, itemID)
		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE users SET money = money - ?, items = ? WHERE username = ?`, price, string(itemsJSON), username)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
}

// MergeCampaignProgress merges newIDs into the user's campaign_progress set
// and marks campaign_completed once the merged set exceeds campaignCap
// entries, per spec.md §6.
func (s *Store) MergeCampaignProgress(ctx context.Context, username string, newIDs []int) (progress []int, completed bool, err error) {
	err = s.workers.Do(ctx, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
		u, scanErr := scanUser(row)
		if scanErr != nil {
			return scanErr
		}

		seen := make(map[int]bool, len(u.Stats.CampaignProgress)+len(newIDs))
		merged := make([]int, 0, len(u.Stats.CampaignProgress)+len(newIDs))
		for _, id := range u.Stats.CampaignProgress {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
		for _, id := range newIDs {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
		sort.Ints(merged)

		stats := u.Stats
		stats.CampaignProgress = merged
		if len(merged) > campaignCap {
			stats.CampaignCompleted = true
		}

		statsJSON, marshalErr := json.Marshal(stats)
		if marshalErr != nil {
			return marshalErr
		}

		if _, execErr := tx.ExecContext(ctx, `UPDATE users SET stats = ? WHERE username = ?`, string(statsJSON), username); execErr != nil {
			return execErr
		}

		progress = merged
		completed = stats.CampaignCompleted
		return tx.Commit()
	})
	return progress, completed, err
}
