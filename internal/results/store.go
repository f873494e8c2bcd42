// internal/results/store.go
//
// Ledger of finished Star Match games.
// Only game outcomes are stored; live rounds stay in memory and are never resumed.
//
// Tables (see assets/migrations):
//   - games:         one row per round, owned by a user or an anonymous cookie.
//   - users:         per-account counters (games played, wins, streak).
//   - daily_results: one row per player per daily challenge date.

package results

import (
	"context"
	"database/sql"
	"time"
)

// Game is a row of the games table.
type Game struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"-"`
	AnonID      string    `json:"-"`
	Mode        string    `json:"mode"`
	Status      string    `json:"status"`
	NumbersUsed int       `json:"numbersUsed"`
	SecondsLeft int       `json:"secondsLeft"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Store wraps the results database.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// StartGame inserts the owner row for a new round.
func (s *Store) StartGame(ctx context.Context, g Game) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO games (id, session_id, user_id, anonymous_id, mode, status, seconds_left, started_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.SessionID, nullable(g.UserID), nullable(g.AnonID), g.Mode, g.Status, g.SecondsLeft,
		g.StartedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FinishGame records the outcome of a round.
func (s *Store) FinishGame(ctx context.Context, id, status string, numbersUsed, secondsLeft int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE games SET status=?, numbers_used=?, seconds_left=?, finished_at=?
        WHERE id=?`,
		status, numbersUsed, secondsLeft, at.UTC().Format(time.RFC3339), id,
	)
	return err
}

// BumpStats increments games played and updates wins and streak in one transaction.
func (s *Store) BumpStats(ctx context.Context, userID string, won bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var gp, wins, streak int
	row := tx.QueryRowContext(ctx, `SELECT games_played, wins, streak FROM users WHERE id=?`, userID)
	if err := row.Scan(&gp, &wins, &streak); err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
	} else {
		streak = 0
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET games_played=?, wins=?, streak=? WHERE id=?`,
		gp, wins, streak, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// ClaimAnonGames transfers anonymous games to a user account after login.
func (s *Store) ClaimAnonGames(ctx context.Context, anonID, userID string) error {
	if anonID == "" || userID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE games SET user_id=?, anonymous_id=NULL WHERE anonymous_id=?`, userID, anonID)
	return err
}

// RecentGames lists a user's most recent games, newest first.
func (s *Store) RecentGames(ctx context.Context, userID string, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session_id, mode, status, numbers_used, seconds_left, started_at, COALESCE(finished_at, '')
        FROM games WHERE user_id=?
        ORDER BY started_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Game{}
	for rows.Next() {
		var g Game
		var started, finished string
		if err := rows.Scan(&g.ID, &g.SessionID, &g.Mode, &g.Status, &g.NumbersUsed, &g.SecondsLeft,
			&started, &finished); err != nil {
			return nil, err
		}
		g.UserID = userID
		g.StartedAt = parseTime(started)
		g.FinishedAt = parseTime(finished)
		out = append(out, g)
	}
	return out, rows.Err()
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseTime parses RFC3339 timestamps; on error returns zero time.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
