package results

import (
	"context"
)

// DailyResult is one player's finished daily challenge.
type DailyResult struct {
	UserID      string `json:"userId"`
	Date        string `json:"date"`
	NumbersUsed int    `json:"numbersUsed"`
	ElapsedMs   int    `json:"elapsedMs"`
}

// LBRow is a leaderboard entry.
type LBRow struct {
	UserID      string `json:"userId"`
	NumbersUsed int    `json:"numbersUsed"`
	ElapsedMs   int    `json:"elapsedMs"`
}

// DailyPlayed reports whether a player already finished the given date.
func (s *Store) DailyPlayed(ctx context.Context, userID, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM daily_results WHERE user_id=? AND date=?`,
		userID, date,
	).Scan(&cnt)
	return cnt > 0, err
}

// InsertDaily stores a result; a second result for the same user and date is ignored.
func (s *Store) InsertDaily(ctx context.Context, r DailyResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_results(user_id, date, numbers_used, elapsed_ms)
         VALUES(?,?,?,?)`, r.UserID, r.Date, r.NumbersUsed, r.ElapsedMs,
	)
	return err
}

// DailyLeaderboard returns the top results for date: most tiles cleared, then fastest.
func (s *Store) DailyLeaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, numbers_used, elapsed_ms
         FROM daily_results
         WHERE date=?
         ORDER BY numbers_used DESC, elapsed_ms ASC, created_at ASC
         LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.UserID, &r.NumbersUsed, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
