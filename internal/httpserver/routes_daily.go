// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
// Exposes two endpoints under /daily:
//   - POST /daily/new         → start today's daily game (creates or reuses session)
//   - GET  /daily/leaderboard → top 20 results for today (or ?date=YYYY-MM-DD)
//
// Everyone gets the same seeded round for a date. Each player gets one attempt per
// day: the session cannot be restarted or deleted and a finished result locks the date.
// Clicks and the live stream use the regular /game/{id} endpoints.

package httpserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/starmatch/internal/daily"
	"github.com/robalobadob/starmatch/internal/game"
	"github.com/robalobadob/starmatch/internal/results"
	"github.com/robalobadob/starmatch/internal/session"
)

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv      *Server
	salt     string
	sessions map[string]string // session IDs keyed by player|date
	mu       sync.Mutex        // guards sessions
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	dd := &dailyServer{
		srv:      s,
		salt:     s.opts.DailySalt,
		sessions: make(map[string]string),
	}
	s.daily = dd
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", dd.handleNew)
		r.Get("/leaderboard", dd.handleLeaderboard)
	})
}

// dailyNewRes is returned by /daily/new.
type dailyNewRes struct {
	GameID string         `json:"gameId"`
	Date   string         `json:"date"`
	Played bool           `json:"played"`
	Round  *game.Snapshot `json:"round,omitempty"`
}

// handleNew creates or reuses today's session.
// - Already finished today (DB row or finished session) → Played=true.
// - Otherwise return the live session, creating it on first call.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	owner := d.srv.ownerOf(w, r)
	uid := owner.UserID
	if uid == "" {
		uid = owner.AnonID
	}
	now := time.Now().UTC()
	date := daily.DateKey(now)

	if played, err := d.srv.results.DailyPlayed(r.Context(), uid, date); err != nil {
		log.Warn().Err(err).Str("user", uid).Msg("daily played lookup")
	} else if played {
		writeJSON(w, dailyNewRes{Date: date, Played: true})
		return
	}

	key := uid + "|" + date
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.sessions[key]; ok {
		if sess, err := d.srv.store.Get(r.Context(), id); err == nil {
			if sess.Finished() {
				writeJSON(w, dailyNewRes{Date: date, Played: true})
				return
			}
			snap := sess.Snapshot()
			writeJSON(w, dailyNewRes{GameID: sess.ID, Date: date, Round: &snap})
			return
		}
	}

	salt := d.salt
	sess := d.srv.newSession(owner, session.ModeDaily, func() game.Rand { return daily.Rand(now, salt) })
	if err := d.srv.store.Save(r.Context(), sess); err != nil {
		writeErr(w, http.StatusInternalServerError, "save_failed")
		return
	}
	d.sessions[key] = sess.ID
	sess.Start(d.srv.ctx)
	snap := sess.Snapshot()
	writeJSON(w, dailyNewRes{GameID: sess.ID, Date: date, Round: &snap})
}

// prune forgets sessions of past dates and sessions already evicted from the store.
func (d *dailyServer) prune(now time.Time) {
	today := "|" + daily.DateKey(now)
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, id := range d.sessions {
		if !strings.HasSuffix(key, today) {
			delete(d.sessions, key)
			continue
		}
		if _, err := d.srv.store.Get(d.srv.ctx, id); err != nil {
			delete(d.sessions, key)
		}
	}
}

// lbRes is returned by /daily/leaderboard.
type lbRes struct {
	Date string          `json:"date"`
	Top  []results.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(time.Now())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_date")
		return
	}
	rows, err := d.srv.results.DailyLeaderboard(r.Context(), date, 20)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, lbRes{Date: date, Top: rows})
}
