// internal/httpserver/server.go
//
// HTTP server wiring for the Star Match backend.
// Responsibilities:
//   - Router + middleware (request IDs, logging, panic recovery, timeouts, CORS, JSON).
//   - Public endpoints: "/", "/health".
//   - Game endpoints (optional auth): create a session, read it, click tiles, restart,
//     discard, and stream snapshots over a WebSocket.
//   - Recording each round's start and outcome in the results ledger.
//
// Notes:
//   - The engine never sees HTTP; this package is its presentation layer. It forwards
//     clicks to the session and the session owns the countdown.
//   - Sessions belong to whoever created them (account or anonymous cookie).

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/starmatch/internal/daily"
	"github.com/robalobadob/starmatch/internal/game"
	"github.com/robalobadob/starmatch/internal/results"
	"github.com/robalobadob/starmatch/internal/session"
	"github.com/robalobadob/starmatch/internal/store"
)

// Options carries configuration resolved by main.
type Options struct {
	JWTSecret    string
	JWTExpiry    time.Duration
	CookieName   string
	ClientOrigin string
	Secure       bool // production cookies (Secure, SameSite=None)
	DailySalt    string
	TickPeriod   time.Duration
	SessionTTL   time.Duration // how long a finished session stays readable
}

func (o *Options) setDefaults() {
	if o.JWTSecret == "" {
		o.JWTSecret = "dev_secret_change_me"
	}
	if o.JWTExpiry <= 0 {
		o.JWTExpiry = 14 * 24 * time.Hour
	}
	if o.CookieName == "" {
		o.CookieName = "starmatch_token"
	}
	if o.ClientOrigin == "" {
		o.ClientOrigin = "http://localhost:5173"
	}
	if o.DailySalt == "" {
		o.DailySalt = "local_dev_salt"
	}
	if o.TickPeriod <= 0 {
		o.TickPeriod = session.DefaultTickPeriod
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 10 * time.Minute
	}
}

// Server bundles router, live session store, and results DB.
type Server struct {
	r        *chi.Mux
	store    store.Store
	db       *sql.DB
	results  *results.Store
	opts     Options
	upgrader websocket.Upgrader
	daily    *dailyServer

	// ctx bounds every session countdown; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, db *sql.DB, opts Options) *Server {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		r:       chi.NewRouter(),
		store:   st,
		db:      db,
		results: results.NewStore(db),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(requestLogger)   // one debug line per request
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(s.cors)          // credentials-friendly CORS

	// WebSocket stream lives outside the timeout group: the connection is long-lived.
	s.r.With(s.withOptionalAuth()).Get("/game/{id}/ws", s.handleWS)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"service":"starmatch-go","endpoints":["/health","POST /game/new","POST /game/{id}/select","POST /game/{id}/restart","GET /game/{id}/ws","POST /daily/new","/auth/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"ok": true, "sessions": s.store.Len()})
		})

		// Game endpoints: optional auth (guests can play)
		r.Group(func(r chi.Router) {
			r.Use(s.withOptionalAuth())
			r.Post("/game/new", s.handleNewGame)
			r.Get("/game/{id}", s.handleGetGame)
			r.Post("/game/{id}/select", s.handleSelect)
			r.Post("/game/{id}/restart", s.handleRestart)
			r.Delete("/game/{id}", s.handleDeleteGame)

			// Daily Challenge: optional auth
			s.mountDaily(r)
		})

		// Auth + profile/stats
		s.mountAuthRoutes(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "not_found")
	})

	go s.sweepLoop()
	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// Close stops every session countdown and the sweeper.
func (s *Server) Close() { s.cancel() }

// sweepLoop evicts finished sessions until Close.
func (s *Server) sweepLoop() {
	t := time.NewTicker(s.opts.SessionTTL / 2)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			s.sweep(now)
		}
	}
}

// sweep removes sessions that finished more than SessionTTL before now.
func (s *Server) sweep(now time.Time) {
	n := s.store.DeleteFinished(s.ctx, now.Add(-s.opts.SessionTTL))
	if s.daily != nil {
		s.daily.prune(now)
	}
	if n > 0 {
		log.Debug().Int("evicted", n).Int("live", s.store.Len()).Msg("swept finished sessions")
	}
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.opts.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs method, path, status and latency for every request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("reqId", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// ------------------------------ GAME ---------------------------------------

// newGameRes is returned by POST /game/new.
type newGameRes struct {
	GameID string        `json:"gameId"`
	Round  game.Snapshot `json:"round"`
}

// selectReq/Res payloads for POST /game/{id}/select.
type selectReq struct {
	Number int `json:"number"`
}
type selectRes struct {
	Round   game.Snapshot `json:"round"`
	Changed bool          `json:"changed"` // false when the click was ignored
}

// handleNewGame creates a classic session and starts its countdown.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	sess := s.newSession(s.ownerOf(w, r), session.ModeClassic, nil)
	if err := s.store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		writeErr(w, http.StatusInternalServerError, "save_failed")
		return
	}
	sess.Start(s.ctx)
	writeJSON(w, newGameRes{GameID: sess.ID, Round: sess.Snapshot()})
}

// handleGetGame returns the current snapshot.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Snapshot())
}

// handleSelect forwards a tile click. Ignored clicks still return 200 with changed=false.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	snap, changed := sess.Select(req.Number)
	writeJSON(w, selectRes{Round: snap, Changed: changed})
}

// handleRestart replaces the round of a classic session.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.Restart()
	switch {
	case errors.Is(err, session.ErrNotRestartable):
		writeErr(w, http.StatusConflict, "not_restartable")
		return
	case err != nil:
		writeErr(w, http.StatusGone, "session_closed")
		return
	}
	writeJSON(w, snap)
}

// handleDeleteGame discards a classic session and stops its countdown.
// Daily sessions stay until they finish, so the attempt cannot be reset.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if sess.Mode == session.ModeDaily {
		writeErr(w, http.StatusConflict, "not_restartable")
		return
	}
	_ = s.store.Delete(r.Context(), sess.ID)
	writeJSON(w, map[string]bool{"ok": true})
}

// newSession builds a session whose rounds are recorded in the results ledger.
func (s *Server) newSession(owner session.Owner, mode session.Mode, rng func() game.Rand) *session.Session {
	return session.New(session.Options{
		Owner:      owner,
		Mode:       mode,
		TickPeriod: s.opts.TickPeriod,
		NewRand:    rng,
		OnStart:    s.recordStart,
		OnFinish:   s.recordFinish,
	})
}

// loadSession resolves {id} and checks that the caller owns it.
// On failure it writes the error response and returns false.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	if !s.owns(r, sess.Owner) {
		writeErr(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return sess, true
}

// ownerOf returns the account owner, or the anonymous cookie (set if missing).
func (s *Server) ownerOf(w http.ResponseWriter, r *http.Request) session.Owner {
	if me := userFrom(r); me != nil {
		return session.Owner{UserID: me.ID}
	}
	return session.Owner{AnonID: s.ensureAnonID(w, r)}
}

// owns reports whether the request comes from the session owner.
func (s *Server) owns(r *http.Request, o session.Owner) bool {
	if o.UserID != "" {
		me := userFrom(r)
		return me != nil && me.ID == o.UserID
	}
	c, err := r.Cookie(anonCookieName)
	return err == nil && o.AnonID != "" && c.Value == o.AnonID
}

// --------------------------- results ledger --------------------------------

// recordStart inserts the games row for a new round (best effort).
func (s *Server) recordStart(sess *session.Session, snap game.Snapshot) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	err := s.results.StartGame(ctx, results.Game{
		ID:          snap.RoundID,
		SessionID:   sess.ID,
		UserID:      sess.Owner.UserID,
		AnonID:      sess.Owner.AnonID,
		Mode:        string(sess.Mode),
		Status:      string(snap.State),
		SecondsLeft: snap.SecondsLeft,
		StartedAt:   time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("round", snap.RoundID).Msg("insert game row")
	}
}

// recordFinish stores a round's outcome, bumps account stats, and files daily results.
func (s *Server) recordFinish(res session.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	won := res.State == game.StateWon

	if err := s.results.FinishGame(ctx, res.RoundID, string(res.State), res.NumbersUsed, res.SecondsLeft, res.FinishedAt); err != nil {
		log.Warn().Err(err).Str("round", res.RoundID).Msg("finish game")
	}
	if res.Owner.UserID != "" {
		if err := s.results.BumpStats(ctx, res.Owner.UserID, won); err != nil {
			log.Warn().Err(err).Str("user", res.Owner.UserID).Msg("bump stats")
		}
	}
	if res.Mode == session.ModeDaily {
		uid := res.Owner.UserID
		if uid == "" {
			uid = res.Owner.AnonID
		}
		if err := s.results.InsertDaily(ctx, results.DailyResult{
			UserID:      uid,
			Date:        daily.DateKey(res.StartedAt),
			NumbersUsed: res.NumbersUsed,
			ElapsedMs:   int(res.Elapsed().Milliseconds()),
		}); err != nil {
			log.Warn().Err(err).Str("user", uid).Msg("insert daily result")
		}
	}
}

// ------------------------------- small util --------------------------------

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
