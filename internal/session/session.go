// internal/session/session.go
//
// Session owns one live Star Match round on behalf of a player.
// Responsibilities:
//   - Serialize every round transition (select, tick, restart) behind one mutex.
//   - Run the once-per-second countdown as a goroutine bound to the round's ID;
//     it stops when the round ends, is replaced, or the session closes.
//   - Publish a Snapshot to subscribers after every change.
//   - Report each finished round exactly once through the OnFinish hook.
//
// Notes:
//   - Restart replaces the round wholesale; a tick still in flight for the old
//     round is dropped because its round ID no longer matches.

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/starmatch/internal/game"
)

// Mode names how rounds of a session are generated.
type Mode string

const (
	ModeClassic Mode = "classic"
	ModeDaily   Mode = "daily"
)

// DefaultTickPeriod is the countdown resolution.
const DefaultTickPeriod = time.Second

var (
	ErrClosed         = errors.New("session closed")
	ErrNotRestartable = errors.New("session cannot be restarted")
)

// Owner identifies who plays a session. Exactly one of the fields is normally set.
type Owner struct {
	UserID string
	AnonID string
}

// Result describes a finished round.
type Result struct {
	SessionID   string
	RoundID     string
	Owner       Owner
	Mode        Mode
	State       game.State
	NumbersUsed int
	SecondsLeft int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Elapsed is the wall time from round start to finish.
func (r Result) Elapsed() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Options configures a Session. Zero values pick defaults.
type Options struct {
	Owner      Owner
	Mode       Mode
	TickPeriod time.Duration
	// NewRand supplies randomness for each new round; nil means crypto/rand.
	NewRand func() game.Rand
	// OnStart is called (without the session lock) whenever a round begins.
	OnStart func(s *Session, snap game.Snapshot)
	// OnFinish is called (without the session lock) once per finished round.
	OnFinish func(Result)
}

// Session is safe for concurrent use.
type Session struct {
	ID    string
	Owner Owner
	Mode  Mode

	// hookMu orders hook calls: a round's OnStart always returns before its
	// OnFinish begins. Taken before mu, never while holding it.
	hookMu sync.Mutex

	mu       sync.Mutex
	round    *game.Round
	started  time.Time
	finished time.Time
	reported bool
	closed   bool
	cancel   context.CancelFunc
	parent   context.Context
	subs     map[int]chan game.Snapshot
	nextSub  int

	period   time.Duration
	newRand  func() game.Rand
	onStart  func(*Session, game.Snapshot)
	onFinish func(Result)
}

// New creates a session with its first round. The countdown does not run until Start.
func New(opts Options) *Session {
	if opts.Mode == "" {
		opts.Mode = ModeClassic
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}
	if opts.NewRand == nil {
		opts.NewRand = game.CryptoRand
	}
	s := &Session{
		ID:       uuid.NewString(),
		Owner:    opts.Owner,
		Mode:     opts.Mode,
		subs:     make(map[int]chan game.Snapshot),
		period:   opts.TickPeriod,
		newRand:  opts.NewRand,
		onStart:  opts.OnStart,
		onFinish: opts.OnFinish,
	}
	s.round = game.NewRound(s.newRand())
	s.started = time.Now()
	return s
}

// Start begins the countdown of the current round. The ticker goroutine ends when
// ctx is cancelled. Calling Start more than once has no effect.
// OnStart runs before the first tick can land.
func (s *Session) Start(ctx context.Context) {
	s.hookMu.Lock()
	s.mu.Lock()
	if s.parent != nil || s.closed {
		s.mu.Unlock()
		s.hookMu.Unlock()
		return
	}
	s.parent = ctx
	snap := s.round.Snapshot()
	s.mu.Unlock()

	if s.onStart != nil {
		s.onStart(s, snap)
	}
	s.hookMu.Unlock()
	s.arm(snap.RoundID)
}

// Snapshot returns the current round state.
func (s *Session) Snapshot() game.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.Snapshot()
}

// Select forwards a tile click to the round.
// It returns the resulting snapshot and whether anything changed.
func (s *Session) Select(n int) (game.Snapshot, bool) {
	s.mu.Lock()
	if s.closed {
		snap := s.round.Snapshot()
		s.mu.Unlock()
		return snap, false
	}
	changed := s.round.SelectNumber(n)
	snap := s.round.Snapshot()
	var res *Result
	if changed {
		s.publishLocked(snap)
		res = s.finishLocked(snap)
	}
	s.mu.Unlock()

	s.report(res)
	return snap, changed
}

// Restart discards the current round and starts a fresh one.
// A click on the new round may land before OnStart returns; its finish is
// reported only after OnStart.
func (s *Session) Restart() (game.Snapshot, error) {
	s.hookMu.Lock()
	s.mu.Lock()
	if s.closed {
		snap := s.round.Snapshot()
		s.mu.Unlock()
		s.hookMu.Unlock()
		return snap, ErrClosed
	}
	if s.Mode == ModeDaily {
		snap := s.round.Snapshot()
		s.mu.Unlock()
		s.hookMu.Unlock()
		return snap, ErrNotRestartable
	}
	s.stopTimerLocked()
	s.round = game.NewRound(s.newRand())
	s.started = time.Now()
	s.finished = time.Time{}
	s.reported = false
	snap := s.round.Snapshot()
	s.publishLocked(snap)
	s.mu.Unlock()

	log.Debug().Str("session", s.ID).Str("round", snap.RoundID).Msg("round restarted")
	if s.onStart != nil {
		s.onStart(s, snap)
	}
	s.hookMu.Unlock()
	s.arm(snap.RoundID)
	return snap, nil
}

// Subscribe returns a channel receiving a snapshot after every change, and a func
// that unsubscribes and closes the channel. Slow receivers miss intermediate frames.
func (s *Session) Subscribe() (<-chan game.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan game.Snapshot, 16)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close stops the countdown and closes all subscriber channels.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	for id, c := range s.subs {
		delete(s.subs, id)
		close(c)
	}
}

// Finished reports whether the current round is over.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.State() != game.StateActive
}

// FinishedAt returns when the current round ended; ok is false while it is active.
func (s *Session) FinishedAt() (at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, !s.finished.IsZero()
}

// ---------------------------------------------------------------------------
// countdown

// arm starts the countdown for roundID unless that round was replaced or ended meanwhile.
func (s *Session) arm(roundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.parent == nil || s.round.ID != roundID || s.cancel != nil {
		return
	}
	if s.round.State() != game.StateActive {
		return
	}
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	go s.runTimer(ctx, roundID)
}

func (s *Session) stopTimerLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) runTimer(ctx context.Context, roundID string) {
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !s.tick(roundID) {
				return
			}
		}
	}
}

// tick applies one countdown step to the round with the given ID.
// It returns false once the timer for that round should stop.
func (s *Session) tick(roundID string) bool {
	s.mu.Lock()
	if s.closed || s.round.ID != roundID {
		s.mu.Unlock()
		return false
	}
	changed := s.round.Tick()
	snap := s.round.Snapshot()
	var res *Result
	if changed {
		s.publishLocked(snap)
		res = s.finishLocked(snap)
	}
	active := snap.State == game.StateActive
	if !active {
		s.stopTimerLocked()
	}
	s.mu.Unlock()

	s.report(res)
	return active
}

// ---------------------------------------------------------------------------
// notification

func (s *Session) publishLocked(snap game.Snapshot) {
	for _, c := range s.subs {
		select {
		case c <- snap:
		default:
		}
	}
}

// finishLocked builds the Result for a round that just ended, at most once per round.
func (s *Session) finishLocked(snap game.Snapshot) *Result {
	if snap.State == game.StateActive || s.reported {
		return nil
	}
	s.reported = true
	s.finished = time.Now()
	s.stopTimerLocked()
	return &Result{
		SessionID:   s.ID,
		RoundID:     snap.RoundID,
		Owner:       s.Owner,
		Mode:        s.Mode,
		State:       snap.State,
		NumbersUsed: s.round.NumbersUsed(),
		SecondsLeft: snap.SecondsLeft,
		StartedAt:   s.started,
		FinishedAt:  s.finished,
	}
}

func (s *Session) report(res *Result) {
	if res == nil {
		return
	}
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	log.Info().
		Str("session", res.SessionID).
		Str("round", res.RoundID).
		Str("state", string(res.State)).
		Int("numbersUsed", res.NumbersUsed).
		Dur("elapsed", res.Elapsed()).
		Msg("round finished")
	if s.onFinish != nil {
		s.onFinish(*res)
	}
}
