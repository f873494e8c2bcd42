package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robalobadob/starmatch/internal/game"
)

// constRand always draws index v (mod n).
type constRand int

func (c constRand) IntN(n int) int { return int(c) % n }

func starsRand(stars int) func() game.Rand {
	return func() game.Rand { return constRand(stars - 1) }
}

// waitFor reads snapshots until pred matches or the deadline passes.
func waitFor(t *testing.T, ch <-chan game.Snapshot, pred func(game.Snapshot) bool) game.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed")
			}
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestSelectPublishesSnapshot(t *testing.T) {
	s := New(Options{NewRand: starsRand(5)})
	defer s.Close()

	ch, unsub := s.Subscribe()
	defer unsub()

	snap, changed := s.Select(2)
	if !changed {
		t.Fatal("Select(2) reported no change")
	}
	if len(snap.Candidates) != 1 || snap.Candidates[0] != 2 {
		t.Fatalf("Candidates = %v, want [2]", snap.Candidates)
	}
	got := <-ch
	if got.Numbers[1].Status != game.StatusCandidate {
		t.Fatalf("published status(2) = %s", got.Numbers[1].Status)
	}

	// Used and out-of-range numbers publish nothing.
	if _, changed := s.Select(0); changed {
		t.Fatal("Select(0) reported a change")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected snapshot %+v", extra)
	default:
	}
}

func TestCountdownEndsInLoss(t *testing.T) {
	var mu sync.Mutex
	var results []Result
	s := New(Options{
		NewRand:    starsRand(9),
		TickPeriod: time.Millisecond,
		OnFinish: func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	})
	defer s.Close()

	ch, unsub := s.Subscribe()
	defer unsub()
	s.Start(context.Background())

	lost := waitFor(t, ch, func(sn game.Snapshot) bool { return sn.State == game.StateLost })
	if lost.SecondsLeft != 0 {
		t.Fatalf("SecondsLeft = %d, want 0", lost.SecondsLeft)
	}

	// The timer is stopped: nothing changes afterwards.
	time.Sleep(20 * time.Millisecond)
	if got := s.Snapshot(); got.SecondsLeft != 0 || got.State != game.StateLost {
		t.Fatalf("snapshot after loss = %+v", got)
	}
	if _, changed := s.Select(1); changed {
		t.Fatal("selection applied after loss")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("OnFinish called %d times, want 1", len(results))
	}
	if results[0].State != game.StateLost || results[0].Mode != ModeClassic {
		t.Fatalf("result = %+v", results[0])
	}
}

func TestWinStopsTimerAndReportsOnce(t *testing.T) {
	done := make(chan Result, 4)
	s := New(Options{
		NewRand:    starsRand(9),
		TickPeriod: time.Hour,
		OnFinish:   func(r Result) { done <- r },
	})
	defer s.Close()
	s.Start(context.Background())

	for i := 0; i < 50 && !s.Finished(); i++ {
		snap := s.Snapshot()
		if !clearOne(s, snap) {
			t.Fatalf("no move found for %+v", snap)
		}
	}
	if got := s.Snapshot(); got.State != game.StateWon {
		t.Fatalf("State = %s, want won", got.State)
	}

	select {
	case r := <-done:
		if r.State != game.StateWon || r.NumbersUsed != 9 {
			t.Fatalf("result = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("OnFinish not called")
	}
	select {
	case r := <-done:
		t.Fatalf("OnFinish called twice: %+v", r)
	default:
	}
}

// clearOne selects a subset of available tiles summing to the target.
func clearOne(s *Session, snap game.Snapshot) bool {
	var avail []int
	for _, tile := range snap.Numbers {
		if tile.Status != game.StatusUsed {
			avail = append(avail, tile.Number)
		}
	}
	// Clear any pending selection first.
	for _, c := range snap.Candidates {
		s.Select(c)
	}
	var pick func(i, rest int, chosen []int) []int
	pick = func(i, rest int, chosen []int) []int {
		if rest == 0 {
			return chosen
		}
		if i == len(avail) || rest < 0 {
			return nil
		}
		if got := pick(i+1, rest-avail[i], append(chosen, avail[i])); got != nil {
			return got
		}
		return pick(i+1, rest, chosen)
	}
	subset := pick(0, snap.Stars, nil)
	if subset == nil {
		return false
	}
	for _, n := range subset {
		s.Select(n)
	}
	return true
}

func TestRestartReplacesRoundAndDropsStaleTicks(t *testing.T) {
	s := New(Options{NewRand: starsRand(4), TickPeriod: time.Hour})
	defer s.Close()
	s.Start(context.Background())

	old := s.Snapshot()
	s.Select(1)

	fresh, err := s.Restart()
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if fresh.RoundID == old.RoundID {
		t.Fatal("Restart kept the round ID")
	}
	if len(fresh.Candidates) != 0 || fresh.SecondsLeft != game.RoundSeconds {
		t.Fatalf("fresh round = %+v", fresh)
	}

	// A tick addressed to the replaced round must not touch the new one.
	if s.tick(old.RoundID) {
		t.Fatal("stale tick kept its timer alive")
	}
	if got := s.Snapshot(); got.SecondsLeft != game.RoundSeconds {
		t.Fatalf("stale tick applied: SecondsLeft = %d", got.SecondsLeft)
	}

	if !s.tick(fresh.RoundID) {
		t.Fatal("tick for current round stopped the timer")
	}
	if got := s.Snapshot(); got.SecondsLeft != game.RoundSeconds-1 {
		t.Fatalf("SecondsLeft = %d, want %d", got.SecondsLeft, game.RoundSeconds-1)
	}
}

func TestDailySessionNotRestartable(t *testing.T) {
	s := New(Options{Mode: ModeDaily, NewRand: starsRand(3)})
	defer s.Close()
	if _, err := s.Restart(); !errors.Is(err, ErrNotRestartable) {
		t.Fatalf("Restart err = %v, want ErrNotRestartable", err)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := New(Options{TickPeriod: time.Millisecond})
	ch, _ := s.Subscribe()
	s.Start(context.Background())
	s.Close()

	for range ch {
		// drain until closed
	}
	if _, err := s.Restart(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Restart after Close err = %v, want ErrClosed", err)
	}
	before := s.Snapshot()
	time.Sleep(10 * time.Millisecond)
	if after := s.Snapshot(); after.SecondsLeft != before.SecondsLeft {
		t.Fatalf("timer ran after Close: %d -> %d", before.SecondsLeft, after.SecondsLeft)
	}
}

func TestOnStartCalledPerRound(t *testing.T) {
	var rounds []string
	s := New(Options{
		TickPeriod: time.Hour,
		OnStart:    func(_ *Session, snap game.Snapshot) { rounds = append(rounds, snap.RoundID) },
	})
	defer s.Close()
	s.Start(context.Background())
	s.Start(context.Background())
	if _, err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if len(rounds) != 2 || rounds[0] == rounds[1] {
		t.Fatalf("OnStart rounds = %v", rounds)
	}
}

func TestOnStartRunsBeforeFirstTick(t *testing.T) {
	var during game.Snapshot
	s := New(Options{
		TickPeriod: time.Millisecond,
		OnStart: func(s *Session, _ game.Snapshot) {
			time.Sleep(20 * time.Millisecond)
			during = s.Snapshot()
		},
	})
	defer s.Close()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	s.Start(context.Background())
	if during.SecondsLeft != game.RoundSeconds {
		t.Fatalf("countdown ran during OnStart: SecondsLeft = %d", during.SecondsLeft)
	}
	waitFor(t, ch, func(snap game.Snapshot) bool { return snap.SecondsLeft < game.RoundSeconds })
}

func TestRestartFinishReportedAfterStartHook(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	inHook := make(chan string, 1)
	starts := 0
	s := New(Options{
		TickPeriod: time.Hour,
		OnStart: func(_ *Session, snap game.Snapshot) {
			starts++
			if starts == 2 {
				inHook <- snap.RoundID
				time.Sleep(30 * time.Millisecond)
			}
			record("start " + snap.RoundID)
		},
		OnFinish: func(res Result) { record("finish " + res.RoundID) },
	})
	defer s.Close()
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.Restart(); err != nil {
			t.Errorf("Restart: %v", err)
		}
	}()

	// Run the new round out while its start hook is still in progress.
	id := <-inHook
	for i := 0; i < game.RoundSeconds; i++ {
		s.tick(id)
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 || events[1] != "start "+id || events[2] != "finish "+id {
		t.Fatalf("events = %v", events)
	}
}

func TestFinishedAt(t *testing.T) {
	s := New(Options{TickPeriod: time.Hour})
	defer s.Close()
	s.Start(context.Background())
	if _, ok := s.FinishedAt(); ok {
		t.Fatal("active round reported a finish time")
	}
	id := s.Snapshot().RoundID
	for i := 0; i < game.RoundSeconds; i++ {
		s.tick(id)
	}
	at, ok := s.FinishedAt()
	if !ok || at.IsZero() || time.Since(at) > time.Minute {
		t.Fatalf("FinishedAt = %v, %v", at, ok)
	}
	if _, err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if _, ok := s.FinishedAt(); ok {
		t.Fatal("restarted round kept the old finish time")
	}
}
