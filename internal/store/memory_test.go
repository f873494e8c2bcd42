package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robalobadob/starmatch/internal/game"
	"github.com/robalobadob/starmatch/internal/session"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	s := session.New(session.Options{})
	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := st.Get(ctx, s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v; want saved session", got, err)
	}
	if st.Len() != 1 {
		t.Fatalf("Len = %d, want 1", st.Len())
	}

	if _, err := st.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(unknown) err = %v, want ErrNotFound", err)
	}

	ch, _ := s.Subscribe()
	if err := st.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("Delete did not close the session")
	}
	if st.Len() != 0 {
		t.Fatalf("Len = %d after Delete", st.Len())
	}
	if err := st.Delete(ctx, s.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestDeleteFinished(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	live := session.New(session.Options{TickPeriod: time.Hour})
	done := session.New(session.Options{TickPeriod: time.Millisecond})
	_ = st.Save(ctx, live)
	_ = st.Save(ctx, done)
	live.Start(ctx)

	ch, _ := done.Subscribe()
	done.Start(ctx)
	timeout := time.After(2 * time.Second)
	for finished := false; !finished; {
		select {
		case snap := <-ch:
			finished = snap.State == game.StateLost
		case <-timeout:
			t.Fatal("round never ran out")
		}
	}

	if n := st.DeleteFinished(ctx, time.Now().Add(-time.Hour)); n != 0 {
		t.Fatalf("DeleteFinished(recent cutoff) removed %d", n)
	}
	if n := st.DeleteFinished(ctx, time.Now().Add(time.Second)); n != 1 {
		t.Fatalf("DeleteFinished removed %d, want 1", n)
	}
	if _, err := st.Get(ctx, done.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finished session still stored: %v", err)
	}
	if _, err := st.Get(ctx, live.ID); err != nil {
		t.Fatalf("live session swept: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("swept session was not closed")
	}
	live.Close()
}
