package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, 0.6, time.Minute)
	box := facematch.Box{10, 10, 110, 110}

	a, err := r.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Get(2)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct caches per session")
	}

	a.Insert(box, "s1", "Alice", 0.9, t0)
	if _, ok, _ := b.Lookup(box, t0); ok {
		t.Error("session 2 must not see session 1 entries")
	}
	if ok, _ := b.Insert(box, "s2", "Bob", 0.9, t0); !ok {
		t.Error("identical box in another session must not collide")
	}

	again, _ := r.Get(1)
	if again != a {
		t.Error("expected Get to return the same cache for a session")
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 caches, got %d", r.Len())
	}
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, 0.6, time.Minute)
	c, _ := r.Get(7)
	c.Insert(facematch.Box{0, 0, 10, 10}, "s1", "Alice", 0.9, t0)

	r.Close(7, t0)

	if _, err := r.Get(7); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed for closed session, got %v", err)
	}
	// A goroutine still holding the old cache cannot mutate it.
	if _, err := c.Insert(facematch.Box{50, 50, 60, 60}, "s2", "Bob", 0.9, t0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on held cache, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected no open caches, got %d", r.Len())
	}
}

func TestRegistry_CloseUnknownSession(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, 0.6, time.Minute)
	r.Close(99, t0)
	if _, err := r.Get(99); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, 0.6, time.Minute)

	idle, _ := r.Get(1)
	idle.Prune(t0)
	busy, _ := r.Get(2)
	busy.Prune(t0.Add(50 * time.Second))
	r.Close(3, t0)

	if n := r.Sweep(t0.Add(90 * time.Second)); n != 1 {
		t.Errorf("expected 1 idle cache dropped, got %d", n)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 cache left, got %d", r.Len())
	}
	// Close markers expire too, so an old session id can be reused.
	if _, err := r.Get(3); err != nil {
		t.Errorf("expected close marker to be swept, got %v", err)
	}
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, 0.6, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
