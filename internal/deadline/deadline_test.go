package deadline

import (
	"testing"
	"time"
)

// fakeClock advances only when told to, so boundary conditions can be pinned
// to the exact millisecond.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestExpiredBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	d := NewAt(5*time.Second, 60*time.Second, clock.now)

	if d.Expired() {
		t.Fatalf("expired immediately after creation")
	}

	// One millisecond before the cutoff (budget - margin = 55s).
	clock.advance(55*time.Second - time.Millisecond)
	if d.Expired() {
		t.Fatalf("expired 1ms before cutoff")
	}
	if got := d.Remaining(); got != time.Millisecond {
		t.Fatalf("remaining = %s, want 1ms", got)
	}

	// Exactly at the cutoff.
	clock.advance(time.Millisecond)
	if !d.Expired() {
		t.Fatalf("not expired at exact cutoff")
	}
	if got := d.Remaining(); got != 0 {
		t.Fatalf("remaining = %s at cutoff, want 0", got)
	}

	// Past the cutoff it stays expired and remaining stays floored.
	clock.advance(time.Hour)
	if !d.Expired() {
		t.Fatalf("un-expired after cutoff")
	}
	if got := d.Remaining(); got != 0 {
		t.Fatalf("remaining = %s past cutoff, want 0", got)
	}
}

func TestRemainingMonotonic(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	d := NewAt(time.Second, 10*time.Second, clock.now)

	prev := d.Remaining()
	for i := 0; i < 20; i++ {
		clock.advance(700 * time.Millisecond)
		cur := d.Remaining()
		if cur > prev {
			t.Fatalf("remaining increased: %s -> %s", prev, cur)
		}
		prev = cur
	}
}

func TestElapsed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	d := NewAt(time.Second, 10*time.Second, clock.now)

	clock.advance(3 * time.Second)
	if got := d.Elapsed(); got != 3*time.Second {
		t.Fatalf("elapsed = %s, want 3s", got)
	}
}

func TestDefaults(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	d := NewAt(0, 0, clock.now)

	// Default 60s budget with 5s margin: cutoff at 55s.
	clock.advance(54 * time.Second)
	if d.Expired() {
		t.Fatalf("default deadline expired at 54s")
	}
	clock.advance(time.Second)
	if !d.Expired() {
		t.Fatalf("default deadline not expired at 55s")
	}
}
