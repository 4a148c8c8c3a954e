package realtime

import (
	"testing"
	"time"
)

func testPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: 3 * time.Second,
		MinDelay:     3 * time.Second,
		MaxDelay:     60 * time.Second,
		MaxAttempts:  5,
		JitterRange:  time.Second,
	}
}

// -----------------------------------------------------------------------------

func TestDelayGrowsExponentially(t *testing.T) {
	p := testPolicy()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 3 * time.Second},
		{1, 6 * time.Second},
		{2, 12 * time.Second},
		{3, 24 * time.Second},
		{4, 48 * time.Second},
		{5, 60 * time.Second}, // capped
		{10, 60 * time.Second},
	}

	for _, c := range cases {
		if got := p.Delay(c.attempt, 0); got != c.want {
			t.Errorf("Delay(%d, 0) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayBoundsWithJitter(t *testing.T) {
	p := testPolicy()

	for attempt := 0; attempt < 8; attempt++ {
		for i := 0; i < 20; i++ {
			d := p.NextDelay(attempt)
			if d < p.MinDelay || d > p.MaxDelay {
				t.Fatalf("NextDelay(%d) = %v, outside [%v, %v]", attempt, d, p.MinDelay, p.MaxDelay)
			}
		}
	}
}

func TestDelayFloorsAtMin(t *testing.T) {
	p := testPolicy()
	p.InitialDelay = time.Second

	if got := p.Delay(0, 0); got != p.MinDelay {
		t.Errorf("Delay below min = %v, want floored %v", got, p.MinDelay)
	}
}

func TestDelayOverflowCapsAtMax(t *testing.T) {
	p := testPolicy()

	if got := p.Delay(500, 0); got != p.MaxDelay {
		t.Errorf("overflowing shift should cap at max, got %v", got)
	}
}

func TestExhausted(t *testing.T) {
	p := testPolicy()

	if p.Exhausted(4) {
		t.Errorf("attempt 4 of 5 should not be exhausted")
	}
	if !p.Exhausted(5) {
		t.Errorf("attempt 5 of 5 should be exhausted")
	}
}

// -----------------------------------------------------------------------------

func TestCooldownGate(t *testing.T) {
	var g CooldownGate
	now := time.Now()

	if g.Active(now) {
		t.Fatalf("fresh gate should be inactive")
	}

	g.Trip(60*time.Second, now)
	if !g.Active(now) {
		t.Fatalf("tripped gate should be active")
	}
	if r := g.Remaining(now); r != 60*time.Second {
		t.Errorf("remaining = %v, want 60s", r)
	}
	if r := g.Remaining(now.Add(45 * time.Second)); r != 15*time.Second {
		t.Errorf("remaining after 45s = %v, want 15s", r)
	}
	if g.Active(now.Add(61 * time.Second)) {
		t.Errorf("gate should expire")
	}

	// A shorter trip never shortens an active window
	g.Trip(time.Second, now)
	if r := g.Remaining(now); r != 60*time.Second {
		t.Errorf("shorter trip shortened the window: %v", r)
	}

	g.Reset()
	if g.Active(now) {
		t.Errorf("reset gate should be inactive")
	}
}
