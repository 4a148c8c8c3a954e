package realtime

import (
	"math/rand"
	"sync"
	"time"

	"finboard/src/models"
)

// -----------------------------------------------------------------------------
// Reconnect Policy
// -----------------------------------------------------------------------------

// ReconnectPolicy is the pure backoff-delay calculator. The rate-limit
// cooldown gate below is checked separately before invoking it.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	JitterRange  time.Duration
}

// -----------------------------------------------------------------------------

func PolicyFromConfig(cfg models.MRealtimeConfig) ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: time.Duration(cfg.InitialReconnectDelaySecs) * time.Second,
		MinDelay:     time.Duration(cfg.MinReconnectDelaySecs) * time.Second,
		MaxDelay:     time.Duration(cfg.MaxReconnectDelaySecs) * time.Second,
		MaxAttempts:  cfg.MaxReconnectAttempts,
		JitterRange:  time.Second,
	}
}

// -----------------------------------------------------------------------------

// Delay computes initial*2^attempt + jitter, floored at MinDelay and capped
// at MaxDelay. Jitter must be in [0, JitterRange).
func (p ReconnectPolicy) Delay(attempt int, jitter time.Duration) time.Duration {
	d := p.InitialDelay << uint(attempt)
	if d <= 0 {
		// Shift overflow on absurd attempt counts
		d = p.MaxDelay
	}
	d += jitter

	if d < p.MinDelay {
		d = p.MinDelay
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// -----------------------------------------------------------------------------

// NextDelay is Delay with random jitter applied.
func (p ReconnectPolicy) NextDelay(attempt int) time.Duration {
	jitter := time.Duration(0)
	if p.JitterRange > 0 {
		jitter = time.Duration(rand.Int63n(int64(p.JitterRange)))
	}
	return p.Delay(attempt, jitter)
}

// -----------------------------------------------------------------------------

// Exhausted reports whether the attempt count has hit the terminal bound.
func (p ReconnectPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// -----------------------------------------------------------------------------
// Cooldown Gate
// -----------------------------------------------------------------------------

// CooldownGate tracks a provider's rate-limit cooldown expiry. While active,
// connect attempts are rejected and reconnect scheduling waits out the
// remaining cooldown instead of the exponential formula.
type CooldownGate struct {
	mu    sync.Mutex
	until time.Time
}

// -----------------------------------------------------------------------------

// Trip starts (or extends) the cooldown window.
func (g *CooldownGate) Trip(d time.Duration, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiry := now.Add(d)
	if expiry.After(g.until) {
		g.until = expiry
	}
}

// -----------------------------------------------------------------------------

// Remaining returns the time left on the cooldown, zero when inactive.
func (g *CooldownGate) Remaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Before(g.until) {
		return g.until.Sub(now)
	}
	return 0
}

// -----------------------------------------------------------------------------

// Active reports whether the cooldown is in effect.
func (g *CooldownGate) Active(now time.Time) bool {
	return g.Remaining(now) > 0
}

// -----------------------------------------------------------------------------

// Reset clears the cooldown (manual recovery path).
func (g *CooldownGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until = time.Time{}
}
