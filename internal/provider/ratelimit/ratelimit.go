package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketdata/internal/provider"
)

// ErrCooldown is returned when a provider is inside its cooldown window
// and has no previous result to serve.
var ErrCooldown = errors.New("ratelimit: cooldown active")

// Cooldown wraps a provider and enforces a minimum time between real
// calls. A call made before the cooldown has elapsed short-circuits to
// the last successful result without touching the network; if there is
// no previous result it fails with ErrCooldown so a fallback chain can
// advance to the next source.
type Cooldown struct {
	P        provider.Provider
	Interval time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	last   time.Time
	cached []provider.Quote
}

func (c *Cooldown) Name() string { return c.P.Name() }

func (c *Cooldown) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if c.Interval > 0 {
		c.mu.Lock()
		if !c.last.IsZero() && now().Sub(c.last) < c.Interval {
			cached := c.cached
			c.mu.Unlock()
			if cached != nil {
				return cached, nil
			}
			return nil, ErrCooldown
		}
		c.mu.Unlock()
	}

	qs, err := c.P.Fetch(ctx, symbols)

	if c.Interval > 0 {
		c.mu.Lock()
		c.last = now()
		if err == nil && len(qs) > 0 {
			c.cached = qs
		}
		c.mu.Unlock()
	}
	return qs, err
}

// LastAttempt reports when the wrapped provider was last actually called.
func (c *Cooldown) LastAttempt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
