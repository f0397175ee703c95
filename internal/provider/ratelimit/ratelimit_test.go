package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata/internal/provider"
)

type countingProvider struct {
	calls  int
	quotes []provider.Quote
	err    error
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Fetch(_ context.Context, _ []string) ([]provider.Quote, error) {
	c.calls++
	return c.quotes, c.err
}

func TestCooldown_ShortCircuitsToCachedResult(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &countingProvider{quotes: []provider.Quote{{Symbol: "BTC", Price: 65000}}}
	cd := &Cooldown{P: p, Interval: 30 * time.Second, Now: func() time.Time { return now }}

	qs, err := cd.Fetch(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, 1, p.calls)

	// Inside the window: served from the cached result, no network call.
	now = now.Add(10 * time.Second)
	qs, err = cd.Fetch(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, 1, p.calls)

	// Window elapsed: real call again.
	now = now.Add(30 * time.Second)
	_, err = cd.Fetch(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Equal(t, 2, p.calls)
}

func TestCooldown_NoCachedResultFailsFast(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &countingProvider{err: errors.New("boom")}
	cd := &Cooldown{P: p, Interval: time.Minute, Now: func() time.Time { return now }}

	_, err := cd.Fetch(t.Context(), nil)
	require.Error(t, err)
	require.Equal(t, 1, p.calls)

	// Failed call still started the window; with nothing cached the
	// wrapper reports the cooldown instead of retrying the network.
	now = now.Add(time.Second)
	_, err = cd.Fetch(t.Context(), nil)
	require.ErrorIs(t, err, ErrCooldown)
	require.Equal(t, 1, p.calls)
}

func TestCooldown_UpdatesLastAttemptOncePerRealCall(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &countingProvider{quotes: []provider.Quote{{Symbol: "ETH", Price: 3650}}}
	cd := &Cooldown{P: p, Interval: time.Minute, Now: func() time.Time { return now }}

	_, err := cd.Fetch(t.Context(), nil)
	require.NoError(t, err)
	first := cd.LastAttempt()
	require.Equal(t, now, first)

	now = now.Add(5 * time.Second)
	_, err = cd.Fetch(t.Context(), nil)
	require.NoError(t, err)
	require.Equal(t, first, cd.LastAttempt(), "short-circuit must not bump the attempt timestamp")
}

func TestTokenBucket_AllowExhaustsBurst(t *testing.T) {
	tb := NewTokenBucket(0.0001, 2)
	require.True(t, tb.Allow())
	require.True(t, tb.Allow())
	require.False(t, tb.Allow())
}

func TestTokenBucketProvider_FailsFastWhenExhausted(t *testing.T) {
	p := &countingProvider{quotes: []provider.Quote{{Symbol: "BTC", Price: 1}}}
	tbp := &TokenBucketProvider{P: p, TB: NewTokenBucket(0.0001, 1)}

	_, err := tbp.Fetch(t.Context(), nil)
	require.NoError(t, err)
	_, err = tbp.Fetch(t.Context(), nil)
	require.ErrorIs(t, err, ErrBudgetExhausted)
	require.Equal(t, 1, p.calls)
}
