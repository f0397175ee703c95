package fallback

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata/internal/provider"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/provider/reference"
)

type fakeSource struct {
	name   string
	quotes []provider.Quote
	err    error
	calls  int
	block  bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, _ []string) ([]provider.Quote, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.quotes, f.err
}

func validQuote(symbol string, price float64) provider.Quote {
	return provider.Quote{Symbol: symbol, Name: symbol, Price: price, UpdatedAt: time.Now(), Source: "fake"}
}

func TestFetchQuotes_FirstSuccessWins(t *testing.T) {
	a := &fakeSource{name: "a", quotes: []provider.Quote{validQuote("BTC", 65000)}}
	b := &fakeSource{name: "b", quotes: []provider.Quote{validQuote("BTC", 64990)}}
	c := New([]provider.Provider{a, b})

	quotes, source, err := c.FetchQuotes(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Equal(t, "a", source)
	require.Equal(t, 65000.0, quotes[0].Price)
	require.Zero(t, b.calls)
}

func TestFetchQuotes_AdvancesPastFailures(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("dial tcp: refused")}
	b := &fakeSource{name: "b", quotes: []provider.Quote{validQuote("BTC", -1)}} // fails validation
	c3 := &fakeSource{name: "c", quotes: []provider.Quote{validQuote("BTC", 65000)}}
	c := New([]provider.Provider{a, b, c3})

	quotes, source, err := c.FetchQuotes(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Equal(t, "c", source)
	require.Len(t, quotes, 1)
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
}

func TestFetchQuotes_CooldownBumpedOncePerFailedSource(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	a := &fakeSource{name: "a", err: errors.New("boom")}
	b := &fakeSource{name: "b", err: errors.New("boom")}
	c3 := &fakeSource{name: "c", quotes: []provider.Quote{validQuote("BTC", 65000)}}
	cdA := &ratelimit.Cooldown{P: a, Interval: time.Minute, Now: clock}
	cdB := &ratelimit.Cooldown{P: b, Interval: time.Minute, Now: clock}
	c := New([]provider.Provider{cdA, cdB, c3})

	_, source, err := c.FetchQuotes(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Equal(t, "c", source)
	require.Equal(t, now, cdA.LastAttempt())
	require.Equal(t, now, cdB.LastAttempt())

	// Second round inside the window: the failed sources are skipped via
	// cooldown, not re-called, and their timestamps stay put.
	now = now.Add(time.Second)
	_, source, err = c.FetchQuotes(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Equal(t, "c", source)
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
}

func TestFetchQuotes_NaNPriceFailsSource(t *testing.T) {
	a := &fakeSource{name: "a", quotes: []provider.Quote{validQuote("BTC", math.NaN())}}
	b := &fakeSource{name: "b", quotes: []provider.Quote{validQuote("BTC", 65000)}}
	c := New([]provider.Provider{a, b})

	_, source, err := c.FetchQuotes(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Equal(t, "b", source)
}

func TestFetchQuotes_ReferenceWhenAllFail(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("boom")}
	b := &fakeSource{name: "b", err: errors.New("boom")}
	c := New([]provider.Provider{a, b}, WithReference(&reference.Provider{}))

	quotes, source, err := c.FetchQuotes(t.Context(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	require.Equal(t, reference.SourceID, source)
	require.Len(t, quotes, 2)
	for _, q := range quotes {
		require.Equal(t, reference.SourceID, q.Source)
		require.Positive(t, q.Price)
	}
}

func TestFetchQuotes_NoReferenceExhausts(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("boom")}
	c := New([]provider.Provider{a})

	_, _, err := c.FetchQuotes(t.Context(), []string{"BTC"})
	require.ErrorIs(t, err, ErrAllSourcesExhausted)
}

func TestFetchQuotes_HungSourceTimesOut(t *testing.T) {
	a := &fakeSource{name: "a", block: true}
	b := &fakeSource{name: "b", quotes: []provider.Quote{validQuote("BTC", 65000)}}
	c := New([]provider.Provider{a, b}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, source, err := c.FetchQuotes(t.Context(), []string{"BTC"})
	require.NoError(t, err)
	require.Equal(t, "b", source)
	require.Less(t, time.Since(start), 2*time.Second)
}
