// Package fallback tries price sources in priority order and guarantees
// a non-empty, validated result by ending the chain with a static
// reference dataset.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"marketdata/internal/metrics"
	"marketdata/internal/provider"
)

var (
	// ErrSourceUnavailable wraps a single source failure. It is recovered
	// internally by advancing the chain and only shows up in logs.
	ErrSourceUnavailable = errors.New("fallback: source unavailable")
	// ErrAllSourcesExhausted is returned only when no reference dataset
	// is configured and every live source failed.
	ErrAllSourcesExhausted = errors.New("fallback: all sources exhausted")
)

// Client tries providers in the order given until one returns a valid,
// non-empty result.
type Client struct {
	providers []provider.Provider
	reference provider.Provider
	timeout   time.Duration
	log       *zap.Logger
	validate  *validator.Validate
}

type Option func(*Client)

// WithTimeout bounds each provider attempt so a hung source cannot
// stall the chain.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithReference sets the terminal dataset served when every live source
// fails. Without it the chain can return ErrAllSourcesExhausted.
func WithReference(p provider.Provider) Option {
	return func(c *Client) { c.reference = p }
}

func New(providers []provider.Provider, opts ...Option) *Client {
	c := &Client{
		providers: providers,
		timeout:   10 * time.Second,
		log:       zap.NewNop(),
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchQuotes returns the first successful normalized result and the id
// of the source that produced it. A source that errors, returns nothing,
// or returns any quote failing validation is marked failed for this
// round and the chain advances.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]provider.Quote, string, error) {
	for _, p := range c.providers {
		metrics.FetchAttempts.WithLabelValues(p.Name()).Inc()

		quotes, err := c.fetchOne(ctx, p, symbols)
		if err != nil {
			metrics.FetchFailures.WithLabelValues(p.Name()).Inc()
			c.log.Warn("source failed, advancing chain",
				zap.String("source", p.Name()),
				zap.Error(err))
			continue
		}
		return quotes, p.Name(), nil
	}

	if c.reference == nil {
		return nil, "", ErrAllSourcesExhausted
	}
	metrics.FallbackExhausted.Inc()
	c.log.Warn("all live sources exhausted, serving reference dataset",
		zap.Int("sources", len(c.providers)))
	quotes, err := c.reference.Fetch(ctx, symbols)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reference dataset: %v", ErrAllSourcesExhausted, err)
	}
	return quotes, c.reference.Name(), nil
}

func (c *Client) fetchOne(ctx context.Context, p provider.Provider, symbols []string) ([]provider.Quote, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	quotes, err := p.Fetch(attemptCtx, symbols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrSourceUnavailable)
	}
	for _, q := range quotes {
		if !q.Valid() {
			return nil, fmt.Errorf("%w: invalid price %v for %s", ErrSourceUnavailable, q.Price, q.Symbol)
		}
		if err := c.validate.Struct(q); err != nil {
			return nil, fmt.Errorf("%w: quote %s: %v", ErrSourceUnavailable, q.Symbol, err)
		}
	}
	return quotes, nil
}
