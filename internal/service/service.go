// Package service composes the fallback chain, quote cache, history
// synthesizer and store behind the one interface the rest of the
// application consumes.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketdata/internal/history"
	"marketdata/internal/metrics"
	"marketdata/internal/provider"
	"marketdata/internal/provider/reference"
	"marketdata/internal/quotecache"
)

// Fetcher is the fallback chain contract the service depends on.
type Fetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]provider.Quote, string, error)
}

// UpdateFunc is invoked after each successful refresh round with the
// source that produced it and the quotes it returned. Consumers that
// prefer polling can ignore it.
type UpdateFunc func(source string, quotes []provider.Quote)

type Service struct {
	fetcher Fetcher
	cache   *quotecache.Cache
	synth   *history.Synthesizer
	store   *history.Store
	log     *zap.Logger

	universe []string
	topN     int

	mu       sync.Mutex
	subs     map[history.Key]struct{}
	onUpdate UpdateFunc
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithUniverse sets the tracked symbol set and how many of them a
// scheduled refresh covers.
func WithUniverse(symbols []string, topN int) Option {
	return func(s *Service) {
		s.universe = make([]string, 0, len(symbols))
		for _, sym := range symbols {
			s.universe = append(s.universe, strings.ToUpper(sym))
		}
		s.topN = topN
	}
}

func WithSynthesizer(synth *history.Synthesizer) Option {
	return func(s *Service) { s.synth = synth }
}

func WithCache(cache *quotecache.Cache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithOnUpdate(fn UpdateFunc) Option {
	return func(s *Service) { s.onUpdate = fn }
}

func New(fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:  fetcher,
		cache:    quotecache.New(),
		synth:    history.NewSynthesizer(),
		store:    history.NewStore(),
		log:      zap.NewNop(),
		universe: reference.Symbols(),
		topN:     10,
		subs:     make(map[history.Key]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetQuote returns the last known quote for the symbol, however old.
func (s *Service) GetQuote(symbol string) (provider.Quote, bool) {
	return s.cache.Get(symbol)
}

// ListQuotes returns cached quotes ordered by rank ascending, truncated
// to limit when limit > 0.
func (s *Service) ListQuotes(limit int) []provider.Quote {
	all := s.cache.GetAll()
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// IsStale reports whether the symbol's cached quote is older than
// maxAge. Advisory only.
func (s *Service) IsStale(symbol string, maxAge time.Duration) bool {
	return s.cache.IsStale(symbol, maxAge)
}

// GetHistory returns the maintained series for the pair, or absent if
// the pair has never been subscribed. It does not synthesize on demand;
// SubscribeHistory is what starts maintenance.
func (s *Service) GetHistory(symbol string, tf history.Timeframe) (history.Series, bool) {
	return s.store.Get(symbol, tf)
}

// SubscribeHistory marks a (symbol, timeframe) pair as actively
// maintained. If a quote is already cached the first series is
// synthesized immediately; otherwise it appears after the next refresh.
func (s *Service) SubscribeHistory(symbol string, tf history.Timeframe) error {
	if _, err := history.Parse(string(tf)); err != nil {
		return err
	}
	key := history.NewKey(symbol, tf)
	s.mu.Lock()
	s.subs[key] = struct{}{}
	s.mu.Unlock()

	if q, ok := s.cache.Get(symbol); ok {
		s.resynthesize(q, tf)
	}
	return nil
}

// UnsubscribeHistory stops maintaining the pair. The last generated
// series stays readable until the process ends; stale history beats a
// blank chart for the same reason stale quotes do.
func (s *Service) UnsubscribeHistory(symbol string, tf history.Timeframe) {
	key := history.NewKey(symbol, tf)
	s.mu.Lock()
	delete(s.subs, key)
	s.mu.Unlock()
}

// Refresh runs one acquisition round: fetch through the fallback chain,
// update the cache, regenerate every subscribed series whose symbol was
// covered. A nil symbols slice refreshes the interesting set: the top-N
// of the tracked universe plus all subscribed symbols.
func (s *Service) Refresh(ctx context.Context, symbols []string) error {
	start := time.Now()
	round := s.roundSymbols(symbols)

	quotes, source, err := s.fetcher.FetchQuotes(ctx, round)
	if err != nil {
		return err
	}

	for _, q := range quotes {
		if source == reference.SourceID {
			// The reference dataset seeds an empty cache but never
			// replaces previously fetched live data.
			if _, ok := s.cache.Get(q.Symbol); ok {
				continue
			}
		}
		s.cache.Put(q)
	}

	// Regenerate subscribed series only after this round's cache writes
	// for their symbols have landed.
	covered := make(map[string]struct{}, len(quotes))
	for _, q := range quotes {
		covered[strings.ToUpper(q.Symbol)] = struct{}{}
	}
	for _, key := range s.subscriptions() {
		if _, ok := covered[key.Symbol]; !ok {
			continue
		}
		q, ok := s.cache.Get(key.Symbol)
		if !ok {
			continue
		}
		s.resynthesize(q, key.Timeframe)
	}

	metrics.RefreshRounds.Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	s.log.Info("refresh round complete",
		zap.String("source", source),
		zap.Int("symbols", len(round)),
		zap.Int("quotes", len(quotes)),
		zap.Duration("took", time.Since(start)))

	if s.onUpdate != nil {
		s.onUpdate(source, quotes)
	}
	return nil
}

func (s *Service) resynthesize(q provider.Quote, tf history.Timeframe) {
	series, err := s.synth.Synthesize(q, tf)
	if err != nil {
		// Prior series, if any, stays in place untouched.
		s.log.Warn("history synthesis skipped",
			zap.String("symbol", q.Symbol),
			zap.String("timeframe", string(tf)),
			zap.Error(err))
		return
	}
	s.store.Put(series)
}

func (s *Service) roundSymbols(symbols []string) []string {
	if len(symbols) > 0 {
		out := make([]string, 0, len(symbols))
		for _, sym := range symbols {
			out = append(out, strings.ToUpper(sym))
		}
		return out
	}

	top := s.universe
	if s.topN > 0 && len(top) > s.topN {
		top = top[:s.topN]
	}
	seen := make(map[string]struct{}, len(top))
	out := make([]string, 0, len(top))
	for _, sym := range top {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	for _, key := range s.subscriptions() {
		if _, dup := seen[key.Symbol]; dup {
			continue
		}
		seen[key.Symbol] = struct{}{}
		out = append(out, key.Symbol)
	}
	return out
}

func (s *Service) subscriptions() []history.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Key, 0, len(s.subs))
	for key := range s.subs {
		out = append(out, key)
	}
	return out
}
