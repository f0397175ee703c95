// Package history synthesizes bounded price/volume series for display
// timeframes when upstream providers supply no usable history. Series
// are generated wholesale from the current quote; they are explicitly
// marked synthetic so downstream consumers can label them.
package history

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"marketdata/internal/metrics"
	"marketdata/internal/provider"
)

var (
	// ErrInvalidQuote is returned when synthesis is asked to build a
	// series from a quote with a non-positive price. No series is
	// produced; any prior series stays in place.
	ErrInvalidQuote = errors.New("history: quote price must be positive")

	ErrUnknownTimeframe = errors.New("history: unknown timeframe")
)

// Point is one sample of a synthesized series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	MarketCap float64   `json:"market_cap"`
}

// Series is an ordered sequence of points for one symbol and timeframe.
// Timestamps increase by exactly the timeframe's interval and the final
// point's price equals the source quote's price.
type Series struct {
	Symbol      string    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	Points      []Point   `json:"points"`
	Synthetic   bool      `json:"synthetic"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Synthesizer generates series from current quotes. The clock and RNG
// are injected so tests can pin both.
type Synthesizer struct {
	frames map[Timeframe]FrameConfig
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type SynthesizerOption func(*Synthesizer)

func WithClock(now func() time.Time) SynthesizerOption {
	return func(s *Synthesizer) { s.now = now }
}

func WithRand(rng *rand.Rand) SynthesizerOption {
	return func(s *Synthesizer) { s.rng = rng }
}

// WithFrameConfig overrides the configuration of one timeframe.
func WithFrameConfig(tf Timeframe, cfg FrameConfig) SynthesizerOption {
	return func(s *Synthesizer) { s.frames[tf] = cfg }
}

func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		frames: make(map[Timeframe]FrameConfig, len(defaultFrames)),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for tf, cfg := range defaultFrames {
		s.frames[tf] = cfg
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize builds a series ending exactly at the quote's current
// price. Prices follow a linear interpolation from a randomized start
// price to the current price, with a bounded per-step perturbation.
// Repeated calls for the same quote produce different but statistically
// bounded series.
func (s *Synthesizer) Synthesize(q provider.Quote, tf Timeframe) (Series, error) {
	cfg, ok := s.frames[tf]
	if !ok {
		return Series{}, ErrUnknownTimeframe
	}
	if !q.Valid() {
		metrics.SynthesisRejected.Inc()
		return Series{}, ErrInvalidQuote
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Start price offset from the current price within the spread band.
	spread := cfg.SpreadMin + s.rng.Float64()*(cfg.SpreadMax-cfg.SpreadMin)
	if !cfg.SpreadBelow && s.rng.Intn(2) == 0 {
		spread = -spread
	}
	start := q.Price * (1 - spread)

	// Supply implied by the quote keeps per-point market cap consistent.
	supply := q.MarketCap / q.Price

	// Share of the 24h volume attributable to one interval.
	intervalVolume := q.Volume24h * cfg.Interval.Hours() / 24.0

	end := s.now().UTC()
	points := make([]Point, cfg.Points)
	for i := range points {
		progress := float64(i) / float64(cfg.Points-1)
		base := start + (q.Price-start)*progress
		price := base * (1 + (2*s.rng.Float64()-1)*cfg.MaxStep)
		if i == cfg.Points-1 {
			// Hard invariant: the series ends at the current price.
			price = q.Price
		}
		points[i] = Point{
			Timestamp: end.Add(-time.Duration(cfg.Points-1-i) * cfg.Interval),
			Price:     price,
			Volume:    intervalVolume * (0.5 + s.rng.Float64()),
			MarketCap: price * supply,
		}
	}

	metrics.SynthesisTotal.WithLabelValues(string(tf)).Inc()
	return Series{
		Symbol:      q.Symbol,
		Timeframe:   tf,
		Points:      points,
		Synthetic:   true,
		GeneratedAt: end,
	}, nil
}
