package provider

import (
	"context"
	"math"
	"time"
)

// Quote is the normalized market snapshot returned by all providers.
// Optional fields a provider does not supply (volume, market cap, rank)
// are zero.
type Quote struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Price        float64   `json:"price" validate:"gt=0"`
	Change24h    float64   `json:"change_24h"`
	ChangePct24h float64   `json:"change_pct_24h"`
	Volume24h    float64   `json:"volume_24h" validate:"gte=0"`
	MarketCap    float64   `json:"market_cap" validate:"gte=0"`
	Rank         int       `json:"rank"`
	UpdatedAt    time.Time `json:"updated_at"`
	Source       string    `json:"source"`
}

// Valid reports whether the quote is usable: price must be a positive
// finite number. Quotes failing this are never cached.
func (q Quote) Valid() bool {
	return q.Price > 0 && !math.IsNaN(q.Price) && !math.IsInf(q.Price, 0)
}

type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}
