// Package coingecko normalizes CoinGecko market data into the canonical
// quote shape.
package coingecko

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"marketdata/internal/provider"
)

// defaultIDs maps ticker symbols to CoinGecko coin ids for the symbols
// this service tracks out of the box. Config can extend or override it.
var defaultIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "polygon",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"ATOM":  "cosmos",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"XLM":   "stellar",
	"UNI":   "uniswap",
}

type Config struct {
	Name     string            // display name, default: CoinGecko
	Currency string            // e.g. usd
	IDMap    map[string]string // extra symbol -> coin id entries
}

// Adapter fetches quotes from CoinGecko. Concurrent fetches for the same
// id set are coalesced into a single upstream request.
type Adapter struct {
	cfg    Config
	client *Client
	sf     singleflight.Group
}

func New(cfg Config, client *Client) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "CoinGecko"
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	symbolByID := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		id := a.coinID(s)
		if id == "" {
			continue
		}
		if _, dup := symbolByID[id]; dup {
			continue
		}
		symbolByID[id] = strings.ToUpper(s)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("coingecko: no mappable symbols in %v", symbols)
	}
	sort.Strings(ids)

	key := strings.Join(ids, ",")
	v, err, _ := a.sf.Do(key, func() (any, error) {
		return a.client.Markets(ctx, ids, a.cfg.Currency)
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]marketRow)

	now := time.Now().UTC()
	out := make([]provider.Quote, 0, len(rows))
	for _, r := range rows {
		sym, ok := symbolByID[r.ID]
		if !ok {
			continue
		}
		name := r.Name
		if name == "" {
			name = displayName(r.ID)
		}
		ts := now
		if t, err := time.Parse(time.RFC3339, r.LastUpdated); err == nil {
			ts = t.UTC()
		}
		q := provider.Quote{
			Symbol:       sym,
			Name:         name,
			Price:        deref(r.CurrentPrice),
			Change24h:    deref(r.PriceChange24h),
			ChangePct24h: deref(r.PriceChangePct24h),
			Volume24h:    deref(r.TotalVolume),
			MarketCap:    deref(r.MarketCap),
			UpdatedAt:    ts,
			Source:       a.cfg.Name,
		}
		if r.MarketCapRank != nil {
			q.Rank = *r.MarketCapRank
		}
		// Some plan tiers omit the absolute change; derive it.
		if q.Change24h == 0 && q.ChangePct24h != 0 && q.Price > 0 {
			q.Change24h = q.Price - q.Price/(1+q.ChangePct24h/100)
		}
		out = append(out, q)
	}
	return out, nil
}

func (a *Adapter) coinID(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if id, ok := a.cfg.IDMap[s]; ok {
		return id
	}
	return defaultIDs[s]
}

// displayName turns a coin id like "avalanche-2" into "Avalanche 2".
func displayName(id string) string {
	parts := strings.Split(strings.ReplaceAll(id, "-", " "), " ")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
