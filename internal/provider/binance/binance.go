// Package binance normalizes Binance 24hr ticker statistics into the
// canonical quote shape. Binance reports no market cap or rank, so those
// fields are zero.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

type Config struct {
	Name       string
	URL        string
	QuoteAsset string            // trading pair quote asset, default USDT
	SymbolMap  map[string]string // overrides symbol -> pair mapping
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Binance"
	}
	if cfg.URL == "" {
		cfg.URL = "https://api.binance.com/api/v3/ticker/24hr"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	symbolByPair := make(map[string]string, len(symbols))
	pairs := make([]string, 0, len(symbols))
	for _, s := range symbols {
		pair := p.pair(s)
		if _, dup := symbolByPair[pair]; dup {
			continue
		}
		symbolByPair[pair] = strings.ToUpper(s)
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("binance: no symbols requested")
	}

	// The symbols parameter is a JSON array, e.g. ["BTCUSDT","ETHUSDT"].
	enc, _ := json.Marshal(pairs)
	q := url.Values{}
	q.Set("symbols", string(enc))

	var rows []ticker
	if err := p.client.GetJSON(ctx, p.cfg.URL+"?"+q.Encode(), &rows); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]provider.Quote, 0, len(rows))
	for _, r := range rows {
		sym, ok := symbolByPair[r.Symbol]
		if !ok {
			continue
		}
		price := parseDecimal(r.LastPrice)
		out = append(out, provider.Quote{
			Symbol:       sym,
			Name:         displayNames[sym],
			Price:        price,
			Change24h:    parseDecimal(r.PriceChange),
			ChangePct24h: parseDecimal(r.PriceChangePercent),
			Volume24h:    parseDecimal(r.QuoteVolume),
			UpdatedAt:    tickerTime(r.CloseTime, now),
			Source:       p.cfg.Name,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("binance: no tickers for %v", pairs)
	}
	return out, nil
}

func (p *Provider) pair(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if v := p.cfg.SymbolMap[s]; v != "" {
		return v
	}
	return s + p.cfg.QuoteAsset
}

// ticker is one element of the /ticker/24hr response. Binance sends
// decimals as strings.
type ticker struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

var displayNames = map[string]string{
	"BTC":  "Bitcoin",
	"ETH":  "Ethereum",
	"BNB":  "Binance Coin",
	"SOL":  "Solana",
	"XRP":  "Ripple",
	"ADA":  "Cardano",
	"DOGE": "Dogecoin",
	"DOT":  "Polkadot",
	"LINK": "Chainlink",
	"LTC":  "Litecoin",
}

func parseDecimal(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func tickerTime(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}
