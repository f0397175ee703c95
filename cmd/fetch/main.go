package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"marketdata/internal/config"
	"marketdata/internal/fallback"
	"marketdata/internal/history"
	"marketdata/internal/httpx"
	"marketdata/internal/logging"
	"marketdata/internal/provider"
	"marketdata/internal/provider/binance"
	"marketdata/internal/provider/coingecko"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/provider/reference"
)

// fetch runs one acquisition round through the fallback chain and prints
// the quotes as JSON. With -timeframe it also synthesizes a history
// series for each fetched symbol.
func main() {
	var symbolsCSV string
	var timeframe string
	var timeout int
	var configPath string

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "BTC,ETH"), "comma-separated ticker symbols")
	flag.StringVar(&timeframe, "timeframe", getenv("TIMEFRAME", ""), "optional history timeframe (1h, 24h, 7d, 30d, 1y)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout != 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal("no symbols provided")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	bySource := map[string]provider.Provider{}
	if cfg.CoinGecko.Enabled {
		opts := []coingecko.ClientOption{coingecko.WithHTTPClient(httpClient.HTTP)}
		if cfg.CoinGecko.Endpoint != "" {
			opts = append(opts, coingecko.WithBaseURL(cfg.CoinGecko.Endpoint))
		}
		client, err := coingecko.NewClient(cfg.CoinGecko.APIKey, opts...)
		if err != nil {
			log.Fatalf("coingecko client: %v", err)
		}
		var p provider.Provider = coingecko.New(coingecko.Config{
			Currency: cfg.CoinGecko.Currency,
			IDMap:    cfg.CoinGecko.IDMap,
		}, client)
		if cfg.CoinGecko.CooldownSec > 0 {
			p = &ratelimit.Cooldown{P: p, Interval: time.Duration(cfg.CoinGecko.CooldownSec) * time.Second}
		}
		bySource["coingecko"] = p
	}
	if cfg.Binance.Enabled {
		var p provider.Provider = binance.New(binance.Config{
			URL:        cfg.Binance.Endpoint,
			QuoteAsset: cfg.Binance.QuoteAsset,
		}, httpClient)
		if cfg.Binance.CooldownSec > 0 {
			p = &ratelimit.Cooldown{P: p, Interval: time.Duration(cfg.Binance.CooldownSec) * time.Second}
		}
		bySource["binance"] = p
	}

	var providers []provider.Provider
	for _, name := range cfg.Refresh.Priority {
		if p, ok := bySource[strings.ToLower(name)]; ok {
			providers = append(providers, p)
		}
	}

	chain := fallback.New(providers,
		fallback.WithTimeout(time.Duration(cfg.Refresh.AttemptTimeoutSec)*time.Second),
		fallback.WithLogger(logger),
		fallback.WithReference(&reference.Provider{}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	quotes, source, err := chain.FetchQuotes(ctx, symbols)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	log.Printf("%s: %d quotes", source, len(quotes))

	out := struct {
		Source  string           `json:"source"`
		Quotes  []provider.Quote `json:"quotes"`
		History []history.Series `json:"history,omitempty"`
	}{Source: source, Quotes: quotes}

	if timeframe != "" {
		tf, err := history.Parse(timeframe)
		if err != nil {
			log.Fatalf("timeframe: %v", err)
		}
		synth := history.NewSynthesizer()
		for _, q := range quotes {
			series, err := synth.Synthesize(q, tf)
			if err != nil {
				log.Printf("synthesize %s: %v", q.Symbol, err)
				continue
			}
			out.History = append(out.History, series)
		}
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x != 0 {
			return x
		}
	}
	return def
}
