package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" validate:"gt=0"`
}

type CoinGecko struct {
	Enabled              bool              `json:"enabled"`
	Endpoint             string            `json:"endpoint"`
	APIKey               string            `json:"api_key"`
	Currency             string            `json:"currency"`
	IDMap                map[string]string `json:"id_map"`
	CooldownSec          int               `json:"cooldown_sec" validate:"gte=0"`
	MaxRequestsPerMinute int               `json:"max_requests_per_minute" validate:"gte=0"`
	Burst                int               `json:"burst"`
}

type Binance struct {
	Enabled              bool   `json:"enabled"`
	Endpoint             string `json:"endpoint"`
	QuoteAsset           string `json:"quote_asset"`
	CooldownSec          int    `json:"cooldown_sec" validate:"gte=0"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" validate:"gte=0"`
	Burst                int    `json:"burst"`
}

type Refresh struct {
	// Priority orders the fallback chain by source name.
	Priority          []string `json:"priority" validate:"min=1"`
	IntervalSec       int      `json:"interval_sec" validate:"gt=0"`
	AttemptTimeoutSec int      `json:"attempt_timeout_sec" validate:"gt=0"`
	TopN              int      `json:"top_n" validate:"gt=0"`
	Symbols           []string `json:"symbols" validate:"min=1"`
	StaleAfterSec     int      `json:"stale_after_sec" validate:"gte=0"`
}

type Config struct {
	Server    Server    `json:"server"`
	CoinGecko CoinGecko `json:"coingecko"`
	Binance   Binance   `json:"binance"`
	Refresh   Refresh   `json:"refresh"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15},
		CoinGecko: CoinGecko{
			Enabled:     true,
			Currency:    "usd",
			CooldownSec: 30,
		},
		Binance: Binance{
			Enabled:     true,
			QuoteAsset:  "USDT",
			CooldownSec: 10,
		},
		Refresh: Refresh{
			Priority:          []string{"coingecko", "binance"},
			IntervalSec:       300,
			AttemptTimeoutSec: 10,
			TopN:              10,
			Symbols:           []string{"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "DOGE", "DOT", "LINK", "LTC"},
			StaleAfterSec:     600,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does
// not exist, it returns defaults. Environment variables override select
// fields. The result is validated before being returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		setInt(&cfg.Server.RequestTimeoutSec, v)
	}

	if v := os.Getenv("COINGECKO_ENABLED"); v != "" {
		setBool(&cfg.CoinGecko.Enabled, v)
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.CoinGecko.APIKey = v
	}
	if v := os.Getenv("COINGECKO_ENDPOINT"); v != "" {
		cfg.CoinGecko.Endpoint = v
	}
	if v := os.Getenv("COINGECKO_CURRENCY"); v != "" {
		cfg.CoinGecko.Currency = v
	}
	if v := os.Getenv("COINGECKO_COOLDOWN_SEC"); v != "" {
		setInt(&cfg.CoinGecko.CooldownSec, v)
	}
	if v := os.Getenv("COINGECKO_MAX_RPM"); v != "" {
		setInt(&cfg.CoinGecko.MaxRequestsPerMinute, v)
	}
	if v := os.Getenv("COINGECKO_BURST"); v != "" {
		setInt(&cfg.CoinGecko.Burst, v)
	}

	if v := os.Getenv("BINANCE_ENABLED"); v != "" {
		setBool(&cfg.Binance.Enabled, v)
	}
	if v := os.Getenv("BINANCE_ENDPOINT"); v != "" {
		cfg.Binance.Endpoint = v
	}
	if v := os.Getenv("BINANCE_QUOTE_ASSET"); v != "" {
		cfg.Binance.QuoteAsset = v
	}
	if v := os.Getenv("BINANCE_COOLDOWN_SEC"); v != "" {
		setInt(&cfg.Binance.CooldownSec, v)
	}
	if v := os.Getenv("BINANCE_MAX_RPM"); v != "" {
		setInt(&cfg.Binance.MaxRequestsPerMinute, v)
	}
	if v := os.Getenv("BINANCE_BURST"); v != "" {
		setInt(&cfg.Binance.Burst, v)
	}

	if v := os.Getenv("SOURCE_PRIORITY"); v != "" {
		cfg.Refresh.Priority = splitCSV(v)
	}
	if v := os.Getenv("REFRESH_INTERVAL_SEC"); v != "" {
		setInt(&cfg.Refresh.IntervalSec, v)
	}
	if v := os.Getenv("ATTEMPT_TIMEOUT_SEC"); v != "" {
		setInt(&cfg.Refresh.AttemptTimeoutSec, v)
	}
	if v := os.Getenv("TOP_N"); v != "" {
		setInt(&cfg.Refresh.TopN, v)
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Refresh.Symbols = splitCSV(v)
	}
	if v := os.Getenv("STALE_AFTER_SEC"); v != "" {
		setInt(&cfg.Refresh.StaleAfterSec, v)
	}
}

func setInt(dst *int, v string) {
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err == nil {
		*dst = x
	}
}

func setBool(dst *bool, v string) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
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
