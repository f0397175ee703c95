package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, []string{"coingecko", "binance"}, cfg.Refresh.Priority)
	require.Equal(t, 10, cfg.Refresh.TopN)
	require.NotEmpty(t, cfg.Refresh.Symbols)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"server": {"port": "9090", "request_timeout_sec": 30},
		"coingecko": {"enabled": true, "api_key": "demo", "currency": "usd", "cooldown_sec": 60},
		"refresh": {"priority": ["binance"], "interval_sec": 60, "attempt_timeout_sec": 5, "top_n": 3, "symbols": ["BTC", "ETH"], "stale_after_sec": 120}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "demo", cfg.CoinGecko.APIKey)
	require.Equal(t, 60, cfg.CoinGecko.CooldownSec)
	require.Equal(t, []string{"binance"}, cfg.Refresh.Priority)
	require.Equal(t, []string{"BTC", "ETH"}, cfg.Refresh.Symbols)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("COINGECKO_API_KEY", "env-key")
	t.Setenv("SYMBOLS", "btc, eth ,sol")
	t.Setenv("TOP_N", "5")
	t.Setenv("SOURCE_PRIORITY", "binance,coingecko")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, "7000", cfg.Server.Port)
	require.Equal(t, "env-key", cfg.CoinGecko.APIKey)
	require.Equal(t, []string{"btc", "eth", "sol"}, cfg.Refresh.Symbols)
	require.Equal(t, 5, cfg.Refresh.TopN)
	require.Equal(t, []string{"binance", "coingecko"}, cfg.Refresh.Priority)
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"refresh": {"priority": ["coingecko"], "interval_sec": 0, "attempt_timeout_sec": 5, "top_n": 3, "symbols": ["BTC"]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validate config")
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
