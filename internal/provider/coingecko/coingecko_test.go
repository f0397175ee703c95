package coingecko_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketdata/internal/provider/coingecko"
)

func marketsResponse(t *testing.T, rows []map[string]any) *http.Response {
	t.Helper()
	buffer := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buffer).Encode(rows))
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(buffer)}
}

func TestAdapter_Fetch_NormalizesMarketRows(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "bitcoin,ethereum", req.URL.Query().Get("ids"))
			return marketsResponse(t, []map[string]any{
				{
					"id": "bitcoin", "symbol": "btc", "name": "Bitcoin",
					"current_price": 65000.0, "market_cap": 1.27e12, "market_cap_rank": 1,
					"total_volume": 2.4e10, "price_change_24h": 1200.5,
					"price_change_percentage_24h": 1.88,
					"last_updated":                "2025-06-01T12:00:00.000Z",
				},
				{
					"id": "ethereum", "symbol": "eth", "name": "Ethereum",
					"current_price": 3650.0, "market_cap": nil, "market_cap_rank": nil,
					"total_volume": nil, "price_change_24h": nil,
					"price_change_percentage_24h": nil,
					"last_updated":                "2025-06-01T12:00:00.000Z",
				},
			}), nil
		}).
		Times(1)

	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)
	adapter := coingecko.New(coingecko.Config{}, client)

	quotes, err := adapter.Fetch(t.Context(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	bySymbol := map[string]int{}
	for i, q := range quotes {
		bySymbol[q.Symbol] = i
	}
	btc := quotes[bySymbol["BTC"]]
	require.Equal(t, "Bitcoin", btc.Name)
	require.Equal(t, 65000.0, btc.Price)
	require.Equal(t, 1, btc.Rank)
	require.Equal(t, 2.4e10, btc.Volume24h)
	require.Equal(t, "CoinGecko", btc.Source)

	// Missing optional fields zero-fill.
	eth := quotes[bySymbol["ETH"]]
	require.Equal(t, 3650.0, eth.Price)
	require.Zero(t, eth.MarketCap)
	require.Zero(t, eth.Volume24h)
	require.Zero(t, eth.Rank)
}

func TestAdapter_Fetch_DerivesAbsoluteChange(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(_ *http.Request) (*http.Response, error) {
			return marketsResponse(t, []map[string]any{
				{
					"id": "solana", "symbol": "sol", "name": "Solana",
					"current_price":               110.0,
					"price_change_percentage_24h": 10.0,
					"last_updated":                "2025-06-01T12:00:00.000Z",
				},
			}), nil
		}).
		Times(1)

	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)
	adapter := coingecko.New(coingecko.Config{}, client)

	quotes, err := adapter.Fetch(t.Context(), []string{"SOL"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	// 110 now, +10% over 24h -> was 100, so +10 absolute.
	require.InDelta(t, 10.0, quotes[0].Change24h, 1e-9)
}

func TestAdapter_Fetch_UnknownSymbolsFail(t *testing.T) {
	t.Parallel()

	client, err := coingecko.NewClient("")
	require.NoError(t, err)
	adapter := coingecko.New(coingecko.Config{}, client)

	_, err = adapter.Fetch(t.Context(), []string{"NOPE"})
	require.Error(t, err)
}

func TestAdapter_Fetch_IDMapOverride(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "wrapped-bitcoin", req.URL.Query().Get("ids"))
			return marketsResponse(t, []map[string]any{
				{
					"id": "wrapped-bitcoin", "symbol": "wbtc", "name": "Wrapped Bitcoin",
					"current_price": 64990.0,
					"last_updated":  "2025-06-01T12:00:00.000Z",
				},
			}), nil
		}).
		Times(1)

	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)
	adapter := coingecko.New(coingecko.Config{IDMap: map[string]string{"WBTC": "wrapped-bitcoin"}}, client)

	quotes, err := adapter.Fetch(t.Context(), []string{"WBTC"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	require.Equal(t, "WBTC", quotes[0].Symbol)
}
