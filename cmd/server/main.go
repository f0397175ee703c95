package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

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
	"marketdata/internal/scheduler"
	"marketdata/internal/service"
)

type quotesResponse struct {
	Quotes []provider.Quote `json:"quotes"`
}

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.CoinGecko.Enabled && cfg.CoinGecko.APIKey == "" {
		logger.Warn("coingecko.enabled=true but COINGECKO_API_KEY not set; using public tier")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	providers, err := buildProviders(cfg, httpClient, logger)
	if err != nil {
		logger.Fatal("providers", zap.Error(err))
	}
	if len(providers) == 0 {
		logger.Warn("no live sources enabled; serving reference data only")
	}

	chain := fallback.New(providers,
		fallback.WithTimeout(time.Duration(cfg.Refresh.AttemptTimeoutSec)*time.Second),
		fallback.WithLogger(logger),
		fallback.WithReference(&reference.Provider{}),
	)

	svc := service.New(chain,
		service.WithLogger(logger),
		service.WithUniverse(cfg.Refresh.Symbols, cfg.Refresh.TopN),
	)

	sched := scheduler.New(func(ctx context.Context) error {
		return svc.Refresh(ctx, nil)
	}, logger)
	sched.ForceRefreshNow()
	sched.Start(time.Duration(cfg.Refresh.IntervalSec) * time.Second)
	defer sched.Stop()

	staleAfter := time.Duration(cfg.Refresh.StaleAfterSec) * time.Second

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/quotes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleListQuotes(w, r, svc)
	})
	mux.HandleFunc("/api/quotes/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleGetQuote(w, r, svc, staleAfter)
	})
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleGetHistory(w, r, svc)
		case http.MethodPost:
			handleSubscribeHistory(w, r, svc)
		case http.MethodDelete:
			handleUnsubscribeHistory(w, r, svc)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sched.ForceRefreshNow()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshed"})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildProviders(cfg config.Config, httpClient *httpx.Client, logger *zap.Logger) ([]provider.Provider, error) {
	bySource := map[string]provider.Provider{}

	if cfg.CoinGecko.Enabled {
		opts := []coingecko.ClientOption{coingecko.WithHTTPClient(httpClient.HTTP)}
		if cfg.CoinGecko.Endpoint != "" {
			opts = append(opts, coingecko.WithBaseURL(cfg.CoinGecko.Endpoint))
		}
		client, err := coingecko.NewClient(cfg.CoinGecko.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		cg := coingecko.New(coingecko.Config{
			Currency: cfg.CoinGecko.Currency,
			IDMap:    cfg.CoinGecko.IDMap,
		}, client)
		bySource["coingecko"] = wrapRateLimits(cg,
			cfg.CoinGecko.CooldownSec, cfg.CoinGecko.MaxRequestsPerMinute, cfg.CoinGecko.Burst)
	}
	if cfg.Binance.Enabled {
		bn := binance.New(binance.Config{
			URL:        cfg.Binance.Endpoint,
			QuoteAsset: cfg.Binance.QuoteAsset,
		}, httpClient)
		bySource["binance"] = wrapRateLimits(bn,
			cfg.Binance.CooldownSec, cfg.Binance.MaxRequestsPerMinute, cfg.Binance.Burst)
	}

	var providers []provider.Provider
	for _, name := range cfg.Refresh.Priority {
		p, ok := bySource[strings.ToLower(name)]
		if !ok {
			logger.Warn("source in priority list not enabled", zap.String("source", name))
			continue
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// wrapRateLimits layers the per-source request budget, then the cooldown
// window, around a raw adapter. The cooldown goes outermost so a
// short-circuited fetch never spends a token.
func wrapRateLimits(p provider.Provider, cooldownSec, rpm, burst int) provider.Provider {
	if rpm > 0 {
		if burst <= 0 {
			burst = 1
		}
		p = &ratelimit.TokenBucketProvider{P: p, TB: ratelimit.NewTokenBucket(float64(rpm)/60.0, burst)}
	}
	if cooldownSec > 0 {
		p = &ratelimit.Cooldown{P: p, Interval: time.Duration(cooldownSec) * time.Second}
	}
	return p
}

func handleListQuotes(w http.ResponseWriter, r *http.Request, svc *service.Service) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	quotes := svc.ListQuotes(limit)
	writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
}

type quoteResponse struct {
	Quote provider.Quote `json:"quote"`
	Stale bool           `json:"stale"`
}

func handleGetQuote(w http.ResponseWriter, r *http.Request, svc *service.Service, staleAfter time.Duration) {
	symbol := strings.TrimPrefix(r.URL.Path, "/api/quotes/")
	if symbol == "" || strings.Contains(symbol, "/") {
		http.Error(w, "missing symbol", http.StatusBadRequest)
		return
	}
	q, ok := svc.GetQuote(symbol)
	if !ok {
		http.Error(w, "symbol not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Quote: q, Stale: svc.IsStale(symbol, staleAfter)})
}

func historyArgs(r *http.Request) (string, history.Timeframe, error) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		return "", "", errMissingSymbol
	}
	tf, err := history.Parse(r.URL.Query().Get("timeframe"))
	if err != nil {
		return "", "", err
	}
	return symbol, tf, nil
}

var errMissingSymbol = &badRequestError{"missing symbol query param"}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func handleGetHistory(w http.ResponseWriter, r *http.Request, svc *service.Service) {
	symbol, tf, err := historyArgs(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	series, ok := svc.GetHistory(symbol, tf)
	if !ok {
		http.Error(w, "no history for symbol/timeframe; subscribe first", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func handleSubscribeHistory(w http.ResponseWriter, r *http.Request, svc *service.Service) {
	symbol, tf, err := historyArgs(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := svc.SubscribeHistory(symbol, tf); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func handleUnsubscribeHistory(w http.ResponseWriter, r *http.Request, svc *service.Service) {
	symbol, tf, err := historyArgs(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	svc.UnsubscribeHistory(symbol, tf)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, &badRequestError{"not a number"}
		}
		n = n*10 + int(c-'0')
		if n > 1_000_000 {
			return 0, &badRequestError{"too large"}
		}
	}
	return n, nil
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
