package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	DefaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	defaultPollInterval     = 3 * time.Second
)

// DefaultCoinGeckoIDs maps exchange symbols to CoinGecko coin ids.
func DefaultCoinGeckoIDs() map[string]string {
	return map[string]string{
		"btcusdt":  "bitcoin",
		"ethusdt":  "ethereum",
		"bnbusdt":  "binancecoin",
		"xrpusdt":  "ripple",
		"adausdt":  "cardano",
		"solusdt":  "solana",
		"dogeusdt": "dogecoin",
		"ltcusdt":  "litecoin",
		"avaxusdt": "avalanche-2",
		"suiusdt":  "sui",
		"linkusdt": "chainlink",
		"xlmusdt":  "stellar",
	}
}

// CoinGeckoOption configures the CoinGecko poller.
type CoinGeckoOption func(*coinGeckoConfig)

type coinGeckoConfig struct {
	baseURL      string
	pollInterval time.Duration
	ids          map[string]string
	client       *http.Client
	now          func() time.Time
}

// WithPollInterval overrides the default polling cadence.
func WithPollInterval(d time.Duration) CoinGeckoOption {
	return func(c *coinGeckoConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithCoinGeckoBaseURL points the poller at a different API root.
func WithCoinGeckoBaseURL(baseURL string) CoinGeckoOption {
	return func(c *coinGeckoConfig) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithCoinGeckoIDs merges extra symbol to coin id mappings over the defaults.
func WithCoinGeckoIDs(ids map[string]string) CoinGeckoOption {
	return func(c *coinGeckoConfig) {
		for sym, id := range ids {
			c.ids[strings.ToLower(sym)] = id
		}
	}
}

// NewCoinGecko returns a factory for the polling fallback. Symbols without a
// coin id mapping fail with ErrUnsupportedSymbol.
func NewCoinGecko(log zerolog.Logger, opts ...CoinGeckoOption) Factory {
	cfg := coinGeckoConfig{
		baseURL:      DefaultCoinGeckoBaseURL,
		pollInterval: defaultPollInterval,
		ids:          DefaultCoinGeckoIDs(),
		client:       &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(symbol string) (Adapter, error) {
		id, ok := cfg.ids[strings.ToLower(symbol)]
		if !ok || id == "" {
			return nil, fmt.Errorf("coingecko %s: %w", symbol, ErrUnsupportedSymbol)
		}
		return &coinGeckoAdapter{
			cfg:    cfg,
			coinID: id,
			log:    log.With().Str("provider", ProviderCoinGecko).Logger(),
		}, nil
	}
}

type coinGeckoAdapter struct {
	cfg    coinGeckoConfig
	coinID string
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (a *coinGeckoAdapter) Name() string { return ProviderCoinGecko }

func (a *coinGeckoAdapter) Start(symbol string, ev Events) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("coingecko: adapter closed")
	}
	if a.cancel != nil {
		return errors.New("coingecko: adapter already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.run(ctx, symbol, ev)
	return nil
}

func (a *coinGeckoAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

// run reports open immediately, polls once, then polls on every tick. A failed
// poll is logged and skipped; the poller never closes on its own.
func (a *coinGeckoAdapter) run(ctx context.Context, symbol string, ev Events) {
	ev.open()
	a.poll(ctx, symbol, ev)

	ticker := time.NewTicker(a.cfg.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.poll(ctx, symbol, ev)
		}
	}
}

func (a *coinGeckoAdapter) poll(ctx context.Context, symbol string, ev Events) {
	price, err := a.fetchPrice(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("coingecko poll failed")
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	ev.update(Update{Tick: &signal.Tick{Symbol: symbol, Price: price, Ts: a.cfg.now()}})
}

func (a *coinGeckoAdapter) fetchPrice(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("ids", a.coinID)
	q.Set("vs_currencies", "usd")
	endpoint := a.cfg.baseURL + "/simple/price?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.cfg.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	price := payload[a.coinID]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("no usd price for %s", a.coinID)
	}
	return price, nil
}
