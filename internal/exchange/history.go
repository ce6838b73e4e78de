package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

// DefaultFetchTimeout bounds a single history request.
const DefaultFetchTimeout = 3 * time.Second

// HistoryFetcher loads recent closed and open 1m candles, oldest first.
type HistoryFetcher interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, limit int) ([]signal.Candle, error)
}

// BinanceHistory reads /api/v3/klines through the go-binance client.
type BinanceHistory struct {
	client  *binance.Client
	timeout time.Duration
}

// NewBinanceHistory builds a keyless client; baseURL overrides the REST root.
func NewBinanceHistory(baseURL string, timeout time.Duration) *BinanceHistory {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	client.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &BinanceHistory{client: client, timeout: timeout}
}

func (b *BinanceHistory) Name() string { return ProviderBinance }

func (b *BinanceHistory) FetchHistory(ctx context.Context, symbol string, limit int) ([]signal.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	klines, err := b.client.NewKlinesService().
		Symbol(strings.ToUpper(symbol)).
		Interval("1m").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}
	out := make([]signal.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := parseOHLCV(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// BybitHistory reads /v5/market/kline for spot.
type BybitHistory struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewBybitHistory(baseURL string, timeout time.Duration) *BybitHistory {
	if baseURL == "" {
		baseURL = DefaultBybitRESTURL
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &BybitHistory{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		timeout: timeout,
	}
}

func (b *BybitHistory) Name() string { return ProviderBybit }

type bybitKlineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List [][]string `json:"list"`
	} `json:"result"`
}

// FetchHistory returns the rows oldest first; Bybit serves them newest first.
func (b *BybitHistory) FetchHistory(ctx context.Context, symbol string, limit int) ([]signal.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", "1")
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v5/market/kline?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bybit klines %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit klines %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var payload bybitKlineResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("bybit klines %s: decode: %w", symbol, err)
	}
	if payload.RetCode != 0 {
		return nil, fmt.Errorf("bybit klines %s: %d %s", symbol, payload.RetCode, payload.RetMsg)
	}
	out := make([]signal.Candle, 0, len(payload.Result.List))
	for _, row := range payload.Result.List {
		if len(row) < 6 {
			return nil, fmt.Errorf("bybit klines %s: short row %v", symbol, row)
		}
		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit klines %s: start %q: %w", symbol, row[0], err)
		}
		c, err := parseOHLCV(start, row[1], row[2], row[3], row[4], row[5])
		if err != nil {
			return nil, fmt.Errorf("bybit klines %s: %w", symbol, err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// HistoryChain tries each source in order and returns the first success.
type HistoryChain struct {
	sources []HistoryFetcher
	log     zerolog.Logger
}

func NewHistoryChain(log zerolog.Logger, sources ...HistoryFetcher) *HistoryChain {
	return &HistoryChain{sources: sources, log: log}
}

func (h *HistoryChain) Name() string {
	names := make([]string, len(h.sources))
	for i, s := range h.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ">")
}

func (h *HistoryChain) FetchHistory(ctx context.Context, symbol string, limit int) ([]signal.Candle, error) {
	var errs []error
	for _, src := range h.sources {
		candles, err := src.FetchHistory(ctx, symbol, limit)
		if err == nil {
			return candles, nil
		}
		h.log.Debug().Err(err).Str("source", src.Name()).Str("symbol", symbol).Msg("history source failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("no history sources configured")
	}
	return nil, errors.Join(errs...)
}
