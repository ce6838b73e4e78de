package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	DefaultBinanceWSURL   = "wss://stream.binance.com:9443/ws"
	DefaultBinanceRESTURL = "https://api.binance.com"
	binancePingEvery      = 15 * time.Second
)

// binanceKlineEvent mirrors the kline stream payload. The upper-case siblings are
// declared so encoding/json's case-insensitive matching cannot fold "E", "T", "L"
// or "V" into the fields we read.
type binanceKlineEvent struct {
	Event     string       `json:"e"`
	EventTime int64        `json:"E"`
	Kline     binanceKline `json:"k"`
}

type binanceKline struct {
	Start       int64  `json:"t"`
	End         int64  `json:"T"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	LastTradeID int64  `json:"L"`
	Close       string `json:"c"`
	Volume      string `json:"v"`
	TakerVolume string `json:"V"`
}

// ParseBinance decodes a kline_1m frame. Non-kline events are ignored.
func ParseBinance(raw []byte) (Update, bool, error) {
	var msg binanceKlineEvent
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Update{}, false, fmt.Errorf("decode binance message: %w", err)
	}
	if msg.Event != "kline" {
		return Update{}, false, nil
	}
	k := msg.Kline
	c, err := parseOHLCV(k.Start, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return Update{}, false, fmt.Errorf("binance kline: %w", err)
	}
	return Update{Kline: &c}, true, nil
}

// NewBinance returns a factory for Binance kline streams rooted at wsURL.
func NewBinance(wsURL string, log zerolog.Logger) Factory {
	if wsURL == "" {
		wsURL = DefaultBinanceWSURL
	}
	wsURL = strings.TrimSuffix(wsURL, "/")
	return func(symbol string) (Adapter, error) {
		return newWSAdapter(wsProtocol{
			name: ProviderBinance,
			url: func(sym string) string {
				return fmt.Sprintf("%s/%s@kline_1m", wsURL, strings.ToLower(sym))
			},
			pingEvery: binancePingEvery,
			parse:     ParseBinance,
		}, log), nil
	}
}

func parseOHLCV(start int64, open, high, low, closePx, volume string) (signal.Candle, error) {
	fields := [5]string{open, high, low, closePx, volume}
	var vals [5]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return signal.Candle{}, fmt.Errorf("invalid number %q: %w", f, err)
		}
		vals[i] = v
	}
	if start <= 0 {
		return signal.Candle{}, fmt.Errorf("missing start time")
	}
	return signal.Candle{
		Time:   signal.Bucket(start),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
