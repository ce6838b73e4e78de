package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBybitWSURL   = "wss://stream.bybit.com/v5/public/spot"
	DefaultBybitRESTURL = "https://api.bybit.com"
	bybitPingEvery      = 20 * time.Second
)

var bybitPing = []byte(`{"op":"ping"}`)

type bybitMessage struct {
	Success *bool        `json:"success"`
	Op      string       `json:"op"`
	Topic   string       `json:"topic"`
	Data    []bybitKline `json:"data"`
}

type bybitKline struct {
	Start  int64  `json:"start"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

type bybitSubscribe struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func bybitTopic(symbol string) string {
	return "kline.1." + strings.ToUpper(symbol)
}

// ParseBybit decodes a v5 spot frame. Subscription acks and pong replies are ignored.
func ParseBybit(raw []byte) (Update, bool, error) {
	var msg bybitMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Update{}, false, fmt.Errorf("decode bybit message: %w", err)
	}
	if msg.Success != nil || msg.Op != "" {
		return Update{}, false, nil
	}
	if !strings.HasPrefix(msg.Topic, "kline.") {
		return Update{}, false, nil
	}
	if len(msg.Data) == 0 {
		return Update{}, false, fmt.Errorf("bybit %s: empty data", msg.Topic)
	}
	k := msg.Data[len(msg.Data)-1]
	c, err := parseOHLCV(k.Start, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return Update{}, false, fmt.Errorf("bybit kline: %w", err)
	}
	return Update{Kline: &c}, true, nil
}

// NewBybit returns a factory for Bybit v5 spot kline streams.
func NewBybit(wsURL string, log zerolog.Logger) Factory {
	if wsURL == "" {
		wsURL = DefaultBybitWSURL
	}
	return func(symbol string) (Adapter, error) {
		return newWSAdapter(wsProtocol{
			name: ProviderBybit,
			url:  func(string) string { return wsURL },
			subscribe: func(sym string) []byte {
				b, _ := json.Marshal(bybitSubscribe{Op: "subscribe", Args: []string{bybitTopic(sym)}})
				return b
			},
			appPing:   bybitPing,
			pingEvery: bybitPingEvery,
			parse:     ParseBybit,
		}, log), nil
	}
}
