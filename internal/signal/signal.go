// Package signal standardizes payloads shared between data ingestion, indicator and prediction layers.
package signal

import "time"

// BucketMillis is the width of one candle bucket.
const BucketMillis int64 = 60_000

// Tick models a single price observation emitted by a polling or simulated source.
type Tick struct {
	Symbol string
	Price  float64
	Size   float64
	Side   int // +1 buy, -1 sell (aggressor), 0 unknown
	Ts     time.Time
}

// Candle is one OHLCV bar keyed by its minute-aligned open time in milliseconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Bucket floors a millisecond timestamp to the start of its minute.
func Bucket(ms int64) int64 {
	b := (ms / BucketMillis) * BucketMillis
	if ms < 0 && ms%BucketMillis != 0 {
		b -= BucketMillis
	}
	return b
}

// MACD groups the three MACD outputs for the latest bar.
type MACD struct {
	Line      float64 `json:"macd_line"`
	Signal    float64 `json:"signal_line"`
	Histogram float64 `json:"histogram"`
}

// Indicators is derived from a candle window and never persisted.
type Indicators struct {
	RSI  float64 `json:"rsi"`
	MACD MACD    `json:"macd"`
	SMA  float64 `json:"sma"`
}

// Type is the directional call of a prediction.
type Type string

const (
	Buy     Type = "BUY"
	Sell    Type = "SELL"
	Wait    Type = "WAIT"
	Neutral Type = "NEUTRAL"
)

// Prediction expresses a graded directional bias for one instrument.
type Prediction struct {
	Probability int       `json:"probability"`
	Signal      Type      `json:"signal"`
	Rationale   string    `json:"rationale"`
	Timestamp   time.Time `json:"timestamp"`
}

// Actionable reports whether the prediction calls for a trade rather than waiting.
func (p Prediction) Actionable() bool {
	return p.Signal == Buy || p.Signal == Sell
}
