// Package candle folds ticks and exchange klines into a bounded one-minute OHLCV series.
package candle

import (
	"math"
	"sort"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

// DefaultCapacity bounds the series when no capacity is configured.
const DefaultCapacity = 50

// Outcome describes what an input did to the series.
type Outcome int

const (
	Dropped Outcome = iota
	Merged
	Appended
)

func (o Outcome) String() string {
	switch o {
	case Merged:
		return "merge"
	case Appended:
		return "append"
	default:
		return "drop"
	}
}

// Series is an ascending, minute-aligned candle window. Only the last candle is
// ever mutated in place. Series is not safe for concurrent use; see Aggregator.
type Series struct {
	capacity int
	candles  []signal.Candle
}

// NewSeries returns an empty series holding at most capacity candles.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{capacity: capacity, candles: make([]signal.Candle, 0, capacity+1)}
}

// ApplyTick folds a single price observation into the bucket containing tsMillis.
func (s *Series) ApplyTick(price float64, tsMillis int64, size float64) Outcome {
	bucket := signal.Bucket(tsMillis)
	if n := len(s.candles); n > 0 {
		last := &s.candles[n-1]
		switch {
		case bucket == last.Time:
			last.Close = price
			last.High = math.Max(last.High, price)
			last.Low = math.Min(last.Low, price)
			last.Volume += size
			return Merged
		case bucket < last.Time:
			return Dropped
		}
	}
	s.push(signal.Candle{Time: bucket, Open: price, High: price, Low: price, Close: price, Volume: size})
	return Appended
}

// ApplyCandle folds a pre-formed kline. Volume is taken as reported since exchanges
// send the cumulative value for the open bar.
func (s *Series) ApplyCandle(c signal.Candle) Outcome {
	c.Time = signal.Bucket(c.Time)
	if n := len(s.candles); n > 0 {
		last := &s.candles[n-1]
		switch {
		case c.Time == last.Time:
			last.High = math.Max(last.High, c.High)
			last.Low = math.Min(last.Low, c.Low)
			last.Close = c.Close
			last.Volume = c.Volume
			return Merged
		case c.Time < last.Time:
			return Dropped
		}
	}
	s.push(c)
	return Appended
}

// Seed merges a history batch under the live candles. On a Time collision the
// candle already in the series wins.
func (s *Series) Seed(history []signal.Candle) {
	byTime := make(map[int64]signal.Candle, len(history)+len(s.candles))
	for _, c := range history {
		c.Time = signal.Bucket(c.Time)
		byTime[c.Time] = c
	}
	for _, c := range s.candles {
		byTime[c.Time] = c
	}
	merged := make([]signal.Candle, 0, len(byTime))
	for _, c := range byTime {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time < merged[j].Time })
	if len(merged) > s.capacity {
		merged = merged[len(merged)-s.capacity:]
	}
	s.candles = merged
}

func (s *Series) push(c signal.Candle) {
	s.candles = append(s.candles, c)
	if over := len(s.candles) - s.capacity; over > 0 {
		s.candles = append(s.candles[:0], s.candles[over:]...)
	}
}

// Snapshot returns a copy of the window.
func (s *Series) Snapshot() []signal.Candle {
	out := make([]signal.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Last returns the newest candle.
func (s *Series) Last() (signal.Candle, bool) {
	if len(s.candles) == 0 {
		return signal.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

func (s *Series) Len() int { return len(s.candles) }

func (s *Series) Capacity() int { return s.capacity }
