package candle

import (
	"sync"

	"github.com/paralela17-sudo/tradepulse-bot/internal/metrics"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

// Listener receives series events. Either func may be nil.
type Listener struct {
	OnCandle  func(c signal.Candle)
	OnHistory func(candles []signal.Candle)
}

// Aggregator guards a Series and reports every accepted mutation exactly once.
// Listener funcs run after the lock is released.
type Aggregator struct {
	symbol string
	mu     sync.Mutex
	series *Series
	seeded bool
	lis    Listener
}

func NewAggregator(symbol string, capacity int, lis Listener) *Aggregator {
	return &Aggregator{symbol: symbol, series: NewSeries(capacity), lis: lis}
}

func (a *Aggregator) Symbol() string { return a.symbol }

// ApplyTick folds a tick; dropped ticks produce no event.
func (a *Aggregator) ApplyTick(t signal.Tick) Outcome {
	a.mu.Lock()
	out := a.series.ApplyTick(t.Price, t.Ts.UnixMilli(), t.Size)
	last, _ := a.series.Last()
	a.mu.Unlock()
	a.emit(out, last)
	return out
}

// ApplyCandle folds a kline; stale klines produce no event.
func (a *Aggregator) ApplyCandle(c signal.Candle) Outcome {
	a.mu.Lock()
	out := a.series.ApplyCandle(c)
	last, _ := a.series.Last()
	a.mu.Unlock()
	a.emit(out, last)
	return out
}

// Seed merges history and emits one history event with the resulting window.
func (a *Aggregator) Seed(history []signal.Candle) {
	a.mu.Lock()
	a.series.Seed(history)
	a.seeded = true
	snap := a.series.Snapshot()
	a.mu.Unlock()
	metrics.CandleEventsTotal.WithLabelValues(a.symbol, "seed").Inc()
	if a.lis.OnHistory != nil {
		a.lis.OnHistory(snap)
	}
}

// Seeded reports whether a history batch has been merged.
func (a *Aggregator) Seeded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seeded
}

func (a *Aggregator) Snapshot() []signal.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.series.Snapshot()
}

func (a *Aggregator) Last() (signal.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.series.Last()
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.series.Len()
}

func (a *Aggregator) emit(out Outcome, last signal.Candle) {
	if out == Dropped {
		return
	}
	metrics.CandleEventsTotal.WithLabelValues(a.symbol, out.String()).Inc()
	if a.lis.OnCandle != nil {
		a.lis.OnCandle(last)
	}
}
