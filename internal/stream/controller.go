// Package stream owns the per-symbol connection lifecycle: it walks an ordered
// provider list, fails over on timeout or disconnect, falls back to polling when
// the list is exhausted, and feeds everything through one candle aggregator.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/candle"
	"github.com/paralela17-sudo/tradepulse-bot/internal/exchange"
	"github.com/paralela17-sudo/tradepulse-bot/internal/metrics"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

// DefaultConnectTimeout bounds how long a provider may take to open.
const DefaultConnectTimeout = 7 * time.Second

// State is the controller's connection state.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Degraded
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Callbacks receive controller output. They are never invoked while the
// controller lock is held, so they may call back into the controller.
type Callbacks struct {
	OnCandle       func(c signal.Candle)
	OnHistory      func(candles []signal.Candle)
	OnStatusChange func(provider, message string)
	OnError        func(message string)
}

// Config wires providers and timing into a controller.
type Config struct {
	Providers      []exchange.Provider
	Fallback       *exchange.Provider
	ConnectTimeout time.Duration
	History        exchange.HistoryFetcher
	HistoryLimit   int
	Capacity       int
}

// Controller is the failover state machine for one symbol at a time. Connect
// and Disconnect are expected to be called from a single owner.
type Controller struct {
	cfg Config
	log zerolog.Logger

	mu          sync.Mutex
	state       State
	index       int
	gen         uint64 // bumped per provider attempt
	session     uint64 // bumped per Connect/Disconnect
	symbol      string
	cb          Callbacks
	agg         *candle.Aggregator
	adapter     exchange.Adapter
	provider    string
	status      string
	timer       *time.Timer
	intentional bool

	backfillInflight bool
	backfillCancel   context.CancelFunc
}

func New(cfg Config, log zerolog.Logger) *Controller {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = candle.DefaultCapacity
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = candle.DefaultCapacity
	}
	return &Controller{cfg: cfg, log: log.With().Str("component", "stream").Logger()}
}

// effects queues work that must run after the controller lock is released.
type effects []func()

func (e *effects) add(f func()) { *e = append(*e, f) }

func (e effects) run() {
	for _, f := range e {
		f()
	}
}

// Connect resets the controller and starts walking the provider list for symbol.
func (c *Controller) Connect(symbol string, cb Callbacks) {
	c.Disconnect()

	var fx effects
	c.mu.Lock()
	c.session++
	c.symbol = symbol
	c.cb = cb
	c.intentional = false
	c.backfillInflight = false
	c.agg = candle.NewAggregator(symbol, c.cfg.Capacity, candle.Listener{
		OnCandle:  cb.OnCandle,
		OnHistory: cb.OnHistory,
	})
	c.log.Info().Str("symbol", symbol).Msg("connecting market data")
	c.enterLocked(0, &fx)
	c.mu.Unlock()
	fx.run()
}

// Disconnect stops the timer, closes any live adapter and returns to Idle.
// Safe to call repeatedly.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.session++
	c.gen++
	c.stopTimerLocked()
	ad := c.adapter
	c.adapter = nil
	if c.backfillCancel != nil {
		c.backfillCancel()
		c.backfillCancel = nil
	}
	c.backfillInflight = false
	c.setStateLocked(Idle)
	c.provider = ""
	c.mu.Unlock()
	if ad != nil {
		c.closeAdapter(ad)
	}
}

func (c *Controller) closeAdapter(ad exchange.Adapter) {
	if err := ad.Close(); err != nil {
		c.log.Debug().Err(err).Str("provider", ad.Name()).Msg("adapter close")
	}
}

// enterLocked starts attempt i, or the fallback once i runs past the list.
func (c *Controller) enterLocked(i int, fx *effects) {
	c.stopTimerLocked()
	c.gen++
	if i >= len(c.cfg.Providers) {
		c.enterFallbackLocked(fx)
		return
	}
	p := c.cfg.Providers[i]
	c.index = i
	c.provider = p.Name
	c.setStateLocked(Connecting)
	c.notifyStatusLocked(fx, p.Name, fmt.Sprintf("Connecting to %s...", exchange.DisplayName(p.Name)))
	c.maybeBackfillLocked(fx)

	ad, err := p.New(c.symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("provider", p.Name).Str("symbol", c.symbol).Msg("provider unavailable, skipping")
		metrics.FailoversTotal.WithLabelValues(p.Name, "unsupported").Inc()
		c.enterLocked(i+1, fx)
		return
	}
	c.adapter = ad
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.ConnectTimeout, func() { c.handleTimeout(gen) })
	c.startLocked(fx, ad, gen)
}

func (c *Controller) enterFallbackLocked(fx *effects) {
	c.adapter = nil
	fb := c.cfg.Fallback
	if fb == nil {
		c.failLocked(fx, fmt.Sprintf("All providers failed for %s", c.symbol))
		return
	}
	ad, err := fb.New(c.symbol)
	if err != nil {
		msg := fmt.Sprintf("All providers failed for %s and no fallback is available", c.symbol)
		if !errors.Is(err, exchange.ErrUnsupportedSymbol) {
			msg = fmt.Sprintf("All providers failed for %s: fallback %s: %v", c.symbol, fb.Name, err)
		}
		c.failLocked(fx, msg)
		return
	}
	c.adapter = ad
	c.provider = fb.Name
	c.setStateLocked(Degraded)
	c.log.Warn().Str("symbol", c.symbol).Str("provider", fb.Name).Msg("streaming providers exhausted, polling fallback")
	c.notifyStatusLocked(fx, fb.Name, fmt.Sprintf("Using %s API (fallback)", exchange.DisplayName(fb.Name)))
	c.maybeBackfillLocked(fx)
	c.startLocked(fx, ad, c.gen)
}

func (c *Controller) failLocked(fx *effects, msg string) {
	c.setStateLocked(Failed)
	c.provider = ""
	c.log.Error().Str("symbol", c.symbol).Msg(msg)
	if cb := c.cb.OnError; cb != nil {
		fx.add(func() { cb(msg) })
	}
}

func (c *Controller) startLocked(fx *effects, ad exchange.Adapter, gen uint64) {
	symbol := c.symbol
	ev := exchange.Events{
		OnOpen:    func() { c.handleOpen(gen) },
		OnUpdate:  func(u exchange.Update) { c.handleUpdate(gen, u) },
		OnHistory: func(h []signal.Candle) { c.handleHistory(gen, h) },
		OnClose:   func(err error) { c.handleFailure(gen, "closed", err) },
	}
	fx.add(func() {
		if err := ad.Start(symbol, ev); err != nil {
			c.handleFailure(gen, "start", err)
		}
	})
}

func (c *Controller) handleOpen(gen uint64) {
	var fx effects
	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	if c.state == Connecting {
		c.setStateLocked(Connected)
		msg := "Connected (primary)"
		if c.index > 0 {
			msg = "Connected (backup)"
		}
		c.log.Info().Str("symbol", c.symbol).Str("provider", c.provider).Msg("market data connected")
		c.notifyStatusLocked(&fx, c.provider, msg)
	}
	c.mu.Unlock()
	fx.run()
}

func (c *Controller) handleUpdate(gen uint64, u exchange.Update) {
	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		return
	}
	agg := c.agg
	c.mu.Unlock()
	switch {
	case u.Kline != nil:
		agg.ApplyCandle(*u.Kline)
	case u.Tick != nil:
		agg.ApplyTick(*u.Tick)
	}
}

func (c *Controller) handleHistory(gen uint64, h []signal.Candle) {
	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		return
	}
	agg := c.agg
	c.mu.Unlock()
	agg.Seed(h)
}

func (c *Controller) handleTimeout(gen uint64) {
	c.handleFailure(gen, "timeout", fmt.Errorf("no open within %s", c.cfg.ConnectTimeout))
}

// handleFailure advances past the current attempt. A failing fallback is terminal.
func (c *Controller) handleFailure(gen uint64, reason string, err error) {
	var fx effects
	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	if ad := c.adapter; ad != nil {
		fx.add(func() { c.closeAdapter(ad) })
	}
	c.adapter = nil
	metrics.FailoversTotal.WithLabelValues(c.provider, reason).Inc()
	c.log.Warn().Err(err).Str("symbol", c.symbol).Str("provider", c.provider).Str("reason", reason).Msg("provider failed")

	if c.state == Degraded {
		c.gen++
		c.failLocked(&fx, fmt.Sprintf("Fallback %s failed for %s: %v", exchange.DisplayName(c.provider), c.symbol, err))
	} else {
		c.enterLocked(c.index+1, &fx)
	}
	c.mu.Unlock()
	fx.run()
}

func (c *Controller) maybeBackfillLocked(fx *effects) {
	if c.cfg.History == nil || c.backfillInflight || c.agg.Seeded() {
		return
	}
	c.backfillInflight = true
	ctx, cancel := context.WithCancel(context.Background())
	c.backfillCancel = cancel
	session, symbol, agg := c.session, c.symbol, c.agg
	fx.add(func() { go c.backfill(ctx, session, symbol, agg) })
}

// backfill is best effort: any failure leaves the series to fill from live data.
func (c *Controller) backfill(ctx context.Context, session uint64, symbol string, agg *candle.Aggregator) {
	candles, err := c.cfg.History.FetchHistory(ctx, symbol, c.cfg.HistoryLimit)

	c.mu.Lock()
	if session != c.session {
		c.mu.Unlock()
		return
	}
	if err != nil || len(candles) == 0 {
		// the next provider attempt may retry
		c.backfillInflight = false
		c.mu.Unlock()
		if err != nil {
			c.log.Debug().Err(err).Str("symbol", symbol).Msg("history backfill failed")
		}
		return
	}
	c.mu.Unlock()
	agg.Seed(candles)
}

func (c *Controller) notifyStatusLocked(fx *effects, provider, msg string) {
	c.status = msg
	if cb := c.cb.OnStatusChange; cb != nil {
		fx.add(func() { cb(provider, msg) })
	}
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	if c.symbol != "" {
		metrics.StreamState.WithLabelValues(c.symbol).Set(float64(s))
	}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Symbol   string          `json:"symbol"`
	State    string          `json:"state"`
	Provider string          `json:"provider"`
	Status   string          `json:"status"`
	Candles  []signal.Candle `json:"candles"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{Symbol: c.symbol, State: c.state.String(), Provider: c.provider, Status: c.status}
	agg := c.agg
	c.mu.Unlock()
	if agg != nil {
		snap.Candles = agg.Snapshot()
	}
	return snap
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Provider returns the provider currently attempted or streaming.
func (c *Controller) Provider() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

// Candles returns a copy of the current series.
func (c *Controller) Candles() []signal.Candle {
	c.mu.Lock()
	agg := c.agg
	c.mu.Unlock()
	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}
