package exchange

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	defaultSimTick      = time.Second
	defaultSimHistory   = 50
	simVolatilityFactor = 0.0005
)

// SimulationConfig drives the synthetic random walk.
type SimulationConfig struct {
	// InitialPrice looks up the starting price for a symbol; ok=false fails the factory.
	InitialPrice func(symbol string) (float64, bool)
	Tick         time.Duration
	History      int
	// Rand is shared by every adapter the factory creates; nil seeds from the clock.
	Rand *rand.Rand
	Now  func() time.Time
}

// NewSimulation returns a factory for instruments with no live venue.
func NewSimulation(cfg SimulationConfig) Factory {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultSimTick
	}
	if cfg.History <= 0 {
		cfg.History = defaultSimHistory
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rnd := &lockedRand{r: cfg.Rand}
	if rnd.r == nil {
		rnd.r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return func(symbol string) (Adapter, error) {
		px, ok := 0.0, false
		if cfg.InitialPrice != nil {
			px, ok = cfg.InitialPrice(symbol)
		}
		if !ok || px <= 0 {
			return nil, ErrUnsupportedSymbol
		}
		return &simAdapter{cfg: cfg, rnd: rnd, price: px}, nil
	}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// jitter returns a value in [-0.5, 0.5).
func (l *lockedRand) jitter() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64() - 0.5
}

func (l *lockedRand) float(max float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64() * max
}

type simAdapter struct {
	cfg   SimulationConfig
	rnd   *lockedRand
	price float64

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (a *simAdapter) Name() string { return ProviderSimulation }

func (a *simAdapter) Start(symbol string, ev Events) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("simulation: adapter closed")
	}
	if a.cancel != nil {
		return errors.New("simulation: adapter already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.run(ctx, symbol, ev)
	return nil
}

func (a *simAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

func (a *simAdapter) run(ctx context.Context, symbol string, ev Events) {
	volatility := a.price * simVolatilityFactor
	ev.open()
	ev.history(a.synthHistory(volatility))

	ticker := time.NewTicker(a.cfg.Tick)
	defer ticker.Stop()
	px := a.price
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			px += a.rnd.jitter() * volatility
			ev.update(Update{Tick: &signal.Tick{
				Symbol: symbol,
				Price:  px,
				Size:   a.rnd.float(10),
				Ts:     a.cfg.Now(),
			}})
		}
	}
}

// synthHistory builds History candles ending one bucket before now.
func (a *simAdapter) synthHistory(volatility float64) []signal.Candle {
	nowBucket := signal.Bucket(a.cfg.Now().UnixMilli())
	out := make([]signal.Candle, 0, a.cfg.History)
	px := a.price
	for i := a.cfg.History; i > 0; i-- {
		px += a.rnd.jitter() * volatility * 5
		out = append(out, signal.Candle{
			Time:   nowBucket - int64(i)*signal.BucketMillis,
			Open:   px,
			High:   px * 1.001,
			Low:    px * 0.999,
			Close:  px,
			Volume: a.rnd.float(1000),
		})
	}
	return out
}
