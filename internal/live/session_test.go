package live

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/exchange"
	"github.com/paralela17-sudo/tradepulse-bot/internal/predict"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
	"github.com/paralela17-sudo/tradepulse-bot/internal/stream"
)

type countingEngine struct {
	calls   atomic.Int32
	release chan struct{}
}

func (e *countingEngine) Predict(ctx context.Context, req predict.Request, s predict.StreamFunc) signal.Prediction {
	e.calls.Add(1)
	if s != nil {
		s("looking at " + req.Symbol)
	}
	if e.release != nil {
		<-e.release
	}
	return signal.Prediction{Probability: 82, Signal: signal.Buy, Rationale: "trend", Timestamp: time.Now()}
}

func simFactory(tick time.Duration) ControllerFactory {
	return func(a asset.Asset) *stream.Controller {
		sim := exchange.NewSimulation(exchange.SimulationConfig{
			InitialPrice: func(string) (float64, bool) { return a.InitialPrice, true },
			Tick:         tick,
			Rand:         rand.New(rand.NewSource(7)),
		})
		return stream.New(stream.Config{
			Providers:      []exchange.Provider{{Name: exchange.ProviderSimulation, New: sim}},
			ConnectTimeout: time.Second,
		}, zerolog.Nop())
	}
}

func TestSessionPredictsOncePerBucket(t *testing.T) {
	eng := &countingEngine{release: make(chan struct{})}
	s := New(context.Background(), simFactory(5*time.Millisecond), eng, 0, zerolog.Nop())
	s.Select(asset.Asset{Symbol: "AAPL_S", Name: "Apple", InitialPrice: 178.5, IsSimulated: true})
	defer s.Stop()

	require.Eventually(t, func() bool { return eng.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	// ticks keep arriving while the first prediction is outstanding
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), eng.calls.Load())

	snap := s.Snapshot()
	assert.True(t, snap.Analyzing)
	assert.Equal(t, "looking at AAPL_S", snap.StreamText)
	require.NotNil(t, snap.Indicators)
	assert.Equal(t, "connected", snap.State)
	assert.Equal(t, exchange.ProviderSimulation, snap.Provider)
	assert.GreaterOrEqual(t, len(snap.Candles), DefaultMinCandles)
	assert.Greater(t, snap.Price, 0.0)

	close(eng.release)
	require.Eventually(t, func() bool { return s.Snapshot().Prediction != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, signal.Buy, s.Snapshot().Prediction.Signal)
}

func TestSessionSelectDiscardsPreviousAsset(t *testing.T) {
	eng := &countingEngine{}
	s := New(context.Background(), simFactory(10*time.Millisecond), eng, 0, zerolog.Nop())
	s.Select(asset.Asset{Symbol: "AAPL_S", InitialPrice: 178.5})
	require.Eventually(t, func() bool { return s.Snapshot().Prediction != nil }, 2*time.Second, 5*time.Millisecond)

	s.Select(asset.Asset{Symbol: "TSLA_S", InitialPrice: 240})
	snap := s.Snapshot()
	assert.Equal(t, "TSLA_S", snap.Symbol)
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Prediction != nil && snap.Price > 200
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	_, active := s.Asset()
	assert.False(t, active)
	assert.Equal(t, "idle", s.Snapshot().State)
}

func TestSessionAnalyzeRequiresWindow(t *testing.T) {
	s := New(context.Background(), simFactory(time.Hour), &countingEngine{}, 0, zerolog.Nop())
	_, err := s.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	s.Select(asset.Asset{Symbol: "XAUUSD_F", InitialPrice: 2300})
	defer s.Stop()
	require.Eventually(t, func() bool { return len(s.Snapshot().Candles) >= DefaultMinCandles }, 2*time.Second, 5*time.Millisecond)

	p, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 82, p.Probability)
}

func TestSessionReportsTerminalError(t *testing.T) {
	build := func(a asset.Asset) *stream.Controller {
		return stream.New(stream.Config{Providers: []exchange.Provider{{
			Name: "broken",
			New:  func(string) (exchange.Adapter, error) { return nil, exchange.ErrUnsupportedSymbol },
		}}}, zerolog.Nop())
	}
	s := New(context.Background(), build, &countingEngine{}, 0, zerolog.Nop())
	s.Select(asset.Asset{Symbol: "NOPE"})
	defer s.Stop()

	require.Eventually(t, func() bool { return s.Snapshot().Error != "" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "failed", s.Snapshot().State)
}
