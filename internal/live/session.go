// Package live follows one selected instrument: it owns the failover
// controller for that symbol, keeps indicators current and asks the engine
// for a prediction once per new candle.
package live

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/indicator"
	"github.com/paralela17-sudo/tradepulse-bot/internal/predict"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
	"github.com/paralela17-sudo/tradepulse-bot/internal/stream"
)

// DefaultMinCandles is the window needed before indicators are computed.
const DefaultMinCandles = 20

var ErrNotReady = errors.New("live: not enough candles for analysis")

// Engine produces predictions. *predict.Engine satisfies it.
type Engine interface {
	Predict(ctx context.Context, req predict.Request, stream predict.StreamFunc) signal.Prediction
}

// ControllerFactory builds the controller that will stream a. Simulated
// assets typically get a simulation-only provider list.
type ControllerFactory func(a asset.Asset) *stream.Controller

// Snapshot is the observable state of the session.
type Snapshot struct {
	Symbol     string             `json:"symbol"`
	Name       string             `json:"name"`
	Provider   string             `json:"provider"`
	State      string             `json:"state"`
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	Price      float64            `json:"price"`
	Candles    []signal.Candle    `json:"candles"`
	Indicators *signal.Indicators `json:"indicators,omitempty"`
	Prediction *signal.Prediction `json:"prediction,omitempty"`
	StreamText string             `json:"stream_text"`
	Analyzing  bool               `json:"analyzing"`
}

type Session struct {
	ctx        context.Context
	build      ControllerFactory
	engine     Engine
	minCandles int
	log        zerolog.Logger

	mu         sync.Mutex
	epoch      uint64
	asset      asset.Asset
	ctrl       *stream.Controller
	ind        *signal.Indicators
	pred       *signal.Prediction
	streamText string
	lastErr    string
	analyzed   int64
	analyzing  bool
}

// New creates an idle session. ctx bounds every prediction it starts.
func New(ctx context.Context, build ControllerFactory, engine Engine, minCandles int, log zerolog.Logger) *Session {
	if minCandles <= 0 {
		minCandles = DefaultMinCandles
	}
	return &Session{
		ctx:        ctx,
		build:      build,
		engine:     engine,
		minCandles: minCandles,
		log:        log.With().Str("component", "live").Logger(),
		analyzed:   -1,
	}
}

// Select switches the session to a and starts streaming it. State from the
// previous asset is discarded.
func (s *Session) Select(a asset.Asset) {
	ctrl := s.build(a)

	s.mu.Lock()
	old := s.ctrl
	s.epoch++
	epoch := s.epoch
	s.asset = a
	s.ctrl = ctrl
	s.ind, s.pred = nil, nil
	s.streamText, s.lastErr = "", ""
	s.analyzed = -1
	s.analyzing = false
	s.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	s.log.Info().Str("symbol", a.Symbol).Msg("selected asset")
	ctrl.Connect(a.Symbol, stream.Callbacks{
		OnCandle:  func(signal.Candle) { s.onSeries(epoch) },
		OnHistory: func([]signal.Candle) { s.onSeries(epoch) },
		OnStatusChange: func(provider, msg string) {
			s.log.Info().Str("symbol", a.Symbol).Str("provider", provider).Msg(msg)
		},
		OnError: func(msg string) {
			s.log.Error().Str("symbol", a.Symbol).Msg(msg)
			s.mu.Lock()
			if s.epoch == epoch {
				s.lastErr = msg
			}
			s.mu.Unlock()
		},
	})
}

// Stop disconnects the current controller.
func (s *Session) Stop() {
	s.mu.Lock()
	ctrl := s.ctrl
	s.epoch++
	s.ctrl = nil
	s.mu.Unlock()
	if ctrl != nil {
		ctrl.Disconnect()
	}
}

func (s *Session) onSeries(epoch uint64) {
	s.mu.Lock()
	ctrl := s.ctrl
	if s.epoch != epoch || ctrl == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	candles := ctrl.Candles()
	if len(candles) < s.minCandles {
		return
	}
	ind := indicator.Analyze(candles)
	last := candles[len(candles)-1]

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.ind = &ind
	if s.analyzing || s.analyzed == last.Time {
		return
	}
	s.analyzing = true
	s.analyzed = last.Time
	req := predict.Request{Symbol: s.asset.Symbol, Name: s.asset.Name, Price: last.Close, Indicators: ind}
	go s.predict(epoch, req)
}

func (s *Session) predict(epoch uint64, req predict.Request) {
	p := s.engine.Predict(s.ctx, req, s.streamTo(epoch))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.pred = &p
	s.analyzing = false
	s.log.Debug().Str("symbol", req.Symbol).Str("signal", string(p.Signal)).Int("probability", p.Probability).Msg("prediction updated")
}

func (s *Session) streamTo(epoch uint64) predict.StreamFunc {
	return func(chunk string) {
		s.mu.Lock()
		if s.epoch == epoch {
			s.streamText = chunk
		}
		s.mu.Unlock()
	}
}

// Analyze runs a prediction on the current window immediately.
func (s *Session) Analyze(ctx context.Context) (signal.Prediction, error) {
	s.mu.Lock()
	ctrl, epoch, a := s.ctrl, s.epoch, s.asset
	s.mu.Unlock()
	if ctrl == nil {
		return signal.Prediction{}, ErrNotReady
	}
	candles := ctrl.Candles()
	if len(candles) < s.minCandles {
		return signal.Prediction{}, ErrNotReady
	}
	ind := indicator.Analyze(candles)
	req := predict.Request{Symbol: a.Symbol, Name: a.Name, Price: candles[len(candles)-1].Close, Indicators: ind}
	p := s.engine.Predict(ctx, req, s.streamTo(epoch))

	s.mu.Lock()
	if s.epoch == epoch {
		s.ind, s.pred = &ind, &p
	}
	s.mu.Unlock()
	return p, nil
}

// Asset returns the selected asset and whether one is active.
func (s *Session) Asset() (asset.Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asset, s.ctrl != nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Symbol:     s.asset.Symbol,
		Name:       s.asset.Name,
		Error:      s.lastErr,
		StreamText: s.streamText,
		Analyzing:  s.analyzing,
	}
	if s.ind != nil {
		ind := *s.ind
		snap.Indicators = &ind
	}
	if s.pred != nil {
		p := *s.pred
		snap.Prediction = &p
	}
	ctrl := s.ctrl
	s.mu.Unlock()

	if ctrl == nil {
		snap.State = stream.Idle.String()
		return snap
	}
	cs := ctrl.Snapshot()
	snap.Provider, snap.State, snap.Status, snap.Candles = cs.Provider, cs.State, cs.Status, cs.Candles
	if n := len(cs.Candles); n > 0 {
		snap.Price = cs.Candles[n-1].Close
	}
	return snap
}
