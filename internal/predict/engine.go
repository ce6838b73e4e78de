package predict

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/metrics"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultCacheTTL = 60 * time.Second
	cachedPrefix    = "(Cached Result) "
)

// Engine serves predictions from cache or races the predictor against a timeout.
// It never returns an error: failures become a classified WAIT result.
type Engine struct {
	predictor Predictor
	cache     Cache
	timeout   time.Duration
	ttl       time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// EngineConfig tunes the engine; zero values take defaults.
type EngineConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	Cache    Cache
	Now      func() time.Time
}

func NewEngine(p Predictor, cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache(cfg.Now)
	}
	return &Engine{
		predictor: p,
		cache:     cfg.Cache,
		timeout:   cfg.Timeout,
		ttl:       cfg.CacheTTL,
		log:       log.With().Str("component", "predict").Str("predictor", p.Name()).Logger(),
		now:       cfg.Now,
	}
}

// Predictor exposes the wrapped predictor.
func (e *Engine) Predictor() Predictor { return e.predictor }

type outcome struct {
	p   signal.Prediction
	err error
}

func (e *Engine) Predict(ctx context.Context, req Request, stream StreamFunc) signal.Prediction {
	if cached, ok := e.cache.Get(ctx, req.Symbol); ok {
		stream.send(cachedPrefix + cached.Rationale)
		metrics.PredictionsTotal.WithLabelValues("cache", string(cached.Signal)).Inc()
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Chunks from a predictor that lost the race are dropped.
	var done atomic.Bool
	guarded := StreamFunc(func(chunk string) {
		if !done.Load() {
			stream.send(chunk)
		}
	})

	ch := make(chan outcome, 1)
	go func() {
		p, err := e.predictor.Predict(ctx, req, guarded)
		ch <- outcome{p: p, err: err}
	}()

	var res outcome
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = outcome{err: &Error{Kind: KindOf(ctx.Err()), Err: fmt.Errorf("no answer within %s", e.timeout)}}
	}
	done.Store(true)

	if res.err != nil {
		kind := KindOf(res.err)
		e.log.Warn().Err(res.err).Str("symbol", req.Symbol).Str("kind", string(kind)).Msg("prediction failed, returning fallback")
		metrics.PredictionsTotal.WithLabelValues("fallback", string(signal.Wait)).Inc()
		return signal.Prediction{
			Probability: 0,
			Signal:      signal.Wait,
			Rationale:   fmt.Sprintf("[%s] Analysis unavailable: %v", kind, res.err),
			Timestamp:   e.now(),
		}
	}
	e.cache.Set(context.WithoutCancel(ctx), req.Symbol, res.p, e.ttl)
	metrics.PredictionsTotal.WithLabelValues("fresh", string(res.p.Signal)).Inc()
	return res.p
}
