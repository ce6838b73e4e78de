// Package scanner polls many instruments in rate-limited batches and ranks the
// resulting predictions.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/exchange"
	"github.com/paralela17-sudo/tradepulse-bot/internal/indicator"
	"github.com/paralela17-sudo/tradepulse-bot/internal/metrics"
	"github.com/paralela17-sudo/tradepulse-bot/internal/predict"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	DefaultBatchSize    = 5
	DefaultBatchDelay   = 500 * time.Millisecond
	DefaultFetchTimeout = 3 * time.Second
	DefaultMinCandles   = 30
	DefaultHistoryLimit = 50

	unavailableRationale = "Data Unavailable"
)

// Engine is the prediction surface the scanner needs. *predict.Engine satisfies it.
type Engine interface {
	Predict(ctx context.Context, req predict.Request, stream predict.StreamFunc) signal.Prediction
}

// Sink receives every completed report.
type Sink interface {
	Publish(ctx context.Context, r Report) error
}

// Config tunes a Scanner; zero values take defaults.
type Config struct {
	BatchSize    int
	BatchDelay   time.Duration
	FetchTimeout time.Duration
	MinCandles   int
	HistoryLimit int
}

func (c *Config) normalize() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MinCandles <= 0 {
		c.MinCandles = DefaultMinCandles
	}
	if c.HistoryLimit < c.MinCandles {
		c.HistoryLimit = DefaultHistoryLimit
		if c.HistoryLimit < c.MinCandles {
			c.HistoryLimit = c.MinCandles
		}
	}
}

// Result is one instrument's outcome for a scan.
type Result struct {
	Asset      asset.Asset       `json:"asset"`
	Price      float64           `json:"price"`
	Prediction signal.Prediction `json:"prediction"`
	Source     string            `json:"source,omitempty"`
	Indicators signal.Indicators `json:"indicators"`
}

// Placeholder reports whether the result stands in for unavailable data.
func (r Result) Placeholder() bool { return r.Source == "" }

// Report is the output of one full scan.
type Report struct {
	ID        uuid.UUID     `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Results   []Result      `json:"results"`
	Ranked    []Result      `json:"ranked"`
}

// Scanner fetches history for each asset, computes indicators and asks the
// engine for a prediction. One instrument's failure never aborts the scan.
type Scanner struct {
	cfg     Config
	sources []exchange.HistoryFetcher
	engine  Engine
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, engine Engine, log zerolog.Logger, sources ...exchange.HistoryFetcher) *Scanner {
	cfg.normalize()
	return &Scanner{
		cfg:     cfg,
		sources: sources,
		engine:  engine,
		log:     log.With().Str("component", "scanner").Logger(),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scan runs every asset through the pipeline. Results keep input order; a
// canceled context fills the remaining slots with placeholders.
func (s *Scanner) Scan(ctx context.Context, assets []asset.Asset) Report {
	started := time.Now()
	rep := Report{ID: uuid.New(), StartedAt: started, Results: make([]Result, len(assets))}
	log := s.log.With().Str("scan_id", rep.ID.String()).Logger()
	log.Info().Int("assets", len(assets)).Int("batch_size", s.cfg.BatchSize).Msg("scan started")

	for start := 0; start < len(assets); start += s.cfg.BatchSize {
		if start > 0 {
			if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
				for i := start; i < len(assets); i++ {
					rep.Results[i] = placeholder(assets[i], time.Now())
				}
				log.Warn().Err(err).Int("remaining", len(assets)-start).Msg("scan interrupted")
				break
			}
		}
		end := min(start+s.cfg.BatchSize, len(assets))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rep.Results[i] = s.scanOne(ctx, log, assets[i])
			}(i)
		}
		wg.Wait()
	}

	rep.Ranked = Rank(rep.Results)
	rep.Duration = time.Since(started)
	metrics.ScanDuration.Observe(rep.Duration.Seconds())
	log.Info().Int("ranked", len(rep.Ranked)).Dur("took", rep.Duration).Msg("scan complete")
	return rep
}

func (s *Scanner) scanOne(ctx context.Context, log zerolog.Logger, a asset.Asset) Result {
	if a.IsSimulated {
		return placeholder(a, time.Now())
	}
	candles, source, err := s.fetch(ctx, a.Symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", a.Symbol).Msg("no usable history")
		return placeholder(a, time.Now())
	}
	ind := indicator.Analyze(candles)
	price := candles[len(candles)-1].Close
	p := s.engine.Predict(ctx, predict.Request{Symbol: a.Symbol, Name: a.Name, Price: price, Indicators: ind}, nil)
	return Result{Asset: a, Price: price, Prediction: p, Source: source, Indicators: ind}
}

func (s *Scanner) fetch(ctx context.Context, symbol string) ([]signal.Candle, string, error) {
	var lastErr error
	for _, src := range s.sources {
		candles, err := s.fetchFrom(ctx, src, symbol)
		if err == nil {
			return candles, src.Name(), nil
		}
		metrics.ScanFailuresTotal.WithLabelValues(src.Name()).Inc()
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no history sources configured")
	}
	return nil, "", lastErr
}

func (s *Scanner) fetchFrom(ctx context.Context, src exchange.HistoryFetcher, symbol string) ([]signal.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	candles, err := src.FetchHistory(ctx, symbol, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if len(candles) < s.cfg.MinCandles {
		return nil, fmt.Errorf("%s returned %d candles for %s, need %d", src.Name(), len(candles), symbol, s.cfg.MinCandles)
	}
	return candles, nil
}

func placeholder(a asset.Asset, now time.Time) Result {
	return Result{
		Asset:      a,
		Price:      a.InitialPrice,
		Prediction: signal.Prediction{Probability: 0, Signal: signal.Wait, Rationale: unavailableRationale, Timestamp: now},
	}
}

// Rank drops zero-probability results and sorts the rest by probability,
// highest first. Equal probabilities keep their scan order.
func Rank(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Prediction.Probability > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Prediction.Probability > out[j].Prediction.Probability
	})
	return out
}
