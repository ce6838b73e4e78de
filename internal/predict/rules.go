package predict

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

// Thresholds tunes the local rule table.
type Thresholds struct {
	OversoldRSI   float64 `yaml:"oversold_rsi"`
	OverboughtRSI float64 `yaml:"overbought_rsi"`
	BullMinRSI    float64 `yaml:"bull_min_rsi"`
	BullMaxRSI    float64 `yaml:"bull_max_rsi"`
	BearMinRSI    float64 `yaml:"bear_min_rsi"`
	BearMaxRSI    float64 `yaml:"bear_max_rsi"`
	CriticalProb  int     `yaml:"critical_probability"`
	TrendProb     int     `yaml:"trend_probability"`
	NoiseBase     float64 `yaml:"noise_base"`
	NoiseCap      float64 `yaml:"noise_cap"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		OversoldRSI:   15,
		OverboughtRSI: 85,
		BullMinRSI:    55,
		BullMaxRSI:    75,
		BearMinRSI:    25,
		BearMaxRSI:    45,
		CriticalProb:  96,
		TrendProb:     82,
		NoiseBase:     45,
		NoiseCap:      60,
	}
}

// Rules is the deterministic local predictor.
type Rules struct {
	th     Thresholds
	prefix string
	now    func() time.Time
}

// NewRules builds a rule predictor. prefix is prepended to every rationale.
func NewRules(th Thresholds, prefix string) *Rules {
	return &Rules{th: th, prefix: prefix, now: time.Now}
}

func (r *Rules) Name() string { return "rules" }

func (r *Rules) Predict(_ context.Context, req Request, stream StreamFunc) (signal.Prediction, error) {
	p := r.Evaluate(req.Indicators)
	stream.send(p.Rationale)
	return p, nil
}

// Evaluate applies the rule table to one indicator reading.
func (r *Rules) Evaluate(ind signal.Indicators) signal.Prediction {
	rsi, m := ind.RSI, ind.MACD
	th := r.th
	p := signal.Prediction{Timestamp: r.now()}
	switch {
	case rsi < th.OversoldRSI && m.Histogram > 0:
		p.Signal, p.Probability = signal.Buy, th.CriticalProb
		p.Rationale = fmt.Sprintf("CRITICAL: RSI Oversold (%.2f) + Bullish Divergence", rsi)
	case rsi > th.OverboughtRSI && m.Histogram < 0:
		p.Signal, p.Probability = signal.Sell, th.CriticalProb
		p.Rationale = fmt.Sprintf("CRITICAL: RSI Overbought (%.2f) + Bearish Divergence", rsi)
	case rsi > th.BullMinRSI && rsi < th.BullMaxRSI && m.Histogram > 0 && m.Line > m.Signal:
		p.Signal, p.Probability = signal.Buy, th.TrendProb
		p.Rationale = "Trend: Bullish momentum continuation"
	case rsi > th.BearMinRSI && rsi < th.BearMaxRSI && m.Histogram < 0 && m.Line < m.Signal:
		p.Signal, p.Probability = signal.Sell, th.TrendProb
		p.Rationale = "Trend: Bearish momentum continuation"
	default:
		p.Signal = signal.Wait
		p.Probability = int(math.Floor(math.Min(th.NoiseBase+math.Abs(m.Histogram)*100, th.NoiseCap)))
		p.Rationale = "Market noise detected. No statistical edge > 80%"
	}
	p.Rationale = r.prefix + p.Rationale
	return p
}
