package predict

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

func ind(rsi, line, sig float64) signal.Indicators {
	return signal.Indicators{RSI: rsi, MACD: signal.MACD{Line: line, Signal: sig, Histogram: line - sig}}
}

func TestRulesTable(t *testing.T) {
	r := NewRules(DefaultThresholds(), "")
	cases := []struct {
		name   string
		in     signal.Indicators
		signal signal.Type
		prob   int
		substr string
	}{
		{"oversold", signal.Indicators{RSI: 10, MACD: signal.MACD{Histogram: 0.001}}, signal.Buy, 96, "Oversold (10.00)"},
		{"overbought", signal.Indicators{RSI: 90, MACD: signal.MACD{Histogram: -0.001}}, signal.Sell, 96, "Overbought (90.00)"},
		{"bull trend", ind(60, 0.5, 0.2), signal.Buy, 82, "Bullish momentum"},
		{"bear trend", ind(35, -0.5, -0.2), signal.Sell, 82, "Bearish momentum"},
		{"oversold without divergence", signal.Indicators{RSI: 10, MACD: signal.MACD{Histogram: -0.001}}, signal.Wait, 45, "Market noise"},
		{"noise scales with histogram", signal.Indicators{RSI: 50, MACD: signal.MACD{Histogram: 0.1}}, signal.Wait, 55, "Market noise"},
		{"noise capped", signal.Indicators{RSI: 50, MACD: signal.MACD{Histogram: -3}}, signal.Wait, 60, "Market noise"},
		{"bull boundary excluded", ind(55, 0.0002, 0.0001), signal.Wait, 45, "Market noise"},
		{"bear boundary excluded", ind(45, -0.0002, -0.0001), signal.Wait, 45, "Market noise"},
		{"bull boundary keeps histogram floor", ind(55, 0.5, 0.2), signal.Wait, 60, "Market noise"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := r.Evaluate(tc.in)
			assert.Equal(t, tc.signal, p.Signal)
			assert.Equal(t, tc.prob, p.Probability)
			assert.Contains(t, p.Rationale, tc.substr)
		})
	}
}

func TestRulesPredictStreamsRationale(t *testing.T) {
	r := NewRules(DefaultThresholds(), "[LOCAL] ")
	var got []string
	p, err := r.Predict(context.Background(), Request{Symbol: "btcusdt", Indicators: signal.Indicators{RSI: 10, MACD: signal.MACD{Histogram: 0.001}}}, func(c string) { got = append(got, c) })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(p.Rationale, "[LOCAL] CRITICAL"))
	assert.Equal(t, p.Rationale, got[0])
}

func TestBuildModes(t *testing.T) {
	log := zerolog.Nop()
	params := Params{Thresholds: DefaultThresholds()}

	assert.Equal(t, "rules", Build("", params, log).Name())
	assert.Equal(t, "rules", Build("local", params, log).Name())

	offline := Build("gemini", params, log)
	require.Equal(t, "rules", offline.Name())
	p, _ := offline.Predict(context.Background(), Request{Indicators: signal.Indicators{RSI: 50}}, nil)
	assert.True(t, strings.HasPrefix(p.Rationale, "[OFFLINE MODE] "), p.Rationale)

	params.GeminiAPIKey = "k"
	assert.Equal(t, "gemini", Build("GEMINI", params, log).Name())
}
