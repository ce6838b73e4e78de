// Package indicator computes the technical readings the predictors consume.
// Every function is a pure function of the close series.
package indicator

import "github.com/paralela17-sudo/tradepulse-bot/internal/signal"

const (
	RSIPeriod  = 14
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
	SMAPeriod  = 20
)

// RSI uses a simple average of gains and losses over the last period diffs.
// Short input yields the neutral 50; a window with no losses yields 100.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}
	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}

// EMA returns the exponential moving average series seeded with the first value.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	k := 2 / (float64(period) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// MACD returns the 12/26/9 reading for the last close, or zeros below 26 closes.
func MACD(closes []float64) signal.MACD {
	if len(closes) < MACDSlow {
		return signal.MACD{}
	}
	fast := EMA(closes, MACDFast)
	slow := EMA(closes, MACDSlow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	sig := EMA(line, MACDSignal)
	last := len(closes) - 1
	return signal.MACD{Line: line[last], Signal: sig[last], Histogram: line[last] - sig[last]}
}

// SMA averages the last period values (fewer when the input is short).
func SMA(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0
	}
	if len(values) > period {
		values = values[len(values)-period:]
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Closes extracts close prices in order.
func Closes(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Analyze derives the full indicator set from a candle window.
func Analyze(candles []signal.Candle) signal.Indicators {
	closes := Closes(candles)
	return signal.Indicators{
		RSI:  RSI(closes, RSIPeriod),
		MACD: MACD(closes),
		SMA:  SMA(closes, SMAPeriod),
	}
}
