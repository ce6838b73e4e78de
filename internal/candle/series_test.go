package candle

import (
	"testing"
	"time"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const base int64 = 1_700_000_040_000 // minute aligned

func TestApplyTickMergesWithinBucket(t *testing.T) {
	s := NewSeries(0)
	if got := s.ApplyTick(100, base+1_000, 1); got != Appended {
		t.Fatalf("expected append, got %v", got)
	}
	s.ApplyTick(105, base+20_000, 2)
	s.ApplyTick(98, base+59_999, 0.5)

	if s.Len() != 1 {
		t.Fatalf("expected one candle, got %d", s.Len())
	}
	c, _ := s.Last()
	want := signal.Candle{Time: base, Open: 100, High: 105, Low: 98, Close: 98, Volume: 3.5}
	if c != want {
		t.Fatalf("got %+v want %+v", c, want)
	}
}

func TestApplyTickAppendsNewBucket(t *testing.T) {
	s := NewSeries(0)
	s.ApplyTick(100, base, 1)
	if got := s.ApplyTick(101, base+60_000, 2); got != Appended {
		t.Fatalf("expected append, got %v", got)
	}
	c, _ := s.Last()
	if c.Time != base+60_000 || c.Open != 101 || c.High != 101 || c.Low != 101 || c.Close != 101 || c.Volume != 2 {
		t.Fatalf("unexpected fresh candle %+v", c)
	}
}

func TestApplyTickDropsOlderBucket(t *testing.T) {
	s := NewSeries(0)
	s.ApplyTick(100, base+60_000, 1)
	before := s.Snapshot()
	if got := s.ApplyTick(50, base, 1); got != Dropped {
		t.Fatalf("expected drop, got %v", got)
	}
	after := s.Snapshot()
	if len(after) != 1 || after[0] != before[0] {
		t.Fatalf("series mutated by stale tick: %+v", after)
	}
}

func TestSeriesCapacityEvictsOldest(t *testing.T) {
	s := NewSeries(0)
	for i := 0; i < 60; i++ {
		s.ApplyTick(float64(i), base+int64(i)*60_000, 1)
	}
	snap := s.Snapshot()
	if len(snap) != DefaultCapacity {
		t.Fatalf("expected %d candles, got %d", DefaultCapacity, len(snap))
	}
	if snap[0].Time != base+10*60_000 {
		t.Fatalf("expected oldest 10 evicted, first=%d", snap[0].Time)
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Time <= snap[i-1].Time || snap[i].Time%signal.BucketMillis != 0 {
			t.Fatalf("ordering/alignment broken at %d: %+v", i, snap[i])
		}
	}
}

func TestApplyCandleKeepsOpenAndTakesReportedVolume(t *testing.T) {
	s := NewSeries(0)
	s.ApplyCandle(signal.Candle{Time: base + 5, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100})
	if got := s.ApplyCandle(signal.Candle{Time: base, Open: 99, High: 13, Low: 9.5, Close: 12.5, Volume: 150}); got != Merged {
		t.Fatalf("expected merge, got %v", got)
	}
	c, _ := s.Last()
	want := signal.Candle{Time: base, Open: 10, High: 13, Low: 9, Close: 12.5, Volume: 150}
	if c != want {
		t.Fatalf("got %+v want %+v", c, want)
	}
	if got := s.ApplyCandle(signal.Candle{Time: base - 60_000, Open: 1, High: 1, Low: 1, Close: 1}); got != Dropped {
		t.Fatalf("expected stale kline dropped, got %v", got)
	}
}

func TestSeedNormalisesAndLiveWins(t *testing.T) {
	s := NewSeries(3)
	s.ApplyTick(500, base+2*60_000, 1)

	s.Seed([]signal.Candle{
		{Time: base + 2*60_000, Close: 1},
		{Time: base + 60_000, Close: 2},
		{Time: base, Close: 3},
		{Time: base, Close: 3},
		{Time: base - 60_000, Close: 4},
	})
	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected capped to 3, got %d", len(snap))
	}
	if snap[0].Time != base || snap[1].Time != base+60_000 || snap[2].Time != base+2*60_000 {
		t.Fatalf("unexpected order %+v", snap)
	}
	if snap[2].Close != 500 {
		t.Fatalf("expected live candle to win conflict, got %+v", snap[2])
	}
}

func TestAggregatorEmitsOncePerAcceptedInput(t *testing.T) {
	var candles, histories int
	agg := NewAggregator("btcusdt", 0, Listener{
		OnCandle:  func(signal.Candle) { candles++ },
		OnHistory: func([]signal.Candle) { histories++ },
	})
	ts := time.UnixMilli(base + 60_000)
	agg.ApplyTick(signal.Tick{Price: 1, Ts: ts})
	agg.ApplyTick(signal.Tick{Price: 2, Ts: ts.Add(time.Second)})
	agg.ApplyTick(signal.Tick{Price: 3, Ts: time.UnixMilli(base)})
	if candles != 2 {
		t.Fatalf("expected 2 candle events, got %d", candles)
	}
	if agg.Seeded() {
		t.Fatalf("expected unseeded aggregator")
	}
	agg.Seed([]signal.Candle{{Time: base, Close: 1}})
	if histories != 1 || !agg.Seeded() || agg.Len() != 2 {
		t.Fatalf("unexpected seed result: histories=%d len=%d", histories, agg.Len())
	}
}
