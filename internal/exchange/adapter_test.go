package exchange

import (
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

func TestParseBinanceKline(t *testing.T) {
	raw := []byte(`{"e":"kline","E":1700000065123,"s":"BTCUSDT","k":{"t":1700000040000,"T":1700000099999,"s":"BTCUSDT","i":"1m","f":1,"L":99,"o":"100.5","c":"101.0","h":"102.25","l":"99.75","v":"12.5","V":"3.0","n":10,"x":false}}`)
	u, ok, err := ParseBinance(raw)
	if err != nil || !ok {
		t.Fatalf("ParseBinance ok=%v err=%v", ok, err)
	}
	want := signal.Candle{Time: 1_700_000_040_000, Open: 100.5, High: 102.25, Low: 99.75, Close: 101, Volume: 12.5}
	if u.Kline == nil || *u.Kline != want {
		t.Fatalf("got %+v want %+v", u.Kline, want)
	}
}

func TestParseBinanceIgnoresOtherEventsAndRejectsGarbage(t *testing.T) {
	if _, ok, err := ParseBinance([]byte(`{"e":"trade","p":"1"}`)); ok || err != nil {
		t.Fatalf("expected non-kline event ignored, ok=%v err=%v", ok, err)
	}
	if _, _, err := ParseBinance([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, _, err := ParseBinance([]byte(`{"e":"kline","k":{"t":1700000040000,"o":"x","h":"1","l":"1","c":"1","v":"1"}}`)); err == nil {
		t.Fatalf("expected invalid number error")
	}
}

func TestParseBybit(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"ack", `{"success":true,"ret_msg":"subscribe","conn_id":"x","op":"subscribe"}`, false},
		{"pong", `{"success":true,"ret_msg":"pong","conn_id":"x","op":"ping"}`, false},
		{"op pong", `{"op":"pong","args":["1700000000000"]}`, false},
		{"other topic", `{"topic":"tickers.BTCUSDT","data":[]}`, false},
		{"kline", `{"topic":"kline.1.BTCUSDT","type":"snapshot","data":[{"start":1700000040000,"end":1700000099999,"interval":"1","open":"10","close":"11","high":"12","low":"9","volume":"5","turnover":"50","confirm":false}]}`, true},
	}
	for _, tc := range cases {
		u, ok, err := ParseBybit([]byte(tc.raw))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v want %v", tc.name, ok, tc.ok)
		}
		if ok && (u.Kline == nil || u.Kline.Close != 11 || u.Kline.Time != 1_700_000_040_000) {
			t.Fatalf("%s: unexpected kline %+v", tc.name, u.Kline)
		}
	}
	if _, _, err := ParseBybit([]byte(`{"topic":"kline.1.BTCUSDT","data":[]}`)); err == nil {
		t.Fatalf("expected empty data error")
	}
}

func TestRegistryResolvesInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Binance", NewBinance("", zerolog.Nop()))
	reg.Register(ProviderBybit, NewBybit("", zerolog.Nop()))

	ps, err := reg.Providers([]string{"bybit", "BINANCE"})
	if err != nil {
		t.Fatalf("Providers returned error: %v", err)
	}
	if ps[0].Name != ProviderBybit || ps[1].Name != ProviderBinance {
		t.Fatalf("unexpected order %v %v", ps[0].Name, ps[1].Name)
	}
	if _, err := reg.Providers([]string{"kraken"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

type recorder struct {
	opened  chan struct{}
	updates chan Update
	history chan []signal.Candle
	closed  chan error
}

func newRecorder() *recorder {
	return &recorder{
		opened:  make(chan struct{}, 4),
		updates: make(chan Update, 16),
		history: make(chan []signal.Candle, 4),
		closed:  make(chan error, 4),
	}
}

func (r *recorder) events() Events {
	return Events{
		OnOpen:    func() { r.opened <- struct{}{} },
		OnUpdate:  func(u Update) { r.updates <- u },
		OnHistory: func(c []signal.Candle) { r.history <- c },
		OnClose:   func(err error) { r.closed <- err },
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBinanceAdapterStreamsAndSkipsMalformed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"kline","k":{"t":1700000040000,"o":"1","h":"2","l":"0.5","c":"1.5","v":"10"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"kline","k":{"t":1700000100000,"o":"1.5","h":"1.5","l":"1.5","c":"1.5","v":"1"}}`))
	}))
	defer srv.Close()

	ad, err := NewBinance(wsURL(srv), zerolog.Nop())("BTCUSDT")
	if err != nil {
		t.Fatalf("factory returned error: %v", err)
	}
	rec := newRecorder()
	if err := ad.Start("BTCUSDT", rec.events()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer ad.Close()

	select {
	case p := <-paths:
		if p != "/btcusdt@kline_1m" {
			t.Fatalf("unexpected stream path %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never dialed")
	}
	waitOpen(t, rec)
	for _, wantTime := range []int64{1_700_000_040_000, 1_700_000_100_000} {
		select {
		case u := <-rec.updates:
			if u.Kline == nil || u.Kline.Time != wantTime {
				t.Fatalf("unexpected update %+v", u.Kline)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for kline %d", wantTime)
		}
	}
	select {
	case err := <-rec.closed:
		if err == nil {
			t.Fatalf("expected close error after server hangup")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected OnClose after server hangup")
	}
}

func TestBybitAdapterSubscribes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subs := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subs <- string(msg)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"ret_msg":"subscribe","op":"subscribe"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"kline.1.ETHUSDT","data":[{"start":1700000040000,"open":"1","high":"1","low":"1","close":"1","volume":"1"}]}`))
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	ad, _ := NewBybit(wsURL(srv), zerolog.Nop())("ethusdt")
	rec := newRecorder()
	if err := ad.Start("ethusdt", rec.events()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer ad.Close()

	select {
	case s := <-subs:
		if s != `{"op":"subscribe","args":["kline.1.ETHUSDT"]}` {
			t.Fatalf("unexpected subscribe %s", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no subscribe message")
	}
	waitOpen(t, rec)
	select {
	case u := <-rec.updates:
		if u.Kline == nil {
			t.Fatalf("expected kline update")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
	}
	if len(rec.updates) != 0 {
		t.Fatalf("ack should not produce an update")
	}
}

func TestWSAdapterCloseSuppressesOnClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ad, _ := NewBinance(wsURL(srv), zerolog.Nop())("btcusdt")
	rec := newRecorder()
	_ = ad.Start("btcusdt", rec.events())
	waitOpen(t, rec)
	if err := ad.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	_ = ad.Close()

	select {
	case err := <-rec.closed:
		t.Fatalf("unexpected OnClose after intentional close: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWSAdapterDialFailureReportsClose(t *testing.T) {
	ad, _ := NewBinance("ws://127.0.0.1:1", zerolog.Nop())("btcusdt")
	rec := newRecorder()
	_ = ad.Start("btcusdt", rec.events())
	defer ad.Close()
	select {
	case err := <-rec.closed:
		if err == nil {
			t.Fatalf("expected dial error")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected OnClose for failed dial")
	}
	if len(rec.opened) != 0 {
		t.Fatalf("OnOpen must not fire for failed dial")
	}
}

func TestCoinGeckoPollsImmediately(t *testing.T) {
	queries := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":64000.5}}`))
	}))
	defer srv.Close()

	factory := NewCoinGecko(zerolog.Nop(), WithCoinGeckoBaseURL(srv.URL), WithPollInterval(time.Hour))
	ad, err := factory("BTCUSDT")
	if err != nil {
		t.Fatalf("factory returned error: %v", err)
	}
	rec := newRecorder()
	_ = ad.Start("BTCUSDT", rec.events())
	defer ad.Close()

	waitOpen(t, rec)
	select {
	case u := <-rec.updates:
		if u.Tick == nil || u.Tick.Price != 64000.5 {
			t.Fatalf("unexpected update %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first poll did not happen immediately")
	}
	if q := <-queries; q != "ids=bitcoin&vs_currencies=usd" {
		t.Fatalf("unexpected query %s", q)
	}
}

func TestCoinGeckoSkipsFailedPolls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3000}}`))
	}))
	defer srv.Close()

	ad, _ := NewCoinGecko(zerolog.Nop(), WithCoinGeckoBaseURL(srv.URL), WithPollInterval(20*time.Millisecond))("ethusdt")
	rec := newRecorder()
	_ = ad.Start("ethusdt", rec.events())
	defer ad.Close()

	select {
	case u := <-rec.updates:
		if u.Tick.Price != 3000 {
			t.Fatalf("unexpected price %v", u.Tick.Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not recover after failed poll")
	}
	if len(rec.closed) != 0 {
		t.Fatalf("failed poll must not close the adapter")
	}
}

func TestCoinGeckoUnsupportedSymbol(t *testing.T) {
	_, err := NewCoinGecko(zerolog.Nop())("AAPL_S")
	if !errors.Is(err, ErrUnsupportedSymbol) {
		t.Fatalf("expected ErrUnsupportedSymbol, got %v", err)
	}
	ad, err := NewCoinGecko(zerolog.Nop(), WithCoinGeckoIDs(map[string]string{"PEPEUSDT": "pepe"}))("pepeusdt")
	if err != nil || ad.Name() != ProviderCoinGecko {
		t.Fatalf("expected override mapping, err=%v", err)
	}
}

func TestSimulationSeedsHistoryAndTicks(t *testing.T) {
	now := time.UnixMilli(1_700_000_070_000)
	factory := NewSimulation(SimulationConfig{
		InitialPrice: func(sym string) (float64, bool) { return 100, sym == "AAPL_S" },
		Tick:         10 * time.Millisecond,
		Rand:         rand.New(rand.NewSource(7)),
		Now:          func() time.Time { return now },
	})
	if _, err := factory("nope"); !errors.Is(err, ErrUnsupportedSymbol) {
		t.Fatalf("expected ErrUnsupportedSymbol, got %v", err)
	}
	ad, err := factory("AAPL_S")
	if err != nil {
		t.Fatalf("factory returned error: %v", err)
	}
	rec := newRecorder()
	_ = ad.Start("AAPL_S", rec.events())
	defer ad.Close()

	waitOpen(t, rec)
	select {
	case h := <-rec.history:
		if len(h) != defaultSimHistory {
			t.Fatalf("expected %d history candles, got %d", defaultSimHistory, len(h))
		}
		if last := h[len(h)-1].Time; last != signal.Bucket(now.UnixMilli())-signal.BucketMillis {
			t.Fatalf("history should end one bucket before now, got %d", last)
		}
	case <-time.After(time.Second):
		t.Fatalf("no history")
	}
	select {
	case u := <-rec.updates:
		if u.Tick == nil || u.Tick.Price < 99 || u.Tick.Price > 101 {
			t.Fatalf("unexpected tick %+v", u.Tick)
		}
	case <-time.After(time.Second):
		t.Fatalf("no simulated tick")
	}
}

func TestPollingAdaptersRefuseStartAfterClose(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":1}}`))
	}))
	defer srv.Close()

	gecko, _ := NewCoinGecko(zerolog.Nop(), WithCoinGeckoBaseURL(srv.URL), WithPollInterval(5*time.Millisecond))("btcusdt")
	sim, _ := NewSimulation(SimulationConfig{
		InitialPrice: func(string) (float64, bool) { return 100, true },
		Tick:         5 * time.Millisecond,
	})("AAPL_S")

	for _, ad := range []Adapter{gecko, sim} {
		_ = ad.Close()
		rec := newRecorder()
		if err := ad.Start("btcusdt", rec.events()); err == nil {
			t.Fatalf("%s: start after close should fail", ad.Name())
		}
		select {
		case <-rec.opened:
			t.Fatalf("%s: closed adapter reported open", ad.Name())
		case <-rec.updates:
			t.Fatalf("%s: closed adapter emitted an update", ad.Name())
		case <-time.After(50 * time.Millisecond):
		}
	}
	if n := polls.Load(); n != 0 {
		t.Fatalf("closed poller hit the API %d times", n)
	}
}

func waitOpen(t *testing.T, rec *recorder) {
	t.Helper()
	select {
	case <-rec.opened:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for OnOpen")
	}
}
