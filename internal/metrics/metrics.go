package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandleEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candle_events_total", Help: "Candle series mutations by kind (merge, append, seed)"},
		[]string{"symbol", "kind"},
	)
	MalformedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "malformed_messages_total", Help: "Provider messages dropped because they could not be parsed"},
		[]string{"provider"},
	)
	FailoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provider_failovers_total", Help: "Provider switches by failing provider and reason"},
		[]string{"provider", "reason"},
	)
	StreamState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "stream_state", Help: "Current failover controller state per symbol (0 idle, 1 connecting, 2 connected, 3 degraded, 4 failed)"},
		[]string{"symbol"},
	)
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "predictions_total", Help: "Predictions served by origin (fresh, cache, fallback)"},
		[]string{"origin", "signal"},
	)
	ScanFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scan_source_failures_total", Help: "Per-instrument history fetch failures during scans"},
		[]string{"source"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "scan_duration_seconds", Help: "Wall time of a full batch scan", Buckets: prometheus.ExponentialBuckets(0.25, 2, 8)},
	)
)

func init() {
	prometheus.MustRegister(
		CandleEventsTotal,
		MalformedMessagesTotal,
		FailoversTotal,
		StreamState,
		PredictionsTotal,
		ScanFailuresTotal,
		ScanDuration,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
