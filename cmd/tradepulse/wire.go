package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/config"
	"github.com/paralela17-sudo/tradepulse-bot/internal/exchange"
	"github.com/paralela17-sudo/tradepulse-bot/internal/predict"
	"github.com/paralela17-sudo/tradepulse-bot/internal/scanner"
	"github.com/paralela17-sudo/tradepulse-bot/internal/sink"
	"github.com/paralela17-sudo/tradepulse-bot/internal/stream"
)

type deps struct {
	registry    *exchange.Registry
	providers   []exchange.Provider
	fallback    *exchange.Provider
	simulation  exchange.Provider
	history     exchange.HistoryFetcher
	scanSources []exchange.HistoryFetcher
	engine      *predict.Engine
	sink        scanner.Sink
	closers     []func() error

	cfg *config.Config
	log zerolog.Logger
}

func wire(ctx context.Context, cfg *config.Config, catalog *asset.Catalog, log zerolog.Logger) (*deps, error) {
	d := &deps{cfg: cfg, log: log}

	sim := exchange.NewSimulation(exchange.SimulationConfig{
		InitialPrice: func(symbol string) (float64, bool) {
			a, ok := catalog.Lookup(symbol)
			return a.InitialPrice, ok
		},
		Tick:    time.Duration(cfg.Stream.Simulation.TickMs) * time.Millisecond,
		History: cfg.Stream.Simulation.History,
	})
	d.simulation = exchange.Provider{Name: exchange.ProviderSimulation, New: sim}

	d.registry = exchange.NewRegistry()
	d.registry.Register(exchange.ProviderBinance, exchange.NewBinance(cfg.Stream.Binance.WSURL, log))
	d.registry.Register(exchange.ProviderBybit, exchange.NewBybit(cfg.Stream.Bybit.WSURL, log))
	d.registry.Register(exchange.ProviderCoinGecko, exchange.NewCoinGecko(log,
		exchange.WithCoinGeckoBaseURL(cfg.Stream.CoinGecko.BaseURL),
		exchange.WithPollInterval(time.Duration(cfg.Stream.CoinGecko.PollInterval)*time.Millisecond),
		exchange.WithCoinGeckoIDs(cfg.Stream.CoinGecko.IDs),
	))
	d.registry.Register(exchange.ProviderSimulation, sim)

	providers, err := d.registry.Providers(cfg.Stream.Providers)
	if err != nil {
		return nil, fmt.Errorf("stream providers: %w", err)
	}
	d.providers = providers
	if cfg.Stream.Fallback != "none" {
		fb, ok := d.registry.Lookup(cfg.Stream.Fallback)
		if !ok {
			return nil, fmt.Errorf("unknown fallback provider %q (known: %v)", cfg.Stream.Fallback, d.registry.Names())
		}
		d.fallback = &fb
	}

	histories := map[string]exchange.HistoryFetcher{
		exchange.ProviderBinance: exchange.NewBinanceHistory(cfg.Stream.Binance.RESTURL, cfg.Scanner.FetchTimeout()),
		exchange.ProviderBybit:   exchange.NewBybitHistory(cfg.Stream.Bybit.RESTURL, cfg.Scanner.FetchTimeout()),
	}
	for _, name := range cfg.Scanner.Sources {
		h, ok := histories[name]
		if !ok {
			return nil, fmt.Errorf("unknown scanner source %q", name)
		}
		d.scanSources = append(d.scanSources, h)
	}
	d.history = exchange.NewHistoryChain(log, d.scanSources...)

	d.engine = predict.NewEngine(predict.Build(cfg.Predict.Mode, predict.Params{
		Thresholds:    cfg.Predict.Rules,
		GeminiBaseURL: cfg.Predict.Gemini.BaseURL,
		GeminiModel:   cfg.Predict.Gemini.Model,
		GeminiAPIKey:  cfg.Predict.Gemini.APIKey,
	}, log), predict.EngineConfig{
		Timeout:  cfg.Predict.Timeout(),
		CacheTTL: cfg.Predict.CacheTTL(),
		Cache:    d.cache(ctx),
	}, log)

	var sinks sink.Multi
	if cfg.Scanner.ReportPath != "" {
		j, err := sink.NewJSONL(cfg.Scanner.ReportPath)
		if err != nil {
			return nil, fmt.Errorf("open report file: %w", err)
		}
		sinks = append(sinks, j)
		d.closers = append(d.closers, j.Close)
	}
	if cfg.Kafka.Enabled {
		kcfg := sink.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic, Threshold: cfg.Scanner.DisplayThreshold}
		k := sink.NewKafka(sink.NewKafkaWriter(kcfg), kcfg, log)
		sinks = append(sinks, k)
		d.closers = append(d.closers, k.Close)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing opportunities to kafka")
	}
	if len(sinks) > 0 {
		d.sink = sinks
	}
	return d, nil
}

// cache returns the redis cache when configured and reachable, else nil so the
// engine keeps predictions in memory.
func (d *deps) cache(ctx context.Context) predict.Cache {
	if d.cfg.Predict.Cache != "redis" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: d.cfg.Redis.Addr, Password: d.cfg.Redis.Password, DB: d.cfg.Redis.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		d.log.Warn().Err(err).Str("addr", d.cfg.Redis.Addr).Msg("redis unreachable, caching predictions in memory")
		_ = client.Close()
		return nil
	}
	d.closers = append(d.closers, client.Close)
	return predict.NewRedisCache(client, d.log)
}

// controllerFor gives simulated assets a simulation-only controller and live
// assets the configured failover chain with REST backfill.
func (d *deps) controllerFor(a asset.Asset) *stream.Controller {
	cfg := stream.Config{
		ConnectTimeout: d.cfg.Stream.ConnectTimeout(),
		HistoryLimit:   d.cfg.Stream.HistoryLimit,
		Capacity:       d.cfg.Stream.Capacity,
	}
	if a.IsSimulated {
		cfg.Providers = []exchange.Provider{d.simulation}
	} else {
		cfg.Providers = d.providers
		cfg.Fallback = d.fallback
		cfg.History = d.history
	}
	return stream.New(cfg, d.log)
}

func (d *deps) close() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			d.log.Warn().Err(err).Msg("close")
		}
	}
}
