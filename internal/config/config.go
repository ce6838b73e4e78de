// Package config exposes strongly typed application configuration loaded from
// YAML, a best-effort .env file and TRADEPULSE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/exchange"
	"github.com/paralela17-sudo/tradepulse-bot/internal/predict"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "TRADEPULSE_"

// App captures process-wide runtime settings such as name, listen addresses and logging.
type App struct {
	Name        string `yaml:"name" env:"NAME"`
	Env         string `yaml:"env" env:"ENV"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	HTTPAddr    string `yaml:"http_addr" env:"HTTP_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT"`
}

// Endpoint is a venue's streaming and REST roots.
type Endpoint struct {
	WSURL   string `yaml:"ws_url" env:"WS_URL"`
	RESTURL string `yaml:"rest_url" env:"REST_URL"`
}

// CoinGecko configures the polling fallback.
type CoinGecko struct {
	BaseURL      string            `yaml:"base_url" env:"BASE_URL"`
	PollInterval int               `yaml:"poll_interval_ms" env:"POLL_INTERVAL_MS"`
	IDs          map[string]string `yaml:"ids"`
}

// Simulation tunes the random walk used for instruments with no live venue.
type Simulation struct {
	TickMs  int `yaml:"tick_ms" env:"TICK_MS"`
	History int `yaml:"history_candles" env:"HISTORY_CANDLES"`
}

// Stream configures the failover controller and its providers.
type Stream struct {
	Providers        []string   `yaml:"providers" env:"PROVIDERS" envSeparator:","`
	Fallback         string     `yaml:"fallback" env:"FALLBACK"`
	ConnectTimeoutMs int        `yaml:"connect_timeout_ms" env:"CONNECT_TIMEOUT_MS"`
	HistoryLimit     int        `yaml:"history_limit" env:"HISTORY_LIMIT"`
	Capacity         int        `yaml:"capacity" env:"CAPACITY"`
	MinCandles       int        `yaml:"min_candles" env:"MIN_CANDLES"`
	DefaultSymbol    string     `yaml:"default_symbol" env:"DEFAULT_SYMBOL"`
	Binance          Endpoint   `yaml:"binance" envPrefix:"BINANCE_"`
	Bybit            Endpoint   `yaml:"bybit" envPrefix:"BYBIT_"`
	CoinGecko        CoinGecko  `yaml:"coingecko" envPrefix:"COINGECKO_"`
	Simulation       Simulation `yaml:"simulation" envPrefix:"SIMULATION_"`
}

// Scanner configures batch scans and their cadence.
type Scanner struct {
	Sources          []string `yaml:"sources" env:"SOURCES" envSeparator:","`
	BatchSize        int      `yaml:"batch_size" env:"BATCH_SIZE"`
	BatchDelayMs     int      `yaml:"batch_delay_ms" env:"BATCH_DELAY_MS"`
	FetchTimeoutMs   int      `yaml:"fetch_timeout_ms" env:"FETCH_TIMEOUT_MS"`
	MinCandles       int      `yaml:"min_candles" env:"MIN_CANDLES"`
	HistoryLimit     int      `yaml:"history_limit" env:"HISTORY_LIMIT"`
	InitialDelayMs   int      `yaml:"initial_delay_ms" env:"INITIAL_DELAY_MS"`
	IntervalMs       int      `yaml:"interval_ms" env:"INTERVAL_MS"`
	DisplayThreshold int      `yaml:"display_threshold" env:"DISPLAY_THRESHOLD"`
	KeepReports      int      `yaml:"keep_reports" env:"KEEP_REPORTS"`
	// ReportPath appends each report as a JSON line; empty disables.
	ReportPath string `yaml:"report_path" env:"REPORT_PATH"`
}

// Gemini configures the remote predictor. The key is never written back to disk.
type Gemini struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
	APIKey  string `yaml:"-" env:"API_KEY"`
}

// Predict selects the predictor and its caching.
type Predict struct {
	Mode       string             `yaml:"mode" env:"MODE"`
	TimeoutMs  int                `yaml:"timeout_ms" env:"TIMEOUT_MS"`
	CacheTTLMs int                `yaml:"cache_ttl_ms" env:"CACHE_TTL_MS"`
	Cache      string             `yaml:"cache" env:"CACHE"`
	Rules      predict.Thresholds `yaml:"rules"`
	Gemini     Gemini             `yaml:"gemini" envPrefix:"GEMINI_"`
}

// Redis locates the shared prediction cache.
type Redis struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"-" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// Kafka locates the opportunity topic.
type Kafka struct {
	Enabled bool     `yaml:"enabled" env:"ENABLED"`
	Brokers []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"TOPIC"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App           `yaml:"app" envPrefix:"APP_"`
	Stream  Stream        `yaml:"stream" envPrefix:"STREAM_"`
	Scanner Scanner       `yaml:"scanner" envPrefix:"SCANNER_"`
	Predict Predict       `yaml:"predict" envPrefix:"PREDICT_"`
	Redis   Redis         `yaml:"redis" envPrefix:"REDIS_"`
	Kafka   Kafka         `yaml:"kafka" envPrefix:"KAFKA_"`
	Assets  []asset.Asset `yaml:"assets"`
}

// Load reads an optional YAML file, applies .env and environment overrides and
// fills defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}
	_ = godotenv.Load() // best-effort
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// ApplyEnv overrides fields whose TRADEPULSE_* variable is set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	setStr(&c.App.Name, "tradepulse")
	setStr(&c.App.Env, "development")
	setStr(&c.App.MetricsAddr, ":9100")
	setStr(&c.App.HTTPAddr, ":8080")
	setStr(&c.App.LogLevel, "info")
	setStr(&c.App.LogFormat, "json")

	s := &c.Stream
	if len(s.Providers) == 0 {
		s.Providers = []string{exchange.ProviderBinance, exchange.ProviderBybit}
	}
	s.Providers = lowerAll(s.Providers)
	s.Fallback = strings.ToLower(strings.TrimSpace(s.Fallback))
	setStr(&s.Fallback, exchange.ProviderCoinGecko)
	setInt(&s.ConnectTimeoutMs, 7000)
	setInt(&s.HistoryLimit, 50)
	setInt(&s.Capacity, 50)
	setInt(&s.MinCandles, 20)
	setStr(&s.DefaultSymbol, "btcusdt")
	setStr(&s.Binance.WSURL, exchange.DefaultBinanceWSURL)
	setStr(&s.Binance.RESTURL, exchange.DefaultBinanceRESTURL)
	setStr(&s.Bybit.WSURL, exchange.DefaultBybitWSURL)
	setStr(&s.Bybit.RESTURL, exchange.DefaultBybitRESTURL)
	setStr(&s.CoinGecko.BaseURL, exchange.DefaultCoinGeckoBaseURL)
	setInt(&s.CoinGecko.PollInterval, 3000)
	if len(s.CoinGecko.IDs) == 0 {
		s.CoinGecko.IDs = exchange.DefaultCoinGeckoIDs()
	}
	setInt(&s.Simulation.TickMs, 1000)
	setInt(&s.Simulation.History, 50)

	sc := &c.Scanner
	if len(sc.Sources) == 0 {
		sc.Sources = []string{exchange.ProviderBinance, exchange.ProviderBybit}
	}
	sc.Sources = lowerAll(sc.Sources)
	setInt(&sc.BatchSize, 5)
	setInt(&sc.BatchDelayMs, 500)
	setInt(&sc.FetchTimeoutMs, 3000)
	setInt(&sc.MinCandles, 30)
	setInt(&sc.HistoryLimit, 50)
	setInt(&sc.InitialDelayMs, 5000)
	setInt(&sc.IntervalMs, 60000)
	setInt(&sc.DisplayThreshold, 80)
	setInt(&sc.KeepReports, 10)

	p := &c.Predict
	p.Mode = strings.ToLower(strings.TrimSpace(p.Mode))
	setStr(&p.Mode, predict.ModeLocal)
	setInt(&p.TimeoutMs, 10000)
	setInt(&p.CacheTTLMs, 60000)
	p.Cache = strings.ToLower(strings.TrimSpace(p.Cache))
	setStr(&p.Cache, "memory")
	if p.Rules == (predict.Thresholds{}) {
		p.Rules = predict.DefaultThresholds()
	}

	setStr(&c.Redis.Addr, "localhost:6379")
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	setStr(&c.Kafka.Topic, "tradepulse.opportunities")

	if len(c.Assets) == 0 {
		c.Assets = asset.Default()
	}
}

func (s Stream) ConnectTimeout() time.Duration { return ms(s.ConnectTimeoutMs) }

func (s Scanner) BatchDelay() time.Duration   { return ms(s.BatchDelayMs) }
func (s Scanner) FetchTimeout() time.Duration { return ms(s.FetchTimeoutMs) }
func (s Scanner) InitialDelay() time.Duration { return ms(s.InitialDelayMs) }
func (s Scanner) Interval() time.Duration     { return ms(s.IntervalMs) }

func (p Predict) Timeout() time.Duration  { return ms(p.TimeoutMs) }
func (p Predict) CacheTTL() time.Duration { return ms(p.CacheTTLMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func setStr(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
