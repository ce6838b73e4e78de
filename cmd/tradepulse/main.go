package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paralela17-sudo/tradepulse-bot/internal/api"
	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/config"
	"github.com/paralela17-sudo/tradepulse-bot/internal/live"
	"github.com/paralela17-sudo/tradepulse-bot/internal/metrics"
	"github.com/paralela17-sudo/tradepulse-bot/internal/scanner"
	"github.com/paralela17-sudo/tradepulse-bot/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML config (missing file means defaults)")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		bootLog := util.NewLogger("info", "json")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("app", cfg.App.Name).Logger()
	if path == "" {
		log.Warn().Str("path", *configPath).Msg("config file not found, using defaults and environment")
	}

	catalog, err := asset.NewCatalog(cfg.Assets)
	if err != nil {
		log.Fatal().Err(err).Msg("load assets")
	}

	metricsSrv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, err := wire(ctx, cfg, catalog, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wire components")
	}
	defer deps.close()

	session := live.New(ctx, deps.controllerFor, deps.engine, cfg.Stream.MinCandles, log)
	if a, ok := catalog.Lookup(cfg.Stream.DefaultSymbol); ok {
		session.Select(a)
	} else {
		log.Warn().Str("symbol", cfg.Stream.DefaultSymbol).Msg("default symbol not in catalog, live stream idle")
	}
	defer session.Stop()

	board := scanner.NewBoard(cfg.Scanner.KeepReports)
	scan := scanner.New(scanner.Config{
		BatchSize:    cfg.Scanner.BatchSize,
		BatchDelay:   cfg.Scanner.BatchDelay(),
		FetchTimeout: cfg.Scanner.FetchTimeout(),
		MinCandles:   cfg.Scanner.MinCandles,
		HistoryLimit: cfg.Scanner.HistoryLimit,
	}, deps.engine, log, deps.scanSources...)
	sched := scanner.NewScheduler(scan, catalog.All, board, deps.sink, scanner.ScheduleConfig{
		InitialDelay: cfg.Scanner.InitialDelay(),
		Interval:     cfg.Scanner.Interval(),
	}, log)
	go sched.Run(ctx)

	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(ctx, sched, board, session, catalog, log)
	httpSrv := &http.Server{Addr: cfg.App.HTTPAddr, Handler: handler.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()
	log.Info().Str("addr", cfg.App.HTTPAddr).Int("assets", catalog.Len()).Str("predictor", deps.engine.Predictor().Name()).Msg("tradepulse started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
