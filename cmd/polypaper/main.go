package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polypaper/internal/binance"
	"github.com/web3guy0/polypaper/internal/candles"
	"github.com/web3guy0/polypaper/internal/chainlink"
	"github.com/web3guy0/polypaper/internal/config"
	"github.com/web3guy0/polypaper/internal/dashboard"
	"github.com/web3guy0/polypaper/internal/notify"
	"github.com/web3guy0/polypaper/internal/orchestrator"
	"github.com/web3guy0/polypaper/internal/polymarket"
	"github.com/web3guy0/polypaper/internal/snapshot"
	"github.com/web3guy0/polypaper/internal/storage"
	"github.com/web3guy0/polypaper/internal/strategy"
	"github.com/web3guy0/polypaper/internal/trader"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("          POLYPAPER - 15-MIN BTC PAPER TRADING ENGINE")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	// Storage (append-only trade/signal log)
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("Database init failed, continuing without trade log")
		db = nil
	}

	// Candle ring, seeded from REST klines before the stream starts
	agg := candles.NewAggregator(240)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if history, err := binance.FetchKlines(ctx, 240); err != nil {
		log.Warn().Err(err).Msg("kline backfill failed, candles build from live ticks")
	} else {
		agg.Backfill(history)
		log.Info().Int("candles", len(history)).Msg("✅ Candle history backfilled")
	}
	cancel()

	// Feeds
	spotFeed := binance.NewClient()
	spotFeed.SetTickCallback(func(tsMs int64, price float64) {
		agg.AddTick(tsMs, price)
	})
	spotFeed.Start()

	chainFeed := chainlink.NewClient(cfg.PolygonRPCURLs, cfg.PolygonWSSURL, cfg.ChainlinkAggregator)
	if err := chainFeed.Start(); err != nil {
		log.Fatal().Err(err).Msg("chainlink feed failed to start")
	}

	polyClient := polymarket.NewClient(cfg.PolymarketAPIURL, cfg.PolymarketCLOBURL)
	resolver := polymarket.NewStrikeResolver()

	assembler := snapshot.NewAssembler(
		spotFeed, chainFeed, polyClient, agg, resolver,
		cfg.PolymarketSlug, cfg.PolymarketSeriesID,
		cfg.AutoSelectLatest, cfg.HeavyFetchIntervalMs,
	)

	// Strategy and trader
	evaluator := strategy.NewEvaluator(cfg.MinOddsEdge)
	tr, err := trader.New(cfg, trader.NewFileStore(cfg.StatePath))
	if err != nil {
		log.Fatal().Err(err).Msg("trader state load failed")
	}

	// Dashboard
	dash := dashboard.NewServer(cfg.Port, cfg.Debug)
	go dash.Start()

	// Notifications
	var channels []notify.Notifier
	if d := notify.NewDiscord(cfg.DiscordWebhookURL); d != nil {
		channels = append(channels, d)
	}
	if t := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID); t != nil {
		channels = append(channels, t)
	}
	notifier := notify.NewMulti(channels...)

	// Orchestrator
	loop := orchestrator.New(cfg, assembler, evaluator, tr, resolver, db, dash)
	tr.SetEventCallback(func(ev trader.Event) {
		loop.HandleTradeEvent(ev)
		if notifier.Enabled() {
			notifier.NotifyTrade(ev)
		}
	})

	runCtx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(runCtx) }()

	log.Info().Msg("🚀 All systems running...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
		log.Info().Msg("🛑 Shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("engine loop aborted")
			if errors.Is(err, orchestrator.ErrTooManyHardErrors) {
				exitCode = 1
			}
		}
	}

	stop()
	loop.Stop()
	spotFeed.Stop()
	chainFeed.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	dash.Shutdown(shutdownCtx)
	cancelShutdown()

	if db != nil {
		db.Close()
	}

	log.Info().Msg("👋 Goodbye!")
	os.Exit(exitCode)
}
