// Package config loads all runtime configuration from environment
// variables, with defaults matching the paper-trading policy.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the engine.
type Config struct {
	// Dashboard
	Port  int
	Debug bool

	// Paper trading account
	PaperBalance decimal.Decimal
	StatePath    string

	// Polygon / Chainlink
	PolygonRPCURLs      []string
	PolygonWSSURL       string
	ChainlinkAggregator string

	// Polymarket
	PolymarketAPIURL     string
	PolymarketCLOBURL    string
	PolymarketSlug       string
	PolymarketSeriesID   string
	PolymarketSeriesSlug string
	AutoSelectLatest     bool
	PolymarketLiveWSURL  string

	// Notifiers
	DiscordWebhookURL string
	TelegramToken     string
	TelegramChatID    int64

	// Database
	DatabasePath string

	// Cadence
	FastTickMs           int
	SlowTickMs           int
	HeavyFetchIntervalMs int64

	// Strategy policy
	MinOddsEdge float64

	// Trader policy
	StopLossRoiPct             float64
	TakeProfitRoiPct           float64
	MomentumTakeProfitRoiPct   float64
	MaxConcurrentPositions     int
	DailyLossLimitPct          float64
	EntryCooldownSeconds       int
	StopLossGracePeriodSeconds int
	CooldownMinutes            int
	MinEntryPrice              float64
	MaxEntryPrice              float64
	MaxConsecutiveLosses       int
	ResolutionThreshold        float64
	TimeGuardMinutes           float64
	UseKelly                   bool
	KellyFraction              float64
	MinKellyBet                decimal.Decimal
	MaxKellyBet                decimal.Decimal
	UsePolymarketDynamicFees   bool
	FeePct                     float64
	MinBet                     decimal.Decimal
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnvInt("PORT", 8080),
		Debug: getEnvBool("DEBUG", false),

		PaperBalance: getEnvDecimal("PAPER_BALANCE", decimal.NewFromInt(100)),
		StatePath:    getEnv("STATE_PATH", "data/paper_state.json"),

		PolygonWSSURL:       firstNonEmpty(os.Getenv("POLYGON_WSS_URL"), firstOf(splitList(os.Getenv("POLYGON_WSS_URLS")))),
		ChainlinkAggregator: getEnv("CHAINLINK_BTC_USD_AGGREGATOR", "0xc907E116054Ad103354f2D350FD2514433D57F6f"),

		PolymarketAPIURL:     getEnv("POLYMARKET_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketCLOBURL:    getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketSlug:       os.Getenv("POLYMARKET_SLUG"),
		PolymarketSeriesID:   os.Getenv("POLYMARKET_SERIES_ID"),
		PolymarketSeriesSlug: os.Getenv("POLYMARKET_SERIES_SLUG"),
		AutoSelectLatest:     getEnvBool("POLYMARKET_AUTO_SELECT_LATEST", true),
		PolymarketLiveWSURL:  os.Getenv("POLYMARKET_LIVE_WS_URL"),

		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabasePath: getEnv("DATABASE_PATH", "data/polypaper.db"),

		FastTickMs:           getEnvInt("FAST_TICK_MS", 250),
		SlowTickMs:           getEnvInt("SLOW_TICK_MS", 2000),
		HeavyFetchIntervalMs: int64(getEnvInt("HEAVY_FETCH_INTERVAL_MS", 10000)),

		MinOddsEdge: getEnvFloat("MIN_ODDS_EDGE", 0.10),

		StopLossRoiPct:             getEnvFloat("STOP_LOSS_ROI_PCT", 40),
		TakeProfitRoiPct:           getEnvFloat("TAKE_PROFIT_ROI_PCT", 80),
		MomentumTakeProfitRoiPct:   getEnvFloat("MOMENTUM_TAKE_PROFIT_ROI_PCT", 50),
		MaxConcurrentPositions:     getEnvInt("MAX_CONCURRENT_POSITIONS", 2),
		DailyLossLimitPct:          getEnvFloat("DAILY_LOSS_LIMIT_PCT", 30),
		EntryCooldownSeconds:       getEnvInt("ENTRY_COOLDOWN_SECONDS", 30),
		StopLossGracePeriodSeconds: getEnvInt("STOP_LOSS_GRACE_PERIOD_SECONDS", 15),
		CooldownMinutes:            getEnvInt("COOLDOWN_MINUTES", 5),
		MinEntryPrice:              getEnvFloat("MIN_ENTRY_PRICE", 0.10),
		MaxEntryPrice:              getEnvFloat("MAX_ENTRY_PRICE", 0.95),
		MaxConsecutiveLosses:       getEnvInt("MAX_CONSECUTIVE_LOSSES", 3),
		ResolutionThreshold:        getEnvFloat("RESOLUTION_THRESHOLD", 0.95),
		TimeGuardMinutes:           getEnvFloat("TIME_GUARD_MINUTES", 2),
		UseKelly:                   getEnvBool("USE_KELLY", true),
		KellyFraction:              getEnvFloat("KELLY_FRACTION", 0.5),
		MinKellyBet:                getEnvDecimal("MIN_KELLY_BET", decimal.NewFromInt(3)),
		MaxKellyBet:                getEnvDecimal("MAX_KELLY_BET", decimal.NewFromInt(5)),
		UsePolymarketDynamicFees:   getEnvBool("USE_POLYMARKET_DYNAMIC_FEES", true),
		FeePct:                     getEnvFloat("FEE_PCT", 1.0),
		MinBet:                     getEnvDecimal("MIN_BET", decimal.NewFromInt(2)),
	}

	// RPC URLs: POLYGON_RPC_URLS is a comma-separated list; the single
	// POLYGON_RPC_URL is prepended when present.
	urls := splitList(os.Getenv("POLYGON_RPC_URLS"))
	if u := os.Getenv("POLYGON_RPC_URL"); u != "" {
		urls = append([]string{u}, urls...)
	}
	if len(urls) == 0 {
		urls = []string{"https://polygon-rpc.com"}
	}
	cfg.PolygonRPCURLs = urls

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, err
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstOf(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
