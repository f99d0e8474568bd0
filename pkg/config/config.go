package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading core.
type Config struct {
	Port string

	// Monitoring
	Symbols    []string // logical symbols to monitor at startup
	Interval   string   // bar interval, e.g. "15m"
	MaxBars    int      // per-series retention cap
	DeepWindow int      // bars used for a deep evaluation
	IncrWindow int      // bars used for an incremental evaluation

	// History bootstrap
	HistoryLimit     int // bars requested per symbol on startup
	MinHistoryBars   int // below this after retries the symbol runs degraded
	BootstrapRetries int
	MappingPath      string // YAML symbol mapping table
	UseMockFeed      bool

	// Market data source (Backpack-style public API)
	DataRESTBaseURL string
	DataWSBaseURL   string

	// Execution venue
	VenueBaseURL    string
	VenueAPIKey     string
	VenueAPISecret  string
	VenuePassphrase string
	DryRun          bool
	DryRunEquity    float64 // simulated account equity in dry-run
	Leverage        float64
	BaseOrderSize   float64 // rule decider position size in base units

	// Strategy decision collaborator
	DeciderMode    string // "rule" or "remote"
	DeciderURL     string
	DeciderTimeout time.Duration

	// Risk
	CooldownBars   int
	MarginFraction float64 // max fraction of equity a signal may use
	MaxDailyTrades int
	MaxDailyLoss   float64

	// Persistence / cache
	DBPath    string
	RedisAddr string // empty disables the snapshot publisher
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		Symbols:          splitAndTrim(getEnv("MONITOR_SYMBOLS", "ETH_USDC_PERP,BTC_USDC_PERP")),
		Interval:         getEnv("MONITOR_INTERVAL", "15m"),
		MaxBars:          getEnvInt("MAX_BARS", 2000),
		DeepWindow:       getEnvInt("DEEP_WINDOW", 1000),
		IncrWindow:       getEnvInt("INCREMENTAL_WINDOW", 120),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 1000),
		MinHistoryBars:   getEnvInt("MIN_HISTORY_BARS", 50),
		BootstrapRetries: getEnvInt("BOOTSTRAP_RETRIES", 2),
		MappingPath:      getEnv("SYMBOL_MAPPING_PATH", "symbols.yaml"),
		UseMockFeed:      getEnv("USE_MOCK_FEED", "false") == "true",
		DataRESTBaseURL:  getEnv("DATA_REST_URL", "https://api.backpack.exchange"),
		DataWSBaseURL:    getEnv("DATA_WS_URL", "wss://ws.backpack.exchange"),
		VenueBaseURL:     getEnv("VENUE_REST_URL", "https://api.deepcoin.com"),
		VenueAPIKey:      os.Getenv("VENUE_API_KEY"),
		VenueAPISecret:   os.Getenv("VENUE_API_SECRET"),
		VenuePassphrase:  os.Getenv("VENUE_PASSPHRASE"),
		DryRun:           getEnv("DRY_RUN", "true") == "true",
		DryRunEquity:     getEnvFloat("DRY_RUN_EQUITY", 10000),
		Leverage:         getEnvFloat("LEVERAGE", 10),
		BaseOrderSize:    getEnvFloat("BASE_ORDER_SIZE", 0.1),
		DeciderMode:      getEnv("DECIDER_MODE", "rule"),
		DeciderURL:       getEnv("DECIDER_URL", ""),
		DeciderTimeout:   getEnvDuration("DECIDER_TIMEOUT", 120*time.Second),
		CooldownBars:     getEnvInt("COOLDOWN_BARS", 3),
		MarginFraction:   getEnvFloat("MARGIN_FRACTION", 0.10),
		MaxDailyTrades:   getEnvInt("MAX_DAILY_TRADES", 20),
		MaxDailyLoss:     getEnvFloat("MAX_DAILY_LOSS", 500),
		DBPath:           getEnv("DB_PATH", "./data/engine.db"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
