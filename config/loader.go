package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tuning knob for the SCF, Analyzer, Risk Manager, and
// Paper Executor, loaded from .env/environment; an unset or unparseable
// variable falls back to its default (no range check is applied), the same
// strconv.ParseFloat/Atoi fallback pattern as the original Binance-era
// LoadConfig.
type Config struct {
	ClusterFeedURL      string
	PriceTrackerFeedURL string
	TwitterFeedURL      string
	FeeFeedURL          string

	AnalyzerWorkers    int
	AnalyzerQueueDepth int
	JobTimeout         time.Duration
	Cooldown           time.Duration
	CooldownBump       float64

	InitialCapital     float64
	AllowRiskyEmission bool

	SCFDedupWindow time.Duration

	PerformanceStatePath string
	LedgerStatePath      string
}

// LoadConfig loads variables from .env and returns a Config struct.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found. Relying on system environment variables.")
	}

	cfg := &Config{
		ClusterFeedURL:      getenv("CLUSTER_FEED_URL", "wss://pumpportal.fun/api/data"),
		PriceTrackerFeedURL: getenv("PRICE_TRACKER_FEED_URL", "wss://pumpportal.fun/api/data"),
		TwitterFeedURL:      getenv("TWITTER_FEED_URL", ""),
		FeeFeedURL:          getenv("FEE_FEED_URL", ""),

		AnalyzerWorkers:    getenvInt("ANALYZER_WORKERS", 4),
		AnalyzerQueueDepth: getenvInt("ANALYZER_QUEUE_DEPTH", 4096),
		JobTimeout:         getenvSeconds("ANALYZER_JOB_TIMEOUT_SEC", 15),
		Cooldown:           getenvSeconds("ANALYZER_COOLDOWN_SEC", 300),
		CooldownBump:       getenvFloat("ANALYZER_COOLDOWN_BUMP", 5),

		InitialCapital:     getenvFloat("INITIAL_CAPITAL", 100),
		AllowRiskyEmission: getenvBool("ALLOW_RISKY_EMISSION", false),

		SCFDedupWindow: getenvSeconds("SCF_DEDUP_WINDOW_SEC", 30),

		PerformanceStatePath: getenv("PERFORMANCE_STATE_PATH", "sentinel_performance.json"),
		LedgerStatePath:      getenv("LEDGER_STATE_PATH", "sentinel_ledger.json"),
	}

	if cfg.ClusterFeedURL == "" {
		log.Println("⚠️  CRITICAL: no cluster feed URL configured!")
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getenvInt(key, defSeconds)) * time.Second
}
