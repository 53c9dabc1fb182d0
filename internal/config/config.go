// Package config provides configuration management functionality.
// All options come from HYNOUS_* environment variables, with a .env file
// loaded first when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/hynous/hynous-data/internal/utils"
)

// canonicalHLPVault is the exchange's house liquidity provider vault.
const canonicalHLPVault = "0xdfc24b077bc1425ad1dea75bcb6f8158e10df303"

// Config holds application configuration.
type Config struct {
	// Server
	Host string
	Port int

	// Storage
	DataDir   string // Base directory for the database and PID file (always absolute)
	PruneDays int    // Rolling retention for time-series tables

	// Rate limit
	MaxWeightPerMin int
	SafetyPct       float64

	// Trade stream
	TradeStreamEnabled bool

	// Position poller
	PollerEnabled  bool
	PollerWorkers  int
	Tier1Interval  time.Duration
	Tier2Interval  time.Duration
	Tier3Interval  time.Duration
	WhaleThreshold float64
	MidThreshold   float64

	// HLP vault tracker
	HLPEnabled      bool
	HLPPollInterval time.Duration
	HLPVaults       []string

	// Heatmap
	HeatmapInterval    time.Duration
	HeatmapBucketCount int
	HeatmapRangePct    float64

	// Order flow
	OrderFlowWindows []int // seconds

	// Smart money
	SmartMoney SmartMoneyConfig

	// Logging
	LogLevel      string
	LogPretty     bool
	LogTimeFormat string

	// Exchange endpoints
	APIURL string
	WSURL  string

	// Backfill
	Backfill BackfillConfig
}

// SmartMoneyConfig holds the smart-money engine and profiler options.
type SmartMoneyConfig struct {
	ProfileWindowDays   int
	ProfileRefreshHours int
	MinEquity           float64
	MinTradesForProfile int
	BotTradesPerDay     float64
	BotAvgHoldMin       float64
	MaxProfilesPerCycle int
	AlertMinEquity      float64
	AlertMinWinRate     float64
	AutoCurateEnabled   bool
	AutoCurateTopN      int
}

// BackfillConfig holds the offline S3 archive reader options.
type BackfillConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // Optional override for S3-compatible stores
	AccessKey string // Empty = anonymous access
	SecretKey string
	RPS       int // S3 request pacing
}

// DBPath returns the database file location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "hynous-data.db")
}

// PIDPath returns the single-instance lock file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "hynous-data.pid")
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it
	// exists before anything tries to open the database.
	dataDir := getEnv("HYNOUS_DATA_DIR", "storage")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	vaults := utils.ParseCSV(getEnv("HYNOUS_HLP_VAULTS", canonicalHLPVault))
	windows := parseWindows(getEnv("HYNOUS_ORDER_FLOW_WINDOWS", "60,300,900,3600"))

	cfg := &Config{
		Host:      getEnv("HYNOUS_SERVER_HOST", "0.0.0.0"),
		Port:      getEnvAsInt("HYNOUS_SERVER_PORT", 8420),
		DataDir:   absDataDir,
		PruneDays: getEnvAsInt("HYNOUS_DB_PRUNE_DAYS", 7),

		MaxWeightPerMin: getEnvAsInt("HYNOUS_RATE_MAX_WEIGHT_PER_MIN", 1200),
		SafetyPct:       getEnvAsFloat("HYNOUS_RATE_SAFETY_PCT", 70),

		TradeStreamEnabled: getEnvAsBool("HYNOUS_TRADE_STREAM_ENABLED", true),

		PollerEnabled:  getEnvAsBool("HYNOUS_POLLER_ENABLED", true),
		PollerWorkers:  getEnvAsInt("HYNOUS_POLLER_WORKERS", 8),
		Tier1Interval:  getEnvAsDuration("HYNOUS_POLLER_TIER1_INTERVAL", 300*time.Second),
		Tier2Interval:  getEnvAsDuration("HYNOUS_POLLER_TIER2_INTERVAL", 900*time.Second),
		Tier3Interval:  getEnvAsDuration("HYNOUS_POLLER_TIER3_INTERVAL", 3600*time.Second),
		WhaleThreshold: getEnvAsFloat("HYNOUS_POLLER_WHALE_THRESHOLD", 1_000_000),
		MidThreshold:   getEnvAsFloat("HYNOUS_POLLER_MID_THRESHOLD", 100_000),

		HLPEnabled:      getEnvAsBool("HYNOUS_HLP_ENABLED", true),
		HLPPollInterval: getEnvAsDuration("HYNOUS_HLP_POLL_INTERVAL", 60*time.Second),
		HLPVaults:       vaults,

		HeatmapInterval:    getEnvAsDuration("HYNOUS_HEATMAP_RECOMPUTE_INTERVAL", 30*time.Second),
		HeatmapBucketCount: getEnvAsInt("HYNOUS_HEATMAP_BUCKET_COUNT", 50),
		HeatmapRangePct:    getEnvAsFloat("HYNOUS_HEATMAP_RANGE_PCT", 0.10),

		OrderFlowWindows: windows,

		SmartMoney: SmartMoneyConfig{
			ProfileWindowDays:   getEnvAsInt("HYNOUS_SM_PROFILE_WINDOW_DAYS", 30),
			ProfileRefreshHours: getEnvAsInt("HYNOUS_SM_PROFILE_REFRESH_HOURS", 6),
			MinEquity:           getEnvAsFloat("HYNOUS_SM_MIN_EQUITY", 10_000),
			MinTradesForProfile: getEnvAsInt("HYNOUS_SM_MIN_TRADES_FOR_PROFILE", 5),
			BotTradesPerDay:     getEnvAsFloat("HYNOUS_SM_BOT_TRADES_PER_DAY", 50),
			BotAvgHoldMin:       getEnvAsFloat("HYNOUS_SM_BOT_AVG_HOLD_MIN", 2),
			MaxProfilesPerCycle: getEnvAsInt("HYNOUS_SM_MAX_PROFILES_PER_CYCLE", 50),
			AlertMinEquity:      getEnvAsFloat("HYNOUS_SM_ALERT_MIN_EQUITY", 50_000),
			AlertMinWinRate:     getEnvAsFloat("HYNOUS_SM_ALERT_MIN_WIN_RATE", 0.55),
			AutoCurateEnabled:   getEnvAsBool("HYNOUS_SM_AUTO_CURATE_ENABLED", false),
			AutoCurateTopN:      getEnvAsInt("HYNOUS_SM_AUTO_CURATE_TOP_N", 10),
		},

		LogLevel:      getEnv("HYNOUS_LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("HYNOUS_LOG_PRETTY", true),
		LogTimeFormat: getEnv("HYNOUS_LOG_TIME_FORMAT", "15:04:05"),

		APIURL: getEnv("HYNOUS_API_URL", "https://api.hyperliquid.xyz"),
		WSURL:  getEnv("HYNOUS_WS_URL", "wss://api.hyperliquid.xyz/ws"),

		Backfill: BackfillConfig{
			Bucket:    getEnv("HYNOUS_S3_BUCKET", "hyperliquid-archive"),
			Prefix:    getEnv("HYNOUS_S3_PREFIX", "market_data"),
			Region:    getEnv("HYNOUS_S3_REGION", "us-east-1"),
			Endpoint:  getEnv("HYNOUS_S3_ENDPOINT", ""),
			AccessKey: getEnv("HYNOUS_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("HYNOUS_S3_SECRET_KEY", ""),
			RPS:       getEnvAsInt("HYNOUS_BACKFILL_RPS", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Port)
	}
	if c.SafetyPct < 0 || c.SafetyPct > 100 {
		return fmt.Errorf("rate limit safety_pct must be in [0,100], got %v", c.SafetyPct)
	}
	if c.PollerWorkers <= 0 {
		return fmt.Errorf("poller workers must be positive, got %d", c.PollerWorkers)
	}
	if c.HLPEnabled && len(c.HLPVaults) == 0 {
		return fmt.Errorf("HLP tracker enabled with an empty vault list")
	}
	if c.HeatmapBucketCount <= 0 {
		return fmt.Errorf("heatmap bucket count must be positive, got %d", c.HeatmapBucketCount)
	}
	if c.HeatmapRangePct <= 0 {
		return fmt.Errorf("heatmap range pct must be positive, got %v", c.HeatmapRangePct)
	}
	if len(c.OrderFlowWindows) == 0 {
		return fmt.Errorf("order flow windows list is empty")
	}
	if c.PruneDays <= 0 {
		return fmt.Errorf("prune days must be positive, got %d", c.PruneDays)
	}
	return nil
}

// parseWindows converts the CSV window list to seconds, dropping anything
// non-positive or unparseable.
func parseWindows(s string) []int {
	var windows []int
	for _, raw := range utils.ParseCSV(s) {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			continue
		}
		windows = append(windows, seconds)
	}
	return windows
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration reads a duration either as a Go duration string
// ("90s", "5m") or as a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
