package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"paperTrader/internal/adapters/logger" // Import the logger package for LogLevel
	"paperTrader/internal/valuation"
)

// Config holds all application configuration.
type Config struct {
	// Account
	InitialCapital float64
	FeeRate        float64 // taker fee as a fraction of notional

	// Tracked markets
	Symbols []string // futures symbols, e.g. BTCUSDT,ETHUSDT

	// Risk parameters
	Coins          valuation.CoinConfig
	RiskThresholds valuation.RiskThresholds

	// Price feed
	IsTestnet            bool
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PriceStalenessBound  time.Duration // updates older than this are dropped

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.InitialCapital, err = getEnvAsFloatRequired("INITIAL_CAPITAL", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CAPITAL: %v", err))
	} else if cfg.InitialCapital <= 0 {
		errs = append(errs, "INITIAL_CAPITAL must be positive")
	}

	cfg.FeeRate, err = getEnvAsFloatRequired("FEE_RATE", 0.0004)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_RATE: %v", err))
	} else if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		errs = append(errs, "FEE_RATE must be in [0.0, 1.0)")
	}

	symbolsStr := getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")
	for _, s := range strings.Split(symbolsStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one futures symbol")
	}

	// Per-coin risk table: built-in defaults plus optional COIN_CONFIG
	// overrides in the form "BTC:0.004:125,ETH:0.005:100" (coin:mmr:maxLev).
	cfg.Coins = valuation.DefaultCoinConfig()
	if overrides := getEnv("COIN_CONFIG", ""); overrides != "" {
		if err := applyCoinOverrides(cfg.Coins, overrides); err != nil {
			errs = append(errs, fmt.Sprintf("invalid COIN_CONFIG: %v", err))
		}
	}
	if err := cfg.Coins.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid coin config: %v", err))
	}

	cfg.RiskThresholds = valuation.RiskThresholds{
		Safe:    getEnvAsFloat("RISK_SAFE_THRESHOLD", 150),
		Warning: getEnvAsFloat("RISK_WARNING_THRESHOLD", 120),
		Danger:  getEnvAsFloat("RISK_DANGER_THRESHOLD", 110),
	}
	if err := cfg.RiskThresholds.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	stalenessSeconds := getEnvAsInt("PRICE_STALENESS_SECONDS", 30)
	if stalenessSeconds <= 0 {
		errs = append(errs, "PRICE_STALENESS_SECONDS must be positive")
	}
	cfg.PriceStalenessBound = time.Duration(stalenessSeconds) * time.Second

	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// applyCoinOverrides parses "COIN:mmr:maxLeverage" triples and merges them
// into the table.
func applyCoinOverrides(coins valuation.CoinConfig, overrides string) error {
	for _, entry := range strings.Split(overrides, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return fmt.Errorf("entry %q must be coin:mmr:maxLeverage", entry)
		}
		coin := strings.ToUpper(strings.TrimSpace(parts[0]))
		mmr, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return fmt.Errorf("entry %q: bad maintenance margin rate: %v", entry, err)
		}
		maxLev, err := strconv.Atoi(parts[2])
		if err != nil {
			return fmt.Errorf("entry %q: bad max leverage: %v", entry, err)
		}
		coins[coin] = valuation.CoinParams{MaintenanceMarginRate: mmr, MaxLeverage: maxLev}
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(valueStr, 64)
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
