package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the scanner backend
type Config struct {
	Port        string
	Environment string
	JWTSecret   string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	TelegramData string

	CandleBaseURL   string
	Exchange        string
	Segment         string
	IntervalMinutes int
	FetchTimeout    time.Duration
	MaxRetries      int

	SymbolFile    string
	SymbolFileID  string
	SymbolFileURL string

	Capital     float64
	Margin      int
	BreakoutPct float64
	TargetPct   float64
	StoplossPct float64
	MinVolume   int64

	MaxWorkers     int
	FallbackRounds int
	FallbackPause  time.Duration

	SessionStart string
	SessionEnd   string
	SellCutoff   string

	SchedulerEnabled bool
}

var AppConfig *Config

// Market is the exchange-local timezone (IST). The fixed-offset fallback
// covers systems without tzdata.
var Market *time.Location

func init() {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+30*60)
	}
	Market = loc
}

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DB", "trading"),
		MongoCollection: getEnv("MONGO_COLLECTION", "daily_signals"),

		TelegramData: getEnv("TELEGRAM_DATA", ""),

		CandleBaseURL:   getEnv("CANDLE_BASE_URL", "https://groww.in/v1/api/charting_service/v2/chart/delayed"),
		Exchange:        getEnv("EXCHANGE", "NSE"),
		Segment:         getEnv("SEGMENT", "CASH"),
		IntervalMinutes: getEnvInt("INTERVAL_MINUTES", 3),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),

		SymbolFile:    getEnv("SYMBOL_FILE", "data/obj_data.json"),
		SymbolFileID:  getEnv("SYMBOL_FILE_ID", ""),
		SymbolFileURL: getEnv("SYMBOL_FILE_URL", "https://drive.google.com/uc?export=download"),

		Capital:     getEnvFloat("CAPITAL", 20000),
		Margin:      getEnvInt("MARGIN", 5),
		BreakoutPct: getEnvFloat("BREAKOUT_PCT", 0.03),
		TargetPct:   getEnvFloat("TARGET_PCT", 0.03),
		StoplossPct: getEnvFloat("STOPLOSS_PCT", 0.02),
		MinVolume:   int64(getEnvInt("MIN_VOLUME", 100)),

		MaxWorkers:     getEnvInt("MAX_WORKERS", 15),
		FallbackRounds: getEnvInt("FALLBACK_ROUNDS", 3),
		FallbackPause:  getEnvDuration("FALLBACK_PAUSE", 2*time.Second),

		SessionStart: getEnv("SESSION_START", "09:15"),
		SessionEnd:   getEnv("SESSION_END", "15:30"),
		SellCutoff:   getEnv("SELL_CUTOFF", "10:00"),

		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}

	AppConfig = config
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}
