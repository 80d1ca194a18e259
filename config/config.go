package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// RateBudget is one fixed-window rate-limit budget for an operation class.
type RateBudget struct {
	Max    int
	Window time.Duration
}

// AnomalyThresholds are the tunables for the access-log anomaly detector.
// Each threshold is an independent trigger; any one firing marks the file
// suspicious.
type AnomalyThresholds struct {
	MaxAccessCount  int
	MaxUniqueIPs    int
	MaxFailures     int
	MaxFailureRatio float64
	MinSampleSize   int
}

// Config captures every environment-driven setting. Secrets and lifetimes
// are injected from here at construction time, never read from ambient
// globals inside the components.
type Config struct {
	Port        string
	DatabaseURL string
	BaseURL     string
	UploadDir   string

	JWTSecret        string
	CapabilitySecret string

	DefaultTokenLifetime time.Duration
	MaxTokenLifetime     time.Duration
	FileExpiry           time.Duration

	FileRead    RateBudget
	IssueURL    RateBudget
	IssueBatch  RateBudget
	Delete      RateBudget
	DeleteBatch RateBudget

	Anomaly      AnomalyThresholds
	MaxBatchSize int
}

const defaultPort = "8080"

// Load reads .env (when present) and the process environment into a Config.
func Load() (Config, error) {
	if os.Getenv("RENDER") == "" {
		_ = godotenv.Load()
	}

	cfg := Config{
		Port:        envString("PORT", defaultPort),
		DatabaseURL: os.Getenv("DB_URL"),
		BaseURL:     envString("BASE_URL", "http://localhost:8080"),
		UploadDir:   envString("UPLOAD_DIR", "uploads"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		CapabilitySecret: os.Getenv("CAPABILITY_SECRET"),

		DefaultTokenLifetime: envDuration("DEFAULT_TOKEN_LIFETIME_SECONDS", 15*time.Minute),
		MaxTokenLifetime:     envDuration("MAX_TOKEN_LIFETIME_SECONDS", 24*time.Hour),
		FileExpiry:           envDuration("FILE_EXPIRY_SECONDS", 7*24*time.Hour),

		FileRead:    RateBudget{Max: envInt("RATE_FILE_READ_MAX", 30), Window: envDuration("RATE_FILE_READ_WINDOW_SECONDS", 15*time.Minute)},
		IssueURL:    RateBudget{Max: envInt("RATE_ISSUE_URL_MAX", 20), Window: envDuration("RATE_ISSUE_URL_WINDOW_SECONDS", 10*time.Minute)},
		IssueBatch:  RateBudget{Max: envInt("RATE_ISSUE_BATCH_MAX", 5), Window: envDuration("RATE_ISSUE_BATCH_WINDOW_SECONDS", 10*time.Minute)},
		Delete:      RateBudget{Max: envInt("RATE_DELETE_MAX", 10), Window: envDuration("RATE_DELETE_WINDOW_SECONDS", 10*time.Minute)},
		DeleteBatch: RateBudget{Max: envInt("RATE_DELETE_BATCH_MAX", 3), Window: envDuration("RATE_DELETE_BATCH_WINDOW_SECONDS", 15*time.Minute)},

		Anomaly: AnomalyThresholds{
			MaxAccessCount:  envInt("ANOMALY_MAX_ACCESS_COUNT", 100),
			MaxUniqueIPs:    envInt("ANOMALY_MAX_UNIQUE_IPS", 20),
			MaxFailures:     envInt("ANOMALY_MAX_FAILURES", 20),
			MaxFailureRatio: envFloat("ANOMALY_MAX_FAILURE_RATIO", 0.5),
			MinSampleSize:   envInt("ANOMALY_MIN_SAMPLE_SIZE", 10),
		},
		MaxBatchSize: envInt("MAX_BATCH_SIZE", 10),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DB_URL is not set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is not set")
	}
	if cfg.CapabilitySecret == "" {
		return Config{}, fmt.Errorf("CAPABILITY_SECRET is not set")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
