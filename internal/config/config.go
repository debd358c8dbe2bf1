package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv     string
	Port        string
	JWTSecret   string
	LogLevel    string
	LogFormat   string
	Database    DatabaseConfig
	ShipStation ShipStationConfig
	Storage     StorageConfig
	LotLogPath  string

	// SyncRateLimitPerMin bounds how often a single client may trigger a fulfillment sync
	SyncRateLimitPerMin int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver     string // "postgres" (default) or "sqlite"
	SQLitePath string
	Host       string
	Port       string
	Username   string
	Password   string
	Database   string
	Alter      bool
}

// ShipStationConfig holds the fulfillment API settings
type ShipStationConfig struct {
	URL          string
	APIKey       string
	APISecret    string
	PageSize     int
	MaxPages     int
	MaxRetries   int
	LookbackDays int
	// RequestsPerMin paces outbound calls under the provider quota
	RequestsPerMin int
}

// Enabled reports whether credentials for the fulfillment API are present
func (c ShipStationConfig) Enabled() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// StorageConfig selects where generated artifacts (tracing reports) are written
type StorageConfig struct {
	Provider       string // "local" or "gcs"
	LocalDir       string
	GCSBucket      string
	GCSCredentials string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3210"),
		JWTSecret: jwtSecret,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			SQLitePath: getEnv("SQLITE_PATH", "./data/qms.db"),
			Host:       getEnv("PG_HOST", "localhost"),
			Port:       getEnv("PG_PORT", "5432"),
			Username:   getEnv("PG_USERNAME", "postgres"),
			Password:   os.Getenv("PG_PASSWORD"),
			Database:   getEnv("PG_DATABASE", "qms"),
			Alter:      getEnv("DB_ALTER", "false") == "true",
		},
		ShipStation: ShipStationConfig{
			URL:            strings.TrimRight(getEnv("SHIPSTATION_API_URL", "https://ssapi.shipstation.com"), "/"),
			APIKey:         os.Getenv("SHIPSTATION_API_KEY"),
			APISecret:      os.Getenv("SHIPSTATION_API_SECRET"),
			PageSize:       getEnvInt("SHIPSTATION_PAGE_SIZE", 100),
			MaxPages:       getEnvInt("SHIPSTATION_MAX_PAGES", 50),
			MaxRetries:     getEnvInt("SHIPSTATION_MAX_RETRIES", 4),
			LookbackDays:   getEnvInt("SHIPSTATION_LOOKBACK_DAYS", 30),
			RequestsPerMin: getEnvInt("SHIPSTATION_REQUESTS_PER_MIN", 40),
		},
		Storage: StorageConfig{
			Provider:       strings.ToLower(getEnv("STORAGE_PROVIDER", "local")),
			LocalDir:       getEnv("STORAGE_LOCAL_DIR", "./data/artifacts"),
			GCSBucket:      os.Getenv("GCS_BUCKET"),
			GCSCredentials: os.Getenv("GCS_CREDENTIALS_JSON"),
		},
		LotLogPath:          os.Getenv("LOT_LOG_PATH"),
		SyncRateLimitPerMin: getEnvInt("SYNC_RATE_LIMIT_PER_MIN", 2),
	}

	if cfg.Storage.Provider == "gcs" && cfg.Storage.GCSBucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required when STORAGE_PROVIDER=gcs")
	}

	return cfg, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
