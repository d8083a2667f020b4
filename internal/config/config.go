package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Feed sources
	AnnouncementsURL string        `json:"announcements_url" validate:"required,url"`
	BlogURL          string        `json:"blog_url" validate:"required,url"`
	FetchTimeout     time.Duration `json:"fetch_timeout"`
	SyncInterval     time.Duration `json:"sync_interval" validate:"min=1m"`

	// Persistence
	DBPath string `json:"db_path" validate:"required"`

	// Redis configuration (optional; in-memory cache when unset)
	RedisURL    string        `json:"redis_url"`
	RedisPrefix string        `json:"redis_prefix"`
	CacheTTL    time.Duration `json:"cache_ttl"`

	// Notifications
	NotifyURL     string `json:"notify_url" validate:"omitempty,url"`
	NotifyEnabled bool   `json:"notify_enabled"`

	// S3/R2 snapshot backup (optional; disabled without credentials)
	S3Endpoint     string        `json:"s3_endpoint"`
	S3AccessKey    string        `json:"s3_access_key"`
	S3SecretKey    string        `json:"s3_secret_key"`
	S3Bucket       string        `json:"s3_bucket"`
	BackupInterval time.Duration `json:"backup_interval"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Security
	AdminAPIKey string `json:"admin_api_key"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := FromEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// FromEnv builds a Config from the current environment without validating it.
func FromEnv() *Config {
	return &Config{
		// Server configuration
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		// Feed sources
		AnnouncementsURL: getEnv("ANNOUNCEMENTS_FEED_URL", ""),
		BlogURL:          getEnv("BLOG_FEED_URL", ""),
		FetchTimeout:     getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		SyncInterval:     getEnvAsDuration("SYNC_INTERVAL", 6*time.Hour),

		// Persistence
		DBPath: getEnv("DB_PATH", "./data/feedsync.db"),

		// Redis configuration
		RedisURL:    getEnv("REDIS_URL", ""),
		RedisPrefix: getEnv("REDIS_PREFIX", "feedsync:"),
		CacheTTL:    getEnvAsDuration("CACHE_TTL", 720*time.Hour), // 30 days

		// Notifications
		NotifyURL:     getEnv("NOTIFY_URL", ""),
		NotifyEnabled: getEnvAsBool("NOTIFY_ENABLED", false),

		// S3/R2 backup
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Bucket:       getEnv("S3_BUCKET", "feedsync"),
		BackupInterval: getEnvAsDuration("BACKUP_INTERVAL", 24*time.Hour),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Security
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %t", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
