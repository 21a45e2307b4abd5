package config

import (
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Log      LogConfig
	Storage  StorageConfig
	Rides    RidesConfig
	Presence PresenceConfig
	SMTP     SMTPConfig
	Mail     MailConfig
	Dispatch DispatchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins lists browser origins allowed for CORS and websockets.
	// "*" allows any origin; empty allows same-origin only.
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string
}

// Ride store drivers.
const (
	RideStorePostgres = "postgres"
	RideStoreMongo    = "mongo"
)

// StorageConfig selects where rides live. Users always live in PostgreSQL.
type StorageConfig struct {
	RideStore string
	MongoURI  string
	MongoDB   string
}

// RidesConfig holds lifecycle policy.
type RidesConfig struct {
	CancelRequiresRequester bool
}

// PresenceConfig holds online-user tracking configuration.
type PresenceConfig struct {
	TTL time.Duration
}

// SMTPConfig holds mail relay configuration. An empty Host disables SMTP.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	FromName           string
	InsecureSkipVerify bool
}

// MailConfig holds the mail queue configuration.
type MailConfig struct {
	QueueEnabled bool
	NSQDAddr     string
	LookupdAddrs []string
	Topic        string
	Channel      string
	MaxAttempts  int
}

// DispatchConfig bounds background side effects.
type DispatchConfig struct {
	Timeout time.Duration
}

// Load loads configuration from environment variables, after reading a .env
// file if one exists. Variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "syncway"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "syncway"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			RideStore: strings.ToLower(getEnv("RIDE_STORE", RideStorePostgres)),
			MongoURI:  getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:   getEnv("MONGO_DB", "syncway"),
		},
		Rides: RidesConfig{
			CancelRequiresRequester: getBoolEnv("RIDES_CANCEL_REQUIRES_REQUESTER", true),
		},
		Presence: PresenceConfig{
			TTL: getDurationEnv("PRESENCE_TTL", 90*time.Second),
		},
		SMTP: SMTPConfig{
			Host:               getEnv("SMTP_HOST", ""),
			Port:               getIntEnv("SMTP_PORT", 587),
			Username:           getEnv("SMTP_USERNAME", ""),
			Password:           getEnv("SMTP_PASSWORD", ""),
			From:               getEnv("SMTP_FROM", ""),
			FromName:           getEnv("SMTP_FROM_NAME", "SyncWay"),
			InsecureSkipVerify: getBoolEnv("SMTP_INSECURE_SKIP_VERIFY", false),
		},
		Mail: MailConfig{
			QueueEnabled: getBoolEnv("MAIL_QUEUE_ENABLED", false),
			NSQDAddr:     getEnv("NSQD_ADDR", "localhost:4150"),
			LookupdAddrs: getListEnv("NSQ_LOOKUPD", nil),
			Topic:        getEnv("MAIL_TOPIC", "syncway.mail"),
			Channel:      getEnv("MAIL_CHANNEL", "mailer"),
			MaxAttempts:  clampInt(getIntEnv("MAIL_MAX_ATTEMPTS", 5), 1, math.MaxUint16),
		},
		Dispatch: DispatchConfig{
			Timeout: getDurationEnv("DISPATCH_TIMEOUT", 30*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OriginAllowed reports whether a browser origin may call the API. Requests
// without an Origin header, and origins matching requestHost, always pass.
func OriginAllowed(allowed []string, origin, requestHost string) bool {
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, requestHost) {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
