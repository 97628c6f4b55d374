package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Session   SessionConfig
	Tracking  TrackingConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
	PublicAppURL       string // base URL used to build direct-access links, e.g. https://watch.example.com
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/funnel?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds admin JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the branding/thumbnail asset bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AssetsBucket         string
	AssetsPrivate        bool // presign asset URLs instead of returning public object URLs
	PresignExpireMinutes int
}

// SessionConfig holds lead session binding settings.
type SessionConfig struct {
	TTL        time.Duration
	CookieName string
	Secure     bool
	CacheTTL   time.Duration // upper bound for the Redis copy of a binding
}

// TrackingConfig holds progress reconciliation settings.
type TrackingConfig struct {
	CompletionThreshold float64 // percent at which a lesson counts as completed
	WatchTimeQuantum    int     // seconds added to leads.total_watch_time per progress submission
}

// WebhookConfig holds inbound lead webhook and outbound event webhook settings.
type WebhookConfig struct {
	APIKey          string // expected X-API-Key on inbound lead webhooks; empty disables the check
	DeliveryTimeout time.Duration
}

// RateLimitConfig throttles the public identity endpoints per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	SessionSweepInterval time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			PublicAppURL:       strings.TrimRight(getEnv("PUBLIC_APP_URL", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "funnel"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AssetsBucket:         getEnv("AWS_S3_ASSETS_BUCKET", "webinar-assets"),
			AssetsPrivate:        getEnvBool("AWS_S3_ASSETS_PRIVATE", false),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Session: SessionConfig{
			TTL:        time.Duration(getEnvInt("LEAD_SESSION_TTL_HOURS", 24*30)) * time.Hour,
			CookieName: getEnv("LEAD_SESSION_COOKIE", "lead_sid"),
			Secure:     getEnvBool("LEAD_SESSION_SECURE", false),
			CacheTTL:   time.Duration(getEnvInt("LEAD_SESSION_CACHE_SEC", 600)) * time.Second,
		},
		Tracking: TrackingConfig{
			CompletionThreshold: getEnvFloat("COMPLETION_THRESHOLD_PERCENT", 90),
			WatchTimeQuantum:    getEnvInt("WATCH_TIME_QUANTUM_SEC", 10),
		},
		Webhook: WebhookConfig{
			APIKey:          getEnv("WEBHOOK_API_KEY", ""),
			DeliveryTimeout: time.Duration(getEnvInt("EVENT_WEBHOOK_TIMEOUT_SEC", 10)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
		},
		Worker: WorkerConfig{
			SessionSweepInterval: time.Duration(getEnvInt("SESSION_SWEEP_INTERVAL_MIN", 60)) * time.Minute,
		},
	}
	if cfg.Tracking.CompletionThreshold <= 0 || cfg.Tracking.CompletionThreshold > 100 {
		return nil, fmt.Errorf("COMPLETION_THRESHOLD_PERCENT must be in (0, 100], got %v", cfg.Tracking.CompletionThreshold)
	}
	if cfg.Session.TTL <= 0 {
		return nil, fmt.Errorf("LEAD_SESSION_TTL_HOURS must be positive")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
