// Package config loads runtime configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func GetDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

type Config struct {
	Env         string
	Port        string
	LogLevel    string
	JWTSecret   string
	CORSOrigins string
	PublicURL   string

	DB        DBConfig
	Redis     RedisConfig
	Account   AccountConfig
	Rates     RatesConfig
	Payment   PaymentConfig
	Webhook   WebhookConfig
	Scheduler SchedulerConfig

	StripeSecretKey string
	IdempotencyTTL  time.Duration
	InFlightTTL     time.Duration
}

type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type AccountConfig struct {
	IssuerPrefix      string
	MaxPerUser        int
	Currency          string
	RequireActivation bool
}

type RatesConfig struct {
	Stars   decimal.Decimal
	Onchain decimal.Decimal
}

type PaymentConfig struct {
	RequestTTL time.Duration
	ClaimLease time.Duration
	// DefaultCommissionRate applies to developers registered without an
	// explicit rate.
	DefaultCommissionRate decimal.Decimal
}

type WebhookConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Workers     int
	BatchSize   int
}

type SchedulerConfig struct {
	ExpiryInterval  time.Duration
	WebhookInterval time.Duration
	LockTTL         time.Duration
}

// Load reads the full configuration. LoadEnv should be called first.
func Load() *Config {
	return &Config{
		Env:         GetEnv("ENV", "development"),
		Port:        GetEnv("PORT", "3000"),
		LogLevel:    strings.ToLower(GetEnv("LOG_LEVEL", "info")),
		JWTSecret:   GetEnv("JWT_SECRET", "cardpay"),
		CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		PublicURL:   strings.TrimRight(GetEnv("PUBLIC_URL", "http://localhost:3000"), "/"),
		DB: DBConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "cardpay"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  GetBoolEnv("REDIS_ENABLED", true),
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Account: AccountConfig{
			IssuerPrefix:      GetEnv("ACCOUNT_ISSUER_PREFIX", "400"),
			MaxPerUser:        GetIntEnv("ACCOUNT_MAX_PER_USER", 3),
			Currency:          GetEnv("ACCOUNT_CURRENCY", "USD"),
			RequireActivation: GetBoolEnv("ACCOUNT_REQUIRE_ACTIVATION", false),
		},
		Rates: RatesConfig{
			Stars:   GetDecimalEnv("STARS_RATE", decimal.RequireFromString("0.5")),
			Onchain: GetDecimalEnv("ONCHAIN_RATE", decimal.NewFromInt(250)),
		},
		Payment: PaymentConfig{
			RequestTTL: GetDurationEnv("PAYMENT_REQUEST_TTL", 30*time.Minute),
			ClaimLease: GetDurationEnv("PAYMENT_CLAIM_LEASE", 2*time.Minute),

			DefaultCommissionRate: GetDecimalEnv("DEFAULT_COMMISSION_RATE", decimal.RequireFromString("0.02")),
		},
		Webhook: WebhookConfig{
			Timeout:     GetDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts: GetIntEnv("WEBHOOK_MAX_ATTEMPTS", 6),
			Workers:     GetIntEnv("WEBHOOK_WORKERS", 4),
			BatchSize:   GetIntEnv("WEBHOOK_BATCH_SIZE", 50),
		},
		Scheduler: SchedulerConfig{
			ExpiryInterval:  GetDurationEnv("EXPIRY_SWEEP_INTERVAL", time.Minute),
			WebhookInterval: GetDurationEnv("WEBHOOK_POLL_INTERVAL", 15*time.Second),
			LockTTL:         GetDurationEnv("SCHEDULER_LOCK_TTL", 50*time.Second),
		},
		StripeSecretKey: GetEnv("STRIPE_SECRET_KEY", ""),
		IdempotencyTTL:  GetDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
		InFlightTTL:     GetDurationEnv("IDEMPOTENCY_IN_FLIGHT_TTL", time.Minute),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
