package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"

	ProviderModeHTTP    = "http"
	ProviderModeSandbox = "sandbox"
)

// DefaultMinAmount is the production minimum charge in FCFA.
const DefaultMinAmount = 10000

type Config struct {
	Environment string
	ServerPort  string
	StoreDriver string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	MongoURI      string
	MongoDatabase string

	MinAmount decimal.Decimal

	ProviderMode      string
	ProviderBaseURL   string
	ProviderAppKey    string
	ProviderAccessKey string
	ProviderSecretKey string
	ProviderCountry   string
	ProviderTimeout   time.Duration

	SMSWebhookURL string
	SMSAPIToken   string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		Environment: getEnv("APP_ENV", EnvProduction),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "momo_payments"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "momo_payments"),

		MinAmount: getDecimal("MIN_AMOUNT", decimal.NewFromInt(DefaultMinAmount)),

		ProviderMode:      getEnv("PROVIDER_MODE", ProviderModeHTTP),
		ProviderBaseURL:   getEnv("PROVIDER_BASE_URL", "https://mesomb.hachther.com/api/v1.1"),
		ProviderAppKey:    os.Getenv("PROVIDER_APP_KEY"),
		ProviderAccessKey: os.Getenv("PROVIDER_ACCESS_KEY"),
		ProviderSecretKey: os.Getenv("PROVIDER_SECRET_KEY"),
		ProviderCountry:   getEnv("PROVIDER_COUNTRY", "CM"),
		ProviderTimeout:   getDuration("PROVIDER_TIMEOUT", 30*time.Second),

		SMSWebhookURL: os.Getenv("SMS_WEBHOOK_URL"),
		SMSAPIToken:   os.Getenv("SMS_API_TOKEN"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// IsProduction reports whether internal error details must be hidden.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		slog.Warn("Invalid amount in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
