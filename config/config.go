package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crypto-portfolio/database"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	Port      int
	StoreKind string

	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	CoinMarketCapAPIKey string
	CoinMarketCapURL    string
	CoinGeckoURL        string

	PriceStaleAfter time.Duration
	PriceTimeout    time.Duration
	QuoteCacheTTL   time.Duration
	ListingCacheTTL time.Duration

	AutoCreateAccounts bool
	WarmupSchedule     string

	LogLevel  string
	LogPretty bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := &Config{
		StoreKind:           strings.ToLower(getEnv("STORE_KIND", StorePostgres)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DBHost:              getEnv("DB_HOST", "127.0.0.1"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "postgres"),
		DBPassword:          os.Getenv("DB_PASSWORD"),
		DBName:              getEnv("DB_NAME", "postgres"),
		RedisAddr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CoinMarketCapAPIKey: os.Getenv("COINMARKETCAP_API_KEY"),
		CoinMarketCapURL:    os.Getenv("COINMARKETCAP_URL"),
		CoinGeckoURL:        os.Getenv("COINGECKO_URL"),
		WarmupSchedule:      os.Getenv("WARMUP_SCHEDULE"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.PriceStaleAfter, err = getDuration("PRICE_STALE_AFTER", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PriceTimeout, err = getDuration("PRICE_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.QuoteCacheTTL, err = getDuration("QUOTE_CACHE_TTL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.ListingCacheTTL, err = getDuration("LISTING_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AutoCreateAccounts, err = getBool("AUTO_CREATE_ACCOUNTS", true); err != nil {
		return nil, err
	}
	if cfg.LogPretty, err = getBool("LOG_PRETTY", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreKind {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_KIND %q", c.StoreKind)
	}
	if c.PriceStaleAfter <= 0 || c.PriceTimeout <= 0 {
		return errors.New("price durations must be positive")
	}
	return nil
}

// DSN prefers DATABASE_URL and otherwise assembles one from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// NewDB opens the Postgres ledger database.
func NewDB(cfg *Config, log zerolog.Logger) (*gorm.DB, error) {
	return database.Open(postgres.Open(cfg.DSN()), log)
}

// NewRedis connects and pings Redis.
func NewRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
