package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"sjsage522/listingworker/pkg/errors"
)

// DefaultProxySource is the public proxy list used for warmup fallback
const DefaultProxySource = "https://cdn.jsdelivr.net/gh/proxifly/free-proxy-list@main/proxies/all/data.json"

// Config represents the application configuration
type Config struct {
	// Database configuration
	DatabaseURL      string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string

	// Redis configuration (run status). Empty address disables reporting.
	RedisAddr          string
	RedisDB            int
	RedisStatusChannel string

	// Memcache configuration (catalog cache). Empty address disables caching.
	MemcacheAddr string
	CatalogCache time.Duration

	// Session and fetching
	CookiesFile      string
	ChromeBin        string
	ChallengeWait    time.Duration
	HTTPTimeout      time.Duration
	ProxySourceURL   string
	ProxyMaxAttempts int
	StaleAfter       time.Duration
	FailureLogFile   string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheSeconds, _ := strconv.Atoi(getEnv("CATALOG_CACHE_SECONDS", "0"))
	challengeSeconds, _ := strconv.Atoi(getEnv("BROWSER_CHALLENGE_WAIT_SECONDS", "5"))
	timeoutSeconds, _ := strconv.Atoi(getEnv("HTTP_TIMEOUT_SECONDS", "15"))
	proxyAttempts, _ := strconv.Atoi(getEnv("PROXY_MAX_ATTEMPTS", "100"))
	staleHours, _ := strconv.Atoi(getEnv("STALE_AFTER_HOURS", "48"))

	return &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DatabaseHost:       getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:       getEnv("DATABASE_PORT", "5432"),
		DatabaseUser:       getEnv("DATABASE_USER", "postgres"),
		DatabasePassword:   getEnv("DATABASE_PASSWORD", ""),
		DatabaseName:       getEnv("DATABASE_NAME", "listings"),
		DatabaseSSLMode:    getEnv("DATABASE_SSLMODE", "disable"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisDB:            redisDB,
		RedisStatusChannel: getEnv("REDIS_STATUS_CHANNEL", "config_status"),
		MemcacheAddr:       getEnv("MEMCACHE_ADDR", ""),
		CatalogCache:       time.Duration(cacheSeconds) * time.Second,
		CookiesFile:        getEnv("SCRAPER_COOKIES_FILE", "cookies.json"),
		ChromeBin:          getEnv("CHROME_BIN", ""),
		ChallengeWait:      time.Duration(challengeSeconds) * time.Second,
		HTTPTimeout:        time.Duration(timeoutSeconds) * time.Second,
		ProxySourceURL:     getEnv("PROXY_SOURCE_URL", DefaultProxySource),
		ProxyMaxAttempts:   proxyAttempts,
		StaleAfter:         time.Duration(staleHours) * time.Hour,
		FailureLogFile:     getEnv("FAILURE_LOG_FILE", ""),
		Environment:        getEnv("LISTING_ENVIRONMENT", "development"),
	}
}

// Validate checks the values LoadConfig could not reject on its own
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && (c.DatabaseHost == "" || c.DatabaseName == "") {
		return errors.NewConfiguration("database host and name are required when DATABASE_URL is unset", nil)
	}
	if c.HTTPTimeout <= 0 {
		return errors.NewConfiguration("HTTP_TIMEOUT_SECONDS must be positive", nil)
	}
	if c.ChallengeWait < 0 {
		return errors.NewConfiguration("BROWSER_CHALLENGE_WAIT_SECONDS must not be negative", nil)
	}
	if c.ProxyMaxAttempts < 1 {
		return errors.NewConfiguration("PROXY_MAX_ATTEMPTS must be at least 1", nil)
	}
	if c.StaleAfter <= 0 {
		return errors.NewConfiguration("STALE_AFTER_HOURS must be positive", nil)
	}
	if c.CookiesFile == "" {
		return errors.NewConfiguration("SCRAPER_COOKIES_FILE must not be empty", nil)
	}
	return nil
}

// DSN returns the Postgres connection string
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUser, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode,
	)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
