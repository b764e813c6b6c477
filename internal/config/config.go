package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	// MaxConcurrentRuns bounds cross-run parallelism. Pages within one run
	// are always fetched sequentially.
	MaxConcurrentRuns int
	MaxPagesDefault   int
	MaxPagesCap       int
	PageDelay         time.Duration
	PageDelayJitter   time.Duration
	SessionTTL        time.Duration
	SessionCacheSize  int
	HTTPTimeout       time.Duration
	UserAgent         string
}

type BrowserConfig struct {
	Headless         bool
	Timeout          time.Duration
	ViewportWidth    int
	ViewportHeight   int
	AcceptLanguage   string
	Locale           string
	// MaxConcurrent caps headless browser instances used for token minting,
	// separately from the page-fetch bound.
	MaxConcurrent int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// SeenTTL is how long product identities stay in the cross-job dedup set.
	SeenTTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			MaxConcurrentRuns: getIntOrDefault("SCRAPER_MAX_CONCURRENT_RUNS", 4),
			MaxPagesDefault:   getIntOrDefault("SCRAPER_MAX_PAGES_DEFAULT", 10),
			MaxPagesCap:       getIntOrDefault("SCRAPER_MAX_PAGES_CAP", 50),
			PageDelay:         getDurationOrDefault("SCRAPER_PAGE_DELAY", 1*time.Second),
			PageDelayJitter:   getDurationOrDefault("SCRAPER_PAGE_DELAY_JITTER", 2*time.Second),
			SessionTTL:        getDurationOrDefault("SCRAPER_SESSION_TTL", 30*time.Minute),
			SessionCacheSize:  getIntOrDefault("SCRAPER_SESSION_CACHE_SIZE", 64),
			HTTPTimeout:       getDurationOrDefault("SCRAPER_HTTP_TIMEOUT", 30*time.Second),
			UserAgent: getEnvOrDefault("SCRAPER_USER_AGENT",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1280),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 720),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-GB,en;q=0.9"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-IN"),
			MaxConcurrent:  getIntOrDefault("BROWSER_MAX_CONCURRENT", 5),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "quickcomm"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			SeenTTL:  getDurationOrDefault("REDIS_SEEN_TTL", 720*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxConcurrentRuns < 1 {
		return fmt.Errorf("SCRAPER_MAX_CONCURRENT_RUNS must be at least 1")
	}

	if c.Browser.MaxConcurrent < 1 {
		return fmt.Errorf("BROWSER_MAX_CONCURRENT must be at least 1")
	}

	if c.Scraper.MaxPagesCap < c.Scraper.MaxPagesDefault {
		return fmt.Errorf("SCRAPER_MAX_PAGES_CAP cannot be below SCRAPER_MAX_PAGES_DEFAULT")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
