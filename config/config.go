package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// defaultMarketplaces maps a marketplace selector to its storefront base URL.
var defaultMarketplaces = map[string]string{
	"amazon.com":   "https://www.amazon.com",
	"amazon.in":    "https://www.amazon.in",
	"amazon.co.uk": "https://www.amazon.co.uk",
	"amazon.de":    "https://www.amazon.de",
	"amazon.ca":    "https://www.amazon.ca",
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DBMaxOpenConns   int
	DBMaxIdleConns   int

	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	ProductCacheTTL       time.Duration
	DefaultMarketplace    string
	SupportedMarketplaces map[string]string

	FetchMode    string
	FetchTimeout time.Duration
	ChromeBin    string

	HTTPAddr       string
	AppEnv         string
	LogMode        string
	TrustedProxies []string

	RedisAddr               string
	RateLimitAPIPerMin      int
	RateLimitOptimizePerMin int

	OTelEndpoint string
	OTelStdout   bool

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "optimizer"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "optimizer123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listing_optimizer"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		DBMaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 5),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTimeout: time.Duration(getEnvInt("GEMINI_TIMEOUT_SEC", 60)) * time.Second,

		ProductCacheTTL:       time.Duration(getEnvInt("PRODUCT_CACHE_TTL_MS", 24*60*60*1000)) * time.Millisecond,
		DefaultMarketplace:    getEnv("DEFAULT_MARKETPLACE", "amazon.in"),
		SupportedMarketplaces: parseMarketplaces(getEnv("SUPPORTED_MARKETPLACES", "")),

		FetchMode:    strings.ToLower(getEnv("FETCH_MODE", FetchModeHTTP)),
		FetchTimeout: time.Duration(getEnvInt("FETCH_TIMEOUT_SEC", 10)) * time.Second,
		ChromeBin:    getEnv("CHROME_BIN", ""),

		HTTPAddr:       getEnv("HTTP_ADDR", ":3000"),
		AppEnv:         getEnv("APP_ENV", "production"),
		LogMode:        getEnv("LOG_MODE", "development"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		RedisAddr:               getEnv("REDIS_ADDR", ""),
		RateLimitAPIPerMin:      getEnvInt("RATE_LIMIT_API_PER_MIN", 60),
		RateLimitOptimizePerMin: getEnvInt("RATE_LIMIT_OPTIMIZE_PER_MIN", 10),

		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelStdout:   getEnvBool("OTEL_STDOUT", false),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 5),
	}

	cfg.DefaultMarketplace = strings.ToLower(strings.TrimSpace(cfg.DefaultMarketplace))
	if _, ok := cfg.SupportedMarketplaces[cfg.DefaultMarketplace]; !ok {
		log.Printf("[config] DEFAULT_MARKETPLACE %q is not in SUPPORTED_MARKETPLACES, adding it", cfg.DefaultMarketplace)
		cfg.SupportedMarketplaces[cfg.DefaultMarketplace] = marketplaceBase(cfg.DefaultMarketplace)
	}
	return cfg
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// IsDevelopment reports whether internal error detail may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// MarketplaceURL resolves a marketplace selector to its base URL. Unknown or
// empty selectors resolve to the default marketplace.
func (c *Config) MarketplaceURL(selector string) (string, string) {
	key := strings.ToLower(strings.TrimSpace(selector))
	if base, ok := c.SupportedMarketplaces[key]; ok {
		return key, base
	}
	return c.DefaultMarketplace, c.SupportedMarketplaces[c.DefaultMarketplace]
}

// IsSupportedMarketplace reports whether the selector is one of the configured domains.
func (c *Config) IsSupportedMarketplace(selector string) bool {
	_, ok := c.SupportedMarketplaces[strings.ToLower(strings.TrimSpace(selector))]
	return ok
}

// parseMarketplaces accepts a comma separated list of selectors. Each entry is
// either a known selector ("amazon.de") or "selector=https://base.url".
func parseMarketplaces(raw string) map[string]string {
	out := make(map[string]string, len(defaultMarketplaces))
	if strings.TrimSpace(raw) == "" {
		for k, v := range defaultMarketplaces {
			out[k] = v
		}
		return out
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, base, ok := strings.Cut(part, "="); ok {
			out[strings.ToLower(strings.TrimSpace(name))] = strings.TrimRight(strings.TrimSpace(base), "/")
			continue
		}
		key := strings.ToLower(part)
		out[key] = marketplaceBase(key)
	}
	return out
}

// marketplaceBase returns the known storefront URL for key, or the
// conventional https://www.<key> form.
func marketplaceBase(key string) string {
	if base, ok := defaultMarketplaces[key]; ok {
		return base
	}
	return "https://www." + key
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
