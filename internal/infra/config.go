package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderConfig holds the per-provider knobs consumed by the
// orchestrator and job client. Nothing in the call path hard-codes
// these values.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	CreditCost   int
	PollInterval time.Duration
	PollAttempts int
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	JWTSecret        string
	GeoIPDBPath      string
	AnonymousQuota   int
	StartingCredits  int
	TopupSecret      string
	Gemini           ProviderConfig
	Seedream         ProviderConfig
	Qwen             ProviderConfig
	MinioEndpoint    string
	MinioAccessKey   string
	MinioSecretKey   string
	MinioBucket      string
	MinioUseSSL      bool
	AssetTTL         time.Duration
	SweepInterval    time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// IsDevelopment reports whether failure details may be exposed to callers.
func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		GeoIPDBPath:     os.Getenv("GEOIP_DB_PATH"),
		AnonymousQuota:  getEnvInt("ANONYMOUS_QUOTA", 20),
		StartingCredits: getEnvInt("STARTING_CREDITS", 30),
		TopupSecret:     os.Getenv("TOPUP_WEBHOOK_SECRET"),
		Gemini: ProviderConfig{
			BaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:     os.Getenv("GEMINI_API_KEY"),
			Model:      getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
			CreditCost: getEnvInt("GEMINI_CREDIT_COST", 1),
		},
		Seedream: ProviderConfig{
			BaseURL:      getEnv("SEEDREAM_BASE_URL", "https://ark.ap-southeast.volces.com/api/v3"),
			APIKey:       os.Getenv("SEEDREAM_API_KEY"),
			Model:        getEnv("SEEDREAM_MODEL", "seedream-4-5"),
			CreditCost:   getEnvInt("SEEDREAM_CREDIT_COST", 2),
			PollInterval: time.Second * time.Duration(getEnvInt("SEEDREAM_POLL_INTERVAL_SECONDS", 1)),
			PollAttempts: getEnvInt("SEEDREAM_POLL_ATTEMPTS", 300),
		},
		Qwen: ProviderConfig{
			BaseURL:      getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
			APIKey:       os.Getenv("QWEN_API_KEY"),
			Model:        getEnv("QWEN_MODEL", "qwen-image-edit"),
			CreditCost:   getEnvInt("QWEN_CREDIT_COST", 1),
			PollInterval: time.Second * time.Duration(getEnvInt("QWEN_POLL_INTERVAL_SECONDS", 1)),
			PollAttempts: getEnvInt("QWEN_POLL_ATTEMPTS", 60),
		},
		MinioEndpoint:    getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:      getEnv("MINIO_BUCKET", "veilpix-temp"),
		MinioUseSSL:      getEnv("MINIO_USE_SSL", "false") == "true",
		AssetTTL:         time.Minute * time.Duration(getEnvInt("ASSET_TTL_MINUTES", 120)),
		SweepInterval:    time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 15)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 360)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
