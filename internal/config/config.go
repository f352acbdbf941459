package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PlatformApp holds one platform's application credentials.
type PlatformApp struct {
	ClientID     string
	ClientSecret string
}

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DefaultWorkspaceSlug/Name seed the bootstrap workspace for dev/e2e.
	DefaultWorkspaceSlug string
	DefaultWorkspaceName string

	// Refresh policy.
	SafetyMargin          time.Duration
	RefreshMaxAttempts    int
	RefreshBackoffBase    time.Duration
	RefreshAttemptTimeout time.Duration

	// Per-platform app registrations. Facebook, Instagram, and Meta Ads
	// share the Meta app.
	TwitterApp  PlatformApp
	LinkedInApp PlatformApp
	MetaApp     PlatformApp
	TikTokApp   PlatformApp
	YouTubeApp  PlatformApp

	ServiceName       string
	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		DefaultWorkspaceSlug: getEnv("DEFAULT_WORKSPACE_SLUG", "default"),
		DefaultWorkspaceName: getEnv("DEFAULT_WORKSPACE_NAME", "Default Workspace"),

		SafetyMargin:          getDuration("TOKEN_SAFETY_MARGIN", 5*time.Minute),
		RefreshMaxAttempts:    getInt("REFRESH_MAX_ATTEMPTS", 3),
		RefreshBackoffBase:    getDuration("REFRESH_BACKOFF_BASE", time.Second),
		RefreshAttemptTimeout: getDuration("REFRESH_ATTEMPT_TIMEOUT", 10*time.Second),

		TwitterApp:  platformApp("TWITTER"),
		LinkedInApp: platformApp("LINKEDIN"),
		MetaApp:     platformApp("META"),
		TikTokApp:   platformApp("TIKTOK"),
		YouTubeApp:  platformApp("YOUTUBE"),

		ServiceName:       getEnv("SERVICE_NAME", "social-connect"),
		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Workspace-ID"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func platformApp(prefix string) PlatformApp {
	return PlatformApp{
		ClientID:     strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET")),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
