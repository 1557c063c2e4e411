package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string

	// Apify
	ApifyToken           string
	ApifyBaseURL         string
	ApifyWaitSeconds     int
	ApifyResultsPerQuery int
	ApifyTimeout         time.Duration

	// Redis
	RedisAddr     string
	RedisPassword string

	// Rate Limit
	RateLimitGeneral    int
	RateLimitLiveSearch int

	// Scrape worker
	ScrapeInterval      time.Duration
	ScrapeKeywords      []string
	ScrapeStartURLs     []string
	ScrapeMaxConcurrent int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.ApifyToken = os.Getenv("APIFY_TOKEN")
	if cfg.ApifyToken == "" {
		missing = append(missing, "APIFY_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ApifyBaseURL = getEnvString("APIFY_BASE_URL", "https://api.apify.com")
	cfg.ApifyWaitSeconds = getEnvInt("APIFY_WAIT_SECONDS", 120)
	cfg.ApifyResultsPerQuery = getEnvInt("APIFY_RESULTS_PER_QUERY", 20)
	cfg.ApifyTimeout = getEnvDuration("APIFY_TIMEOUT", 180*time.Second)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLiveSearch = getEnvInt("RATE_LIMIT_LIVE_SEARCH", 10)
	cfg.ScrapeInterval = getEnvDuration("SCRAPE_INTERVAL", 1*time.Hour)
	cfg.ScrapeKeywords = getEnvList("SCRAPE_KEYWORDS", nil)
	cfg.ScrapeStartURLs = getEnvList("SCRAPE_START_URLS", nil)
	cfg.ScrapeMaxConcurrent = getEnvInt("SCRAPE_MAX_CONCURRENT", 3)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数をスライスとして読み込む。
// 空要素は取り除く。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
