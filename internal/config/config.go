// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 解析イベントの保存先
const (
	AnalyticsStorePostgres   = "postgres"
	AnalyticsStoreClickHouse = "clickhouse"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionSecret          string // セッションID署名とBearerトークン(HS256)の鍵
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Session cache (Redis)
	RedisURL        string // 空の場合はキャッシュしない
	SessionCacheTTL time.Duration

	// Analytics
	AnalyticsStore     string
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Access policy
	AdminPrefix    string
	ProtectedPaths []string

	// Cover image
	CoverImageProbe   bool // trueの場合はカバー画像URLへHEADリクエストで到達確認する
	CoverImageTimeout time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv はカレントディレクトリの.envファイルがあれば環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", slog.String("error", err.Error()))
	}
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

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SessionCacheTTL = getEnvDuration("SESSION_CACHE_TTL", 5*time.Minute)
	cfg.AnalyticsStore = strings.ToLower(getEnvString("ANALYTICS_STORE", AnalyticsStorePostgres))
	cfg.ClickHouseAddr = getEnvString("CLICKHOUSE_ADDR", "localhost:9000")
	cfg.ClickHouseDatabase = getEnvString("CLICKHOUSE_DATABASE", "default")
	cfg.ClickHouseUsername = getEnvString("CLICKHOUSE_USERNAME", "default")
	cfg.ClickHousePassword = getEnvString("CLICKHOUSE_PASSWORD", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.AdminPrefix = getEnvString("ADMIN_PREFIX", "/admin")
	cfg.ProtectedPaths = getEnvList("PROTECTED_PATHS", []string{"/checkout", "/orders", "/wishlist"})
	cfg.CoverImageProbe = getEnvBool("COVER_IMAGE_PROBE", false)
	cfg.CoverImageTimeout = getEnvDuration("COVER_IMAGE_TIMEOUT", 5*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	switch cfg.AnalyticsStore {
	case AnalyticsStorePostgres, AnalyticsStoreClickHouse:
	default:
		return nil, fmt.Errorf("invalid ANALYTICS_STORE: %q (want %s or %s)",
			cfg.AnalyticsStore, AnalyticsStorePostgres, AnalyticsStoreClickHouse)
	}

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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたリストとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
