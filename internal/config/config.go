package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（空の場合はタイマー状態をプロセス内メモリで保持する）
	RedisURL      string
	TimerStateTTL time.Duration

	// Session
	SessionMaxAge int

	// Study
	DefaultTimezone       string
	StreakMinDailyMinutes int
	MaxSessionMinutes     int

	// Rate Limit（req/min）
	RateLimitGeneral    int
	RateLimitTimerStart int

	// Cleanup
	StaleSessionAfter     time.Duration
	CanceledRetentionDays int
	CleanupInterval       time.Duration
	WorkerMetricsPort     string // 空の場合、ワーカーは /metrics を公開しない

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.TimerStateTTL = getEnvDuration("TIMER_STATE_TTL", 48*time.Hour)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 30*86400)
	cfg.DefaultTimezone = getEnvString("DEFAULT_TIMEZONE", "America/New_York")
	cfg.StreakMinDailyMinutes = getEnvInt("STREAK_MIN_DAILY_MINUTES", 1)
	cfg.MaxSessionMinutes = getEnvInt("MAX_SESSION_MINUTES", 480)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTimerStart = getEnvInt("RATE_LIMIT_TIMER_START", 20)
	cfg.StaleSessionAfter = getEnvDuration("STALE_SESSION_AFTER", 24*time.Hour)
	cfg.CanceledRetentionDays = getEnvInt("CANCELED_RETENTION_DAYS", 30)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}
	if cfg.StreakMinDailyMinutes < 1 {
		cfg.StreakMinDailyMinutes = 1
	}

	return cfg, nil
}

// Location はDefaultTimezoneの*time.Locationを返す。Loadで検証済みのため失敗時はUTCを返す。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
