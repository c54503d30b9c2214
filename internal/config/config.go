package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OAuthClient は1つのOAuthプロバイダーのクライアント設定。
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled はクライアントIDとシークレットが両方設定されているかを返す。
func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBConnectTimeout time.Duration
	DBConnectRetries int
	DBConnectBackoff time.Duration

	// OAuth
	Google  OAuthClient
	GitHub  OAuthClient
	Discord OAuthClient

	// Session
	SessionSecret    string
	SessionMaxAge    time.Duration
	SessionUpdateAge time.Duration
	BcryptCost       int

	// Rate Limit
	RedisURL         string
	RateLimitAuth    int
	RateLimitWindow  time.Duration
	RateLimitGeneral int

	// Admin
	AdminEmails []string

	// Logging
	ErrorLogRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigin string

	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのアドレス範囲。
	TrustedProxies []netip.Prefix
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envが存在する場合は先に読み込む（既存の環境変数は上書きしない）。
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

	// OAuth providers: IDとシークレットが揃っているものだけ有効になる
	cfg.Google = loadOAuthClient("GOOGLE", cfg.BaseURL, "google")
	cfg.GitHub = loadOAuthClient("GITHUB", cfg.BaseURL, "github")
	cfg.Discord = loadOAuthClient("DISCORD", cfg.BaseURL, "discord")

	// Optional fields with defaults
	cfg.DBConnectTimeout = getEnvDuration("DB_CONNECT_TIMEOUT", 15*time.Second)
	cfg.DBConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 3)
	cfg.DBConnectBackoff = getEnvDuration("DB_CONNECT_BACKOFF", 2*time.Second)
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour)
	cfg.SessionUpdateAge = getEnvDuration("SESSION_UPDATE_AGE", 24*time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	if cfg.BcryptCost < 10 {
		cfg.BcryptCost = 10
	}
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.AdminEmails = getEnvList("ADMIN_EMAILS")
	cfg.ErrorLogRetentionDays = getEnvInt("ERROR_LOG_RETENTION_DAYS", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	proxies, err := parsePrefixList(os.Getenv("TRUSTED_PROXY_CIDRS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXY_CIDRS: %w", err)
	}
	cfg.TrustedProxies = proxies

	return cfg, nil
}

// loadOAuthClient は <PREFIX>_CLIENT_ID / <PREFIX>_CLIENT_SECRET / <PREFIX>_REDIRECT_URL を読み込む。
// リダイレクトURLが未指定の場合は BASE_URL/auth/{provider}/callback を使用する。
func loadOAuthClient(prefix, baseURL, provider string) OAuthClient {
	return OAuthClient{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		RedirectURL: getEnvString(prefix+"_REDIRECT_URL",
			strings.TrimRight(baseURL, "/")+"/auth/"+provider+"/callback"),
	}
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

// parsePrefixList はカンマ区切りのCIDRまたは単一IPを解析する。
func parsePrefixList(v string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, err
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// getEnvList はカンマ区切りの環境変数を小文字化したスライスとして返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
