package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/striver-24/ai-resume-analyser/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（未設定の場合、serveはDBなしで起動する）
	DatabaseURL string `env:"DATABASE_URL"`

	// OAuth
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URL,required,notEmpty"`
	OAuthHTTPTimeout   time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"10s"`

	// Session
	SessionSecret          string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"604800"`
	StateTokenTTL          time.Duration `env:"STATE_TOKEN_TTL" envDefault:"10m"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitUpload  int `env:"RATE_LIMIT_UPLOAD" envDefault:"10"`

	// Storage（STORAGE_ENDPOINTが空の場合は履歴書APIを無効にする）
	StorageEndpoint  string `env:"STORAGE_ENDPOINT"`
	StorageAccessKey string `env:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `env:"STORAGE_SECRET_KEY"`
	StorageBucket    string `env:"STORAGE_BUCKET" envDefault:"resumes"`
	StorageUseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
	ResumeMaxSize    int64  `env:"RESUME_MAX_SIZE" envDefault:"10485760"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、不足しているキーをすべて列挙した*model.ConfigurationErrorを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		if missing := missingKeys(err); len(missing) > 0 {
			return nil, &model.ConfigurationError{Missing: missing}
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.SessionMaxAge <= 0 {
		return nil, &model.ValidationError{
			Field:   "SESSION_MAX_AGE",
			Message: fmt.Sprintf("must be greater than 0, got %d", cfg.SessionMaxAge),
		}
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// RequireDatabase はDATABASE_URLが設定されていることを確認する。
// workerとmigrateはDBなしでは動作しないため起動時に呼び出す。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return &model.ConfigurationError{Missing: []string{"DATABASE_URL"}}
	}
	return nil
}

// HasDatabase はDATABASE_URLが設定されているかを返す。
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// HasStorage はオブジェクトストレージが設定されているかを返す。
func (c *Config) HasStorage() bool {
	return c.StorageEndpoint != ""
}

// missingKeys はenv.Parseのエラーから未設定・空の必須キーだけを取り出す。
// それ以外のエラーが含まれる場合はnilを返し、呼び出し元でパースエラーとして扱う。
func missingKeys(err error) []string {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return nil
	}

	var missing []string
	for _, e := range agg.Errors {
		var notSet env.EnvVarIsNotSetError
		var empty env.EmptyEnvVarError
		switch {
		case errors.As(e, &notSet):
			missing = append(missing, notSet.Key)
		case errors.As(e, &empty):
			missing = append(missing, empty.Key)
		default:
			return nil
		}
	}
	return missing
}
