// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MGallo-Code/wxauth/internal/oauth"
	"github.com/MGallo-Code/wxauth/internal/session"
)

// Config holds all env configuration vars for wxauth.
type Config struct {
	// Official account identity and flow settings.
	AppID             string `validate:"required"`
	Scope             string `validate:"oneof=snsapi_base snsapi_userinfo"`
	State             string
	ExchangeEndpoint  string `validate:"required,url"`
	AuthorizeEndpoint string `validate:"omitempty,url"`
	StrictState       bool

	// SessionTTLDays is the lifetime of the three identity cookies. Default 30,
	// at most 36500.
	SessionTTLDays int `validate:"gte=1,lte=36500"`

	// Exchange transport. Defaults: 10s timeout, 5m dedupe window.
	ExchangeTimeout   time.Duration
	ExchangeDedupeTTL time.Duration

	// RedisURL is optional -- empty keeps dedupe in-process only.
	RedisURL string `validate:"omitempty,url"`

	Port          string
	PublicBaseURL string `validate:"omitempty,url"`
	CookieDomain  string
	CookieSecure  bool
	LogLevel      slog.Level

	// WeChat credentials for the built-in exchange backend. Empty secret
	// means this process does not serve /wechat/exchange.
	WechatAppSecret string
	WechatAPIBase   string `validate:"omitempty,url"`
}

var validate = validator.New()

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (WX_APP_ID, WX_EXCHANGE_ENDPOINT) are
// missing or malformed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppID:             os.Getenv("WX_APP_ID"),
		Scope:             os.Getenv("WX_SCOPE"),
		State:             os.Getenv("WX_STATE"),
		ExchangeEndpoint:  os.Getenv("WX_EXCHANGE_ENDPOINT"),
		AuthorizeEndpoint: os.Getenv("WX_AUTHORIZE_ENDPOINT"),
		RedisURL:          os.Getenv("REDIS_URL"),
		Port:              os.Getenv("PORT"),
		PublicBaseURL:     strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		CookieDomain:      os.Getenv("COOKIE_DOMAIN"),
		WechatAppSecret:   os.Getenv("WECHAT_APP_SECRET"),
		WechatAPIBase:     os.Getenv("WECHAT_API_BASE"),
	}

	if cfg.Scope == "" {
		cfg.Scope = string(oauth.ScopeBase)
	}
	if cfg.Port == "" {
		cfg.Port = "7865"
	}

	// Only explicit "true" enables state checking.
	cfg.StrictState = os.Getenv("WX_STRICT_STATE") == "true"

	// Default true -- only explicit "false" disables.
	cfg.CookieSecure = os.Getenv("COOKIE_SECURE") != "false"

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.SessionTTLDays = envInt("SESSION_TTL_DAYS", oauth.DefaultSessionTTLDays)
	cfg.ExchangeTimeout = envDuration("EXCHANGE_TIMEOUT", 10*time.Second)
	cfg.ExchangeDedupeTTL = envDuration("EXCHANGE_DEDUPE_TTL", 5*time.Minute)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ClientConfig returns the oauth client settings. The result still needs
// Normalize before use.
func (c *Config) ClientConfig() oauth.ClientConfig {
	return oauth.ClientConfig{
		AppID:             c.AppID,
		Scope:             oauth.Scope(c.Scope),
		SessionTTLDays:    c.SessionTTLDays,
		State:             c.State,
		ExchangeEndpoint:  c.ExchangeEndpoint,
		AuthorizeEndpoint: c.AuthorizeEndpoint,
		StrictState:       c.StrictState,
	}
}

// CookieOptions returns the attributes applied to identity cookies.
func (c *Config) CookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Domain:   c.CookieDomain,
		Secure:   c.CookieSecure,
		HttpOnly: true,
	}
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
