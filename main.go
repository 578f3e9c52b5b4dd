package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/MGallo-Code/wxauth/internal/auth"
	"github.com/MGallo-Code/wxauth/internal/config"
	"github.com/MGallo-Code/wxauth/internal/metrics"
	"github.com/MGallo-Code/wxauth/internal/oauth"
	"github.com/MGallo-Code/wxauth/internal/store"
	"github.com/MGallo-Code/wxauth/internal/wechat"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// version can be set during build with -ldflags
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the JSON slog handler at the configured level.
func setupLogging(level slog.Level) {
	// Include source location in log entries at debug level only.
	addSrc := level == slog.LevelDebug

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSrc,
	})))
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup (rdb.Close) always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	clientCfg, err := cfg.ClientConfig().Normalize()
	if err != nil {
		return err
	}

	// Redis is optional; without it duplicates are only collapsed in-process.
	var results interface {
		oauth.ResultCache
		auth.HealthChecker
	} = store.NoopResultCache{}
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		results = store.NewRedisResultCache(rdb)
	}

	m := metrics.New()
	transport := oauth.Dedupe(
		m.InstrumentTransport(oauth.NewHTTPTransport(cfg.ExchangeTimeout)),
		results,
		cfg.ExchangeDedupeTTL,
		oauth.WithHitHook(m.DedupeHit),
	)

	h := auth.AuthHandler{
		Config:    clientCfg,
		Transport: transport,
		Cookies:   cfg.CookieOptions(),
		BaseURL:   cfg.PublicBaseURL,
		RS:        results,
		Metrics:   m,
	}
	if cfg.WechatAppSecret != "" {
		h.WX = wechat.NewClient(cfg.AppID, cfg.WechatAppSecret, cfg.WechatAPIBase, cfg.ExchangeTimeout)
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(&h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("wxauth listening", "addr", ln.Addr().String(), "app_id", clientCfg.AppID, "scope", clientCfg.Scope,
			"redis", cfg.RedisURL != "", "exchange_backend", h.WX != nil)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}

	r.Get("/oauth/switch", h.SwitchAccount)
	r.Post("/oauth/logout", h.Logout)

	// Trusted exchange backend, only when this process holds the app secret.
	if h.WX != nil {
		r.Post("/wechat/exchange", h.WechatExchange)
	}

	// Login required routes
	r.Group(func(r chi.Router) {
		r.Use(h.Login)
		r.Get("/", h.Home)
		r.Get("/me", h.Me)
	})

	return r
}
