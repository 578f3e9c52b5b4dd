// handler.go -- HTTP handlers for the login flow.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/MGallo-Code/wxauth/internal/metrics"
	"github.com/MGallo-Code/wxauth/internal/oauth"
	"github.com/MGallo-Code/wxauth/internal/session"
	"github.com/MGallo-Code/wxauth/internal/wechat"
)

// HealthChecker reports whether a backing service is reachable.
// Satisfied by *store.RedisResultCache and store.NoopResultCache.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Exchanger turns an authorization code into identity fields on the trusted
// side. Satisfied by *wechat.Client.
type Exchanger interface {
	Login(ctx context.Context, code string) (*wechat.Identity, error)
}

// AuthHandler holds dependencies for the login middleware and handlers.
type AuthHandler struct {
	// Config must already be normalized.
	Config    oauth.ClientConfig
	Transport oauth.Transport
	Cookies   session.CookieOptions

	// BaseURL is the public origin (scheme://host) used to rebuild the page
	// URL sent as redirect_uri. Empty means derive it from the request.
	BaseURL string

	RS      HealthChecker
	Metrics *metrics.Metrics

	// WX backs POST /wechat/exchange. Nil when this process only consumes
	// an external exchange endpoint.
	WX Exchanger
}

// controller builds the per-request login controller over cookie storage.
func (h *AuthHandler) controller(w http.ResponseWriter, r *http.Request, currentURL string) (*oauth.Controller, *session.Cache, *page) {
	p := &page{url: currentURL}
	cache := session.NewCache(session.NewCookieStorage(w, r, h.Cookies))
	return oauth.NewController(h.Config, cache, h.Transport, p), cache, p
}

// SwitchAccount handles GET /oauth/switch -- purges the cached identity and
// sends the browser back to the provider. The provider returns to ?next=
// (a same-origin path, default "/").
func (h *AuthHandler) SwitchAccount(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if !isLocalPath(next) {
		next = "/"
	}

	ctrl, _, p := h.controller(w, r, originOf(r, h.BaseURL)+next)
	outcome, err := ctrl.OAuth()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	h.Metrics.ObserveOutcome(outcome)
	logInfo(r, "account switch requested", "app_id", h.Config.AppID)
	http.Redirect(w, r, p.target, http.StatusFound)
}

// Logout handles POST /oauth/logout -- removes the identity and flow cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cache := session.NewCache(session.NewCookieStorage(w, r, h.Cookies))
	if err := cache.Clear(h.Config.AppID); err != nil {
		InternalServerError(w, r, err)
		return
	}
	if err := cache.ClearFlow(h.Config.AppID); err != nil {
		InternalServerError(w, r, err)
		return
	}
	logInfo(r, "user logged out", "app_id", h.Config.AppID)
	OK(w, "logged out")
}

// Me handles GET /me -- returns the cached identity and profile.
// Must run behind Login.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		logError(r, "me called without identity in context")
		Unauthorized(w, r, "unauthorized")
		return
	}

	ctrl, ok := r.Context().Value(controllerKey).(*oauth.Controller)
	if !ok {
		ctrl, _, _ = h.controller(w, r, requestURL(r, h.BaseURL))
	}
	profile, err := ctrl.UserInfo()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, wechat.Identity{
		OpenID:   id.PrimaryID,
		UnionID:  id.SecondaryID,
		UserInfo: profile,
	})
}

// Home handles GET / -- a minimal landing page behind Login.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	OK(w, "logged in")
}

// isLocalPath accepts absolute paths on this origin and rejects
// scheme-relative ("//evil.com") and backslash tricks.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.ContainsRune(p, '\\')
}
