// middleware.go

// Login middleware: runs the OAuth controller once per request.
package auth

import (
	"context"
	"net/http"

	"github.com/MGallo-Code/wxauth/internal/oauth"
	"github.com/MGallo-Code/wxauth/internal/session"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const (
	identityKey   contextKey = "identity"
	controllerKey contextKey = "controller"
)

// IdentityFromContext retrieves the visitor's cached identity.
// Returns zero Identity and false if Login hasn't run.
func IdentityFromContext(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityKey).(session.Identity)
	return id, ok
}

// Login resolves the visitor's identity before calling next.
//   - cached identity sufficient for the scope: next runs
//   - code in the URL: exchanged, cookies set, next runs
//   - no code: 302 to the provider, next does not run
//   - exchange failed: 401, next does not run
func (h *AuthHandler) Login(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctrl, cache, p := h.controller(w, r, requestURL(r, h.BaseURL))

		outcome, err := ctrl.Init(r.Context())
		if err != nil {
			InternalServerError(w, r, err)
			return
		}
		h.Metrics.ObserveOutcome(outcome)

		switch outcome {
		case oauth.OutcomeRedirected:
			logDebug(r, "redirecting to provider", "app_id", h.Config.AppID)
			http.Redirect(w, r, p.target, http.StatusFound)
			return
		case oauth.OutcomeFailed:
			Unauthorized(w, r, "oauth authentication failed")
			return
		case oauth.OutcomeExchanged:
			logInfo(r, "user logged in", "app_id", h.Config.AppID)
		}

		id, _, err := cache.Get(h.Config.AppID)
		if err != nil {
			InternalServerError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		// Handlers reuse ctrl so cookies written this request stay visible.
		ctx = context.WithValue(ctx, controllerKey, ctrl)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
