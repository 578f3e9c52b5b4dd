// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/wxauth/internal/store"
)

// CheckHealth handles GET /health -- pings the exchange result cache.
// Returns 200 when Redis is healthy or disabled, 503 when it is down.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	redisStatus := "ok"

	if err := h.RS.CheckHealth(r.Context()); err != nil {
		if errors.Is(err, store.ErrCacheDisabled) {
			redisStatus = "disabled"
		} else {
			logError(r, "redis health check failed", "error", err)
			redisStatus = "error"
		}
	}

	status := http.StatusOK
	if redisStatus == "error" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, struct {
		Redis string `json:"redis"`
	}{redisStatus})
}
