package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MGallo-Code/wxauth/internal/store"
	"github.com/MGallo-Code/wxauth/internal/testutil"
)

type healthFunc func(ctx context.Context) error

func (f healthFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// --- CheckHealth ---

func TestCheckHealth(t *testing.T) {
	cases := []struct {
		name       string
		rs         HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"redis healthy", testutil.NewMockResultCache(), http.StatusOK, `{"redis":"ok"}`},
		{"redis disabled", store.NoopResultCache{}, http.StatusOK, `{"redis":"disabled"}`},
		{"redis down", healthFunc(func(context.Context) error { return errors.New("connection refused") }), http.StatusServiceUnavailable, `{"redis":"error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &AuthHandler{RS: tc.rs}
			w := httptest.NewRecorder()

			h.CheckHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tc.wantStatus {
				t.Errorf("status: expected %d, got %d", tc.wantStatus, w.Code)
			}
			if w.Body.String() != tc.wantBody {
				t.Errorf("body: expected %s, got %s", tc.wantBody, w.Body.String())
			}
		})
	}
}
