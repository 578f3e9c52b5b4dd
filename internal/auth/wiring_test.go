package auth

// wiring_test.go
//
// Catches bugs where middleware and handlers hand data to each other incorrectly
// across requests, the way a browser strings page loads together:
//
//   - Cookie:    Login (exchange, Set-Cookie) -> Login (read cookie, no network)
//   - Context:   Login (inject identity) -> Me (read identity + profile)
//   - Logout:    Logout (expire cookies) -> Login (redirect again)
//   - Switch:    SwitchAccount (expire cookies) -> return leg -> new identity
//

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MGallo-Code/wxauth/internal/testutil"
)

// newWiredMux mounts the handlers the same way the server router does.
func newWiredMux(h *AuthHandler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /p", h.Login(http.HandlerFunc(h.Home)))
	mux.Handle("GET /me", h.Login(http.HandlerFunc(h.Me)))
	mux.HandleFunc("GET /oauth/switch", h.SwitchAccount)
	mux.HandleFunc("POST /oauth/logout", h.Logout)
	return mux
}

// browser replays cookies between requests like a real user agent.
type browser struct {
	t       *testing.T
	handler http.Handler
	jar     map[string]string
}

func newBrowser(t *testing.T, handler http.Handler) *browser {
	return &browser{t: t, handler: handler, jar: map[string]string{}}
}

func (b *browser) do(method, target string) *httptest.ResponseRecorder {
	b.t.Helper()
	r := httptest.NewRequest(method, target, nil)
	for name, value := range b.jar {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, r)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.jar, c.Name)
		} else {
			b.jar[c.Name] = c.Value
		}
	}
	return w
}

func TestWiring_LoginFlow(t *testing.T) {
	tr := &testutil.MockTransport{Response: []byte(exchangeOK)}
	h := newTestHandler(t, tr)
	b := newBrowser(t, newWiredMux(h))

	// First visit: no identity, off to the provider.
	if w := b.do(http.MethodGet, "/p"); w.Code != http.StatusFound {
		t.Fatalf("first visit: expected 302, got %d", w.Code)
	}

	// Return leg: code exchanged, page served.
	if w := b.do(http.MethodGet, "/p?code=abc&state=s1"); w.Code != http.StatusOK {
		t.Fatalf("return leg: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(b.jar) != 3 {
		t.Fatalf("expected 3 identity cookies, got %v", b.jar)
	}

	// Reload: cookies suffice, no second exchange.
	if w := b.do(http.MethodGet, "/p"); w.Code != http.StatusOK {
		t.Fatalf("reload: expected 200, got %d", w.Code)
	}
	if tr.CallCount() != 1 {
		t.Errorf("expected exactly one exchange, got %d", tr.CallCount())
	}

	// Profile readable behind Login.
	w := b.do(http.MethodGet, "/me")
	if want := `{"openId":"oX1","unionId":"uY2","userInfo":{"nick":"A"}}`; w.Body.String() != want {
		t.Errorf("me:\nexpected %s\n     got %s", want, w.Body.String())
	}

	// Logout expires cookies; next visit redirects again.
	if w := b.do(http.MethodPost, "/oauth/logout"); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if len(b.jar) != 0 {
		t.Errorf("expected empty jar after logout, got %v", b.jar)
	}
	if w := b.do(http.MethodGet, "/p"); w.Code != http.StatusFound {
		t.Errorf("after logout: expected 302, got %d", w.Code)
	}
}

func TestWiring_SwitchAccount(t *testing.T) {
	tr := &testutil.MockTransport{Response: []byte(exchangeOK)}
	h := newTestHandler(t, tr)
	b := newBrowser(t, newWiredMux(h))

	if w := b.do(http.MethodGet, "/p?code=first&state=s1"); w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}

	// Switch purges the old account even though it was sufficient.
	if w := b.do(http.MethodGet, "/oauth/switch?next=/p"); w.Code != http.StatusFound {
		t.Fatalf("switch: expected 302, got %d", w.Code)
	}
	if _, ok := b.jar["wx_oauth_wx123_flow"]; !ok || len(b.jar) != 1 {
		t.Fatalf("expected only a fresh flow cookie after switch, got %v", b.jar)
	}

	tr.Response = []byte(`{"openId":"oZ9","userInfo":{"nick":"B"}}`)
	if w := b.do(http.MethodGet, "/p?code=second&state=s1"); w.Code != http.StatusOK {
		t.Fatalf("second login: expected 200, got %d", w.Code)
	}
	if _, ok := b.jar["wx_oauth_wx123_flow"]; ok {
		t.Errorf("flow cookie should be spent by the exchange, got %v", b.jar)
	}
	w := b.do(http.MethodGet, "/me")
	if want := `{"openId":"oZ9","userInfo":{"nick":"B"}}`; w.Body.String() != want {
		t.Errorf("me after switch:\nexpected %s\n     got %s", want, w.Body.String())
	}
	if tr.CallCount() != 2 {
		t.Errorf("expected two exchanges, got %d", tr.CallCount())
	}
}

func TestWiring_ReturnLegOnProfile(t *testing.T) {
	tr := &testutil.MockTransport{Response: []byte(exchangeOK)}
	b := newBrowser(t, newWiredMux(newTestHandler(t, tr)))

	// Cookies written during this request are not in its Cookie header yet;
	// Me must still see the freshly exchanged profile.
	w := b.do(http.MethodGet, "/me?code=abc&state=s1")
	if want := `{"openId":"oX1","unionId":"uY2","userInfo":{"nick":"A"}}`; w.Body.String() != want {
		t.Errorf("me on return leg:\nexpected %s\n     got %s", want, w.Body.String())
	}
}
