// handler_test.go
//
// Shared helpers and unit tests for the switch, logout, me and home handlers.
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MGallo-Code/wxauth/internal/oauth"
	"github.com/MGallo-Code/wxauth/internal/session"
	"github.com/MGallo-Code/wxauth/internal/testutil"
)

// --- Shared helpers ---

const testAppID = "wx123"

const exchangeOK = `{"openId":"oX1","unionId":"uY2","userInfo":{"nick":"A"}}`

// newTestHandler returns an AuthHandler for app wx123 behind https://a.com.
func newTestHandler(t *testing.T, tr *testutil.MockTransport) *AuthHandler {
	t.Helper()
	cfg, err := oauth.ClientConfig{
		AppID:            testAppID,
		Scope:            oauth.ScopeBase,
		State:            "s1",
		ExchangeEndpoint: "https://backend.test/exchange",
	}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return &AuthHandler{
		Config:    cfg,
		Transport: tr,
		Cookies:   session.CookieOptions{Secure: true, HttpOnly: true},
		BaseURL:   "https://a.com",
		RS:        testutil.NewMockResultCache(),
	}
}

// addIdentityCookies adds the three identity cookies the way CookieStorage writes them.
func addIdentityCookies(r *http.Request, openID, unionID, profileJSON string) {
	r.AddCookie(&http.Cookie{Name: session.Key(testAppID, session.FieldOpenID), Value: url.QueryEscape(openID)})
	r.AddCookie(&http.Cookie{Name: session.Key(testAppID, session.FieldUnionID), Value: url.QueryEscape(unionID)})
	r.AddCookie(&http.Cookie{Name: session.Key(testAppID, session.FieldUserInfo), Value: url.QueryEscape(profileJSON)})
}

// responseCookies indexes Set-Cookie headers by name.
func responseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

// carryCookies replays live cookies from a response onto the next request, like a browser.
func carryCookies(r *http.Request, w *httptest.ResponseRecorder) {
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			continue
		}
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

// assertClearedIdentityCookies checks all three identity cookies are expired.
func assertClearedIdentityCookies(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	cookies := responseCookies(w)
	for _, field := range []string{session.FieldOpenID, session.FieldUnionID, session.FieldUserInfo} {
		c, ok := cookies[session.Key(testAppID, field)]
		if !ok {
			t.Errorf("expected %s cookie to be cleared, not set", field)
			continue
		}
		if c.MaxAge >= 0 {
			t.Errorf("%s cookie: expected MaxAge < 0, got %d", field, c.MaxAge)
		}
	}
}

// assertUnauthorized checks response is 401 JSON with expected message.
func assertUnauthorized(t *testing.T, w *httptest.ResponseRecorder, expectedMsg string) {
	t.Helper()
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status: expected 401, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	body, _ := io.ReadAll(w.Body)
	expected := fmt.Sprintf(`{"message":"%s"}`, expectedMsg)
	if string(body) != expected {
		t.Errorf("body: expected %q, got %q", expected, string(body))
	}
}

// assertRedirect checks response is a 302 to exactly location.
func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status: expected 302, got %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Location:\nexpected %s\n     got %s", location, got)
	}
}

// --- SwitchAccount ---

func TestSwitchAccount(t *testing.T) {
	t.Run("clears cookies and redirects back to next", func(t *testing.T) {
		h := newTestHandler(t, &testutil.MockTransport{})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/oauth/switch?next=/dash%3Ftab%3D1", nil)
		addIdentityCookies(r, "old", "", "{}")

		h.SwitchAccount(w, r)

		assertRedirect(t, w, oauth.AuthorizeURL(h.Config, "https://a.com/dash?tab=1"))
		assertClearedIdentityCookies(t, w)
	})

	t.Run("defaults next to root", func(t *testing.T) {
		h := newTestHandler(t, &testutil.MockTransport{})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/oauth/switch", nil)

		h.SwitchAccount(w, r)

		assertRedirect(t, w, oauth.AuthorizeURL(h.Config, "https://a.com/"))
	})

	t.Run("rejects off-site next", func(t *testing.T) {
		h := newTestHandler(t, &testutil.MockTransport{})
		for _, next := range []string{"//evil.com/x", "https://evil.com", "/\\evil.com"} {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/oauth/switch?next="+url.QueryEscape(next), nil)

			h.SwitchAccount(w, r)

			assertRedirect(t, w, oauth.AuthorizeURL(h.Config, "https://a.com/"))
		}
	})
}

// --- Logout ---

func TestLogout(t *testing.T) {
	h := newTestHandler(t, &testutil.MockTransport{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/oauth/logout", nil)
	addIdentityCookies(r, "oX1", "uY2", `{"nick":"A"}`)

	h.Logout(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"message":"logged out"}` {
		t.Errorf("body: got %q", body)
	}
	assertClearedIdentityCookies(t, w)
	if c := responseCookies(w)[session.Key(testAppID, session.FieldFlow)]; c == nil || c.MaxAge >= 0 {
		t.Errorf("flow cookie: expected cleared, got %+v", c)
	}
}

// --- Me ---

func TestMe(t *testing.T) {
	t.Run("returns identity and profile", func(t *testing.T) {
		h := newTestHandler(t, &testutil.MockTransport{})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		addIdentityCookies(r, "oX1", "uY2", `{"nick":"A"}`)
		ctx := context.WithValue(r.Context(), identityKey, session.Identity{PrimaryID: "oX1", SecondaryID: "uY2"})

		h.Me(w, r.WithContext(ctx))

		if w.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", w.Code)
		}
		want := `{"openId":"oX1","unionId":"uY2","userInfo":{"nick":"A"}}`
		if body := w.Body.String(); body != want {
			t.Errorf("body:\nexpected %s\n     got %s", want, body)
		}
	})

	t.Run("unparseable profile reads as empty", func(t *testing.T) {
		h := newTestHandler(t, &testutil.MockTransport{})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		addIdentityCookies(r, "oX1", "", "not-json")
		ctx := context.WithValue(r.Context(), identityKey, session.Identity{PrimaryID: "oX1"})

		h.Me(w, r.WithContext(ctx))

		if body := w.Body.String(); body != `{"openId":"oX1","userInfo":{}}` {
			t.Errorf("body: got %s", body)
		}
	})

	t.Run("missing identity returns Unauthorized", func(t *testing.T) {
		h := newTestHandler(t, &testutil.MockTransport{})
		w := httptest.NewRecorder()

		h.Me(w, httptest.NewRequest(http.MethodGet, "/me", nil))

		assertUnauthorized(t, w, "unauthorized")
	})
}

// --- Home ---

func TestHome(t *testing.T) {
	h := newTestHandler(t, &testutil.MockTransport{})
	w := httptest.NewRecorder()

	h.Home(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "logged in") {
		t.Errorf("unexpected response: %d %s", w.Code, w.Body.String())
	}
}

// --- URL helpers ---

func TestIsLocalPath(t *testing.T) {
	cases := map[string]bool{
		"/":              true,
		"/a/b?c=d":       true,
		"":               false,
		"a/b":            false,
		"//evil.com":     false,
		"/\\evil.com":    false,
		"https://a.com/": false,
	}
	for in, want := range cases {
		if got := isLocalPath(in); got != want {
			t.Errorf("isLocalPath(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestRequestURL(t *testing.T) {
	t.Run("configured base wins", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://internal:7865/p?x=1", nil)
		if got := requestURL(r, "https://a.com"); got != "https://a.com/p?x=1" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("derived from host", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://a.com/p?x=1", nil)
		if got := requestURL(r, ""); got != "http://a.com/p?x=1" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("honors X-Forwarded-Proto", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://a.com/p", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		if got := requestURL(r, ""); got != "https://a.com/p" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("ignores junk X-Forwarded-Proto", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://a.com/p", nil)
		r.Header.Set("X-Forwarded-Proto", "javascript")
		if got := requestURL(r, ""); got != "http://a.com/p" {
			t.Errorf("got %q", got)
		}
	})
}
