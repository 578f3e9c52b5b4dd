// cookie.go -- Storage backed by the request's cookies and the response's Set-Cookie headers.
//
// One CookieStorage lives for exactly one request. Writes are overlaid on top of
// the inbound cookies so a read after a write in the same request sees the new
// value, the way document.cookie behaves in a browser.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CookieOptions holds the cookie attributes applied to every entry.
// Path and Domain are storage-layer concerns; the session cache never sets them.
type CookieOptions struct {
	Path     string // defaults to "/"
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite // defaults to Lax
}

type overlayEntry struct {
	value   string
	removed bool
}

// CookieStorage implements Storage over a single HTTP exchange.
type CookieStorage struct {
	w       http.ResponseWriter
	r       *http.Request
	opts    CookieOptions
	overlay map[string]overlayEntry
	now     func() time.Time
}

// NewCookieStorage binds a CookieStorage to w and r.
func NewCookieStorage(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStorage {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &CookieStorage{
		w:       w,
		r:       r,
		opts:    opts,
		overlay: make(map[string]overlayEntry),
		now:     time.Now,
	}
}

// Get returns the decoded cookie value. Values that fail to percent-decode were
// not written by us and are reported as absent.
func (s *CookieStorage) Get(key string) (string, bool, error) {
	if e, ok := s.overlay[key]; ok {
		if e.removed {
			return "", false, nil
		}
		return e.value, true, nil
	}

	c, err := s.r.Cookie(key)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading cookie %q: %w", key, err)
	}
	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		return "", false, nil
	}
	return v, true, nil
}

// Set writes a persistent cookie expiring after ttl.
func (s *CookieStorage) Set(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("storing cookie %q: ttl must be positive, got %s", key, ttl)
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		Expires:  s.now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		Secure:   s.opts.Secure,
		HttpOnly: s.opts.HttpOnly,
		SameSite: s.opts.SameSite,
	})
	s.overlay[key] = overlayEntry{value: value}
	return nil
}

// Remove expires the cookie immediately. Safe to call for cookies the client never sent.
func (s *CookieStorage) Remove(key string) error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		MaxAge:   -1,
		Secure:   s.opts.Secure,
		HttpOnly: s.opts.HttpOnly,
		SameSite: s.opts.SameSite,
	})
	s.overlay[key] = overlayEntry{removed: true}
	return nil
}
