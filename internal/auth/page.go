// page.go -- oauth.Page over one HTTP request.
//
// The browser's address bar is the request URL; navigating is answering with
// a 302. Navigate only records the target, the caller writes the redirect once
// the controller returns so Set-Cookie headers land first.
package auth

import (
	"net/http"
)

type page struct {
	url    string
	target string
}

func (p *page) CurrentURL() string { return p.url }

func (p *page) Navigate(target string) { p.target = target }

// originOf returns scheme://host for r, or base when configured.
func originOf(r *http.Request, base string) string {
	if base != "" {
		return base
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// requestURL rebuilds the full URL the browser requested. Fragments never
// reach the server, so a return leg must carry code/state in the query.
func requestURL(r *http.Request, base string) string {
	return originOf(r, base) + r.URL.RequestURI()
}
