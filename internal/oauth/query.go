// query.go -- URL query helpers tolerant of the provider's return-leg quirks.
package oauth

import (
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"
)

// paramDelims terminate a parameter value. '#' is included because the provider
// appends "#wechat_redirect" and some mobile browsers fold it into the query.
const paramDelims = "&;#"

// lookupParam finds name in rawURL's query or fragment.
// present is true when "name=" occurs after a '?', '&', ';' or '#' (or at the
// start of rawURL). value is query-decoded, so "+" is a space the way
// url.Values and most proxies encode it; ok is false when decoding failed.
func lookupParam(rawURL, name string) (value string, present, ok bool) {
	needle := name + "="
	for from := 0; from < len(rawURL); {
		idx := strings.Index(rawURL[from:], needle)
		if idx < 0 {
			return "", false, false
		}
		start := from + idx
		if start == 0 || strings.IndexByte("?"+paramDelims, rawURL[start-1]) >= 0 {
			raw := rawURL[start+len(needle):]
			if end := strings.IndexAny(raw, paramDelims); end >= 0 {
				raw = raw[:end]
			}
			v, err := url.QueryUnescape(raw)
			if err != nil {
				return "", true, false
			}
			return v, true, true
		}
		from = start + 1
	}
	return "", false, false
}

// QueryParam returns the decoded value of name in rawURL, or "" when absent
// or undecodable. Delimiters '&', ';', '#' and end-of-string are equivalent.
func QueryParam(rawURL, name string) string {
	v, _, ok := lookupParam(rawURL, name)
	if !ok {
		return ""
	}
	return v
}

// ReturnLeg is the code/state pair the provider appends when redirecting back.
type ReturnLeg struct {
	Code  string
	State string

	// Malformed is set when a code parameter was present but empty or undecodable.
	Malformed bool
}

// ParseReturnLeg extracts code and state from rawURL.
func ParseReturnLeg(rawURL string) ReturnLeg {
	code, present, ok := lookupParam(rawURL, "code")
	leg := ReturnLeg{Code: code}
	if present && (!ok || code == "") {
		leg.Code = ""
		leg.Malformed = true
		return leg
	}
	if leg.Code != "" {
		leg.State = QueryParam(rawURL, "state")
	}
	return leg
}

// Param is one key/value pair for BuildQuery. A nil Value (including a typed
// nil pointer) drops the pair.
type Param struct {
	Key   string
	Value any
}

// BuildQuery joins params into "?k=v&k2=v2", skipping nil values.
// Keys and values are percent-encoded. Returns "" when no pair survives.
func BuildQuery(params ...Param) string {
	var b strings.Builder
	for _, p := range params {
		v, ok := paramValue(p.Value)
		if !ok {
			continue
		}
		if b.Len() == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(escapeComponent(p.Key))
		b.WriteByte('=')
		b.WriteString(escapeComponent(v))
	}
	return b.String()
}

// paramValue formats v, reporting false for nil and typed nil values.
func paramValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "", false
		}
		return paramValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return "", false
		}
	}
	return fmt.Sprint(v), true
}

// escapeComponent percent-encodes s the way browsers' encodeURIComponent does
// for the characters that matter here (spaces become %20, not '+').
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// StripParams removes every occurrence of names from rawURL's query, keeping
// the order of the remaining parameters. rawURL is returned unchanged if it
// does not parse.
func StripParams(rawURL string, names ...string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	parts := strings.Split(u.RawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		if part == "" || slices.Contains(names, key) {
			continue
		}
		kept = append(kept, part)
	}
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}
