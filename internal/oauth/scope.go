package oauth

import "github.com/MGallo-Code/wxauth/internal/session"

// Scope is the level of identity proof requested from the provider.
type Scope string

const (
	// ScopeBase proves only the per-app openId.
	ScopeBase Scope = "snsapi_base"
	// ScopeUserInfo proves the cross-app unionId and returns profile data.
	ScopeUserInfo Scope = "snsapi_userinfo"
)

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	return s == ScopeBase || s == ScopeUserInfo
}

// IsLoggedIn reports whether id is sufficient proof for scope.
// Under ScopeBase the openId is required. Under ScopeUserInfo the unionId is
// preferred and the openId is accepted as a fallback.
func IsLoggedIn(scope Scope, id session.Identity) bool {
	switch scope {
	case ScopeUserInfo:
		return id.SecondaryID != "" || id.PrimaryID != ""
	default:
		return id.PrimaryID != ""
	}
}
