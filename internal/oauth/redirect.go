package oauth

// redirectMarker selects the provider's in-app browser flow. It must be the
// final segment of the authorize URL.
const redirectMarker = "#wechat_redirect"

// AuthorizeURL builds the provider URL the browser is sent to.
// Parameters appear in the order the provider documents:
// appid, redirect_uri, response_type, scope, state.
// Stale code/state parameters are stripped from currentURL first so a
// malformed return leg cannot bounce back into itself.
func AuthorizeURL(cfg ClientConfig, currentURL string) string {
	redirectURI := StripParams(currentURL, "code", "state")
	return cfg.AuthorizeEndpoint + BuildQuery(
		Param{Key: "appid", Value: cfg.AppID},
		Param{Key: "redirect_uri", Value: redirectURI},
		Param{Key: "response_type", Value: "code"},
		Param{Key: "scope", Value: string(cfg.Scope)},
		Param{Key: "state", Value: cfg.State},
	) + redirectMarker
}
