// config.go -- Client configuration, validation, and default hooks.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MGallo-Code/wxauth/internal/session"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
)

const (
	// DefaultAuthorizeEndpoint is the provider's browser authorize page.
	DefaultAuthorizeEndpoint = "https://open.weixin.qq.com/connect/oauth2/authorize"
	// DefaultSessionTTLDays is how long cached identities live.
	DefaultSessionTTLDays = 30
	// MaxSessionTTLDays keeps the TTL well inside time.Duration.
	MaxSessionTTLDays = 36500
	// FlowTTL bounds how long a browser may take at the provider.
	FlowTTL = 10 * time.Minute
)

// ClientConfig is fixed for the life of the process. Build it once, call
// Normalize, and share the result between controllers.
type ClientConfig struct {
	AppID             string `validate:"required,max=64,cookiename"`
	Scope             Scope  `validate:"oneof=snsapi_base snsapi_userinfo"`
	SessionTTLDays    int    `validate:"gte=1,lte=36500"`
	State             string `validate:"max=128"`
	ExchangeEndpoint  string `validate:"required,url"`
	AuthorizeEndpoint string `validate:"required,url"`

	// StrictState rejects return legs whose state differs from State.
	// Off by default: the provider echoes state and is trusted.
	StrictState bool

	// OnExchangeSuccess maps the backend's raw response to an identity.
	// It must not have side effects; returning an error (or panicking) is
	// treated as an exchange failure.
	OnExchangeSuccess func(raw []byte) (session.Identity, error) `validate:"-"`

	// OnExchangeFailure is called exactly once per failed exchange.
	OnExchangeFailure func(ctx context.Context, err error) `validate:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// App IDs end up in cookie names, which must be RFC 6265 tokens.
	if err := v.RegisterValidation("cookiename", func(fl validator.FieldLevel) bool {
		return isCookieToken(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func isCookieToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x20 || c >= 0x7f || strings.IndexByte(`()<>@,;:\"/[]?={}`, c) >= 0 {
			return false
		}
	}
	return s != ""
}

// Normalize fills defaults and validates. When State is empty a random one is
// generated here, so every controller sharing the config sends the same value.
func (c ClientConfig) Normalize() (ClientConfig, error) {
	if c.Scope == "" {
		c.Scope = ScopeBase
	}
	if c.SessionTTLDays == 0 {
		c.SessionTTLDays = DefaultSessionTTLDays
	}
	if c.AuthorizeEndpoint == "" {
		c.AuthorizeEndpoint = DefaultAuthorizeEndpoint
	}
	if c.State == "" {
		state, err := newNonce()
		if err != nil {
			return ClientConfig{}, fmt.Errorf("generating oauth state: %w", err)
		}
		c.State = state
	}
	if c.OnExchangeSuccess == nil {
		c.OnExchangeSuccess = DefaultExchangeMapper
	}
	if c.OnExchangeFailure == nil {
		c.OnExchangeFailure = logExchangeFailure
	}
	if err := validate.Struct(c); err != nil {
		return ClientConfig{}, fmt.Errorf("invalid oauth client config: %w", err)
	}
	return c, nil
}

// newNonce returns 32 random hex characters.
func newNonce() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// exchangeRequest is the body posted to the exchange endpoint.
type exchangeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// exchangeResponse is the shape DefaultExchangeMapper understands. Field
// matching is case-insensitive, so "openid" and "openId" both work. Backends
// that wrap their payload in {"data": {...}} are unwrapped one level.
type exchangeResponse struct {
	OpenID   string            `json:"openId"`
	UnionID  string            `json:"unionId"`
	UserInfo map[string]any    `json:"userInfo"`
	Data     *exchangeResponse `json:"data"`
}

// DefaultExchangeMapper decodes {"openId", "unionId", "userInfo"}.
func DefaultExchangeMapper(raw []byte) (session.Identity, error) {
	var resp exchangeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return session.Identity{}, fmt.Errorf("decoding exchange response: %w", err)
	}
	if resp.OpenID == "" && resp.UnionID == "" && resp.Data != nil {
		resp = *resp.Data
	}
	return session.Identity{
		PrimaryID:   resp.OpenID,
		SecondaryID: resp.UnionID,
		Profile:     resp.UserInfo,
	}, nil
}

func logExchangeFailure(ctx context.Context, err error) {
	slog.WarnContext(ctx, "oauth exchange failed", "error", err)
}
