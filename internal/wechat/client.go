// client.go -- WeChat web OAuth2 server-side calls.
//
// WeChat's token endpoint is not RFC 6749: it is a GET that takes appid/secret
// as query params and reports errors as {"errcode", "errmsg"} with HTTP 200.
// The response is still mapped onto *oauth2.Token so callers get the usual
// expiry handling, with openid/unionid/scope carried as extras.
package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAPIBase is WeChat's public API host.
const DefaultAPIBase = "https://api.weixin.qq.com"

// ErrMissingOpenID is returned when a token response carries no openid.
var ErrMissingOpenID = errors.New("wechat token response missing openid")

// APIError is a non-zero errcode in a WeChat response.
type APIError struct {
	Code    int    `json:"errcode"`
	Message string `json:"errmsg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat api error %d: %s", e.Code, e.Message)
}

// User is the profile returned by /sns/userinfo.
type User struct {
	OpenID     string   `json:"openid"`
	UnionID    string   `json:"unionid,omitempty"`
	Nickname   string   `json:"nickname"`
	Sex        int      `json:"sex"`
	Province   string   `json:"province"`
	City       string   `json:"city"`
	Country    string   `json:"country"`
	HeadImgURL string   `json:"headimgurl"`
	Privilege  []string `json:"privilege"`
}

// Client calls the WeChat API with one official account's credentials.
type Client struct {
	AppID   string
	Secret  string
	APIBase string
	HTTP    *http.Client
}

// NewClient returns a Client for appID. An empty apiBase means DefaultAPIBase.
func NewClient(appID, secret, apiBase string, timeout time.Duration) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		AppID:   appID,
		Secret:  secret,
		APIBase: strings.TrimRight(apiBase, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	APIError
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	UnionID      string `json:"unionid"`
	Scope        string `json:"scope"`
}

// Exchange trades an authorization code for a web access token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	q := url.Values{}
	q.Set("appid", c.AppID)
	q.Set("secret", c.Secret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")

	var resp tokenResponse
	if err := c.get(ctx, "/sns/oauth2/access_token", q, &resp); err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	if resp.OpenID == "" {
		return nil, ErrMissingOpenID
	}

	tok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return tok.WithExtra(map[string]any{
		"openid":  resp.OpenID,
		"unionid": resp.UnionID,
		"scope":   resp.Scope,
	}), nil
}

// UserInfo fetches the profile for tok. Only valid for snsapi_userinfo grants.
func (c *Client) UserInfo(ctx context.Context, tok *oauth2.Token) (*User, error) {
	if !tok.Valid() {
		return nil, errors.New("wechat access token expired or empty")
	}
	q := url.Values{}
	q.Set("access_token", tok.AccessToken)
	q.Set("openid", OpenID(tok))
	q.Set("lang", "zh_CN")

	var user struct {
		APIError
		User
	}
	if err := c.get(ctx, "/sns/userinfo", q, &user); err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	return &user.User, nil
}

// get issues GET {APIBase}{path}?{q} and decodes the JSON body into out.
// out must embed APIError so errcode can be checked.
func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{ apiErr() *APIError }) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBase+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if e := out.apiErr(); e.Code != 0 {
		return e
	}
	return nil
}

func (e *APIError) apiErr() *APIError { return e }

// OpenID returns the openid extra carried by tok.
func OpenID(tok *oauth2.Token) string { return extraString(tok, "openid") }

// UnionID returns the unionid extra carried by tok, if any.
func UnionID(tok *oauth2.Token) string { return extraString(tok, "unionid") }

// Scope returns the granted scopes carried by tok.
func Scope(tok *oauth2.Token) string { return extraString(tok, "scope") }

// HasUserInfoScope reports whether tok may call UserInfo.
func HasUserInfoScope(tok *oauth2.Token) bool {
	for _, s := range strings.Split(Scope(tok), ",") {
		if strings.TrimSpace(s) == "snsapi_userinfo" {
			return true
		}
	}
	return false
}

func extraString(tok *oauth2.Token, key string) string {
	if tok == nil {
		return ""
	}
	s, _ := tok.Extra(key).(string)
	return s
}

// Identity is what the exchange endpoint hands back to the browser-side
// controller.
type Identity struct {
	OpenID   string         `json:"openId"`
	UnionID  string         `json:"unionId,omitempty"`
	UserInfo map[string]any `json:"userInfo"`
}

// Login exchanges code and, when the grant allows it, fetches the profile.
// A failed profile fetch is returned as an error; the code is spent either way.
func (c *Client) Login(ctx context.Context, code string) (*Identity, error) {
	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	id := &Identity{
		OpenID:   OpenID(tok),
		UnionID:  UnionID(tok),
		UserInfo: map[string]any{},
	}
	if !HasUserInfoScope(tok) {
		return id, nil
	}

	user, err := c.UserInfo(ctx, tok)
	if err != nil {
		return nil, err
	}
	if id.UnionID == "" {
		id.UnionID = user.UnionID
	}
	id.UserInfo = map[string]any{
		"nickname":   user.Nickname,
		"sex":        user.Sex,
		"province":   user.Province,
		"city":       user.City,
		"country":    user.Country,
		"headimgurl": user.HeadImgURL,
	}
	return id, nil
}
