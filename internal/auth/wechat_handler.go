// wechat_handler.go -- Built-in trusted exchange backend.
//
// The browser-facing controller never sees the app secret. It posts
// {code, state} here and gets back {openId, unionId, userInfo}, the shape
// oauth.DefaultExchangeMapper reads.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MGallo-Code/wxauth/internal/wechat"
)

// WechatExchange handles POST /wechat/exchange.
// Returns 200 with the identity, 400 for a missing code, 401 when WeChat
// rejects the code, 502 for any other upstream failure.
func (h *AuthHandler) WechatExchange(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&input); err != nil {
		logWarn(r, "failed to decode exchange input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}
	if input.Code == "" {
		BadRequest(w, r, "code required")
		return
	}

	id, err := h.WX.Login(r.Context(), input.Code)
	if err != nil {
		var apiErr *wechat.APIError
		if errors.As(err, &apiErr) {
			logWarn(r, "wechat rejected code", "errcode", apiErr.Code, "errmsg", apiErr.Message)
			Unauthorized(w, r, "invalid code")
			return
		}
		logError(r, "wechat exchange failed", "error", err)
		BadGateway(w, r, "upstream exchange failed")
		return
	}

	logInfo(r, "code exchanged", "openid", id.OpenID)
	JSON(w, r, http.StatusOK, id)
}
