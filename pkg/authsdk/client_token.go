package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// VerifyToken checks an access token and returns its user.
func (c *Client) VerifyToken(ctx context.Context, req TokenRequest) (*UserTokenAccess, error) {
	return call[UserTokenAccess](ctx, c, http.MethodPost, "/v1/auth/token/verify", nil, req, http.StatusOK)
}

// RefreshToken redeems a refresh token for a new pair. A refresh token
// works once.
func (c *Client) RefreshToken(ctx context.Context, req TokenRequest) (*UserTokenRefresh, error) {
	return call[UserTokenRefresh](ctx, c, http.MethodPost, "/v1/auth/token/refresh", nil, req, http.StatusOK)
}

// RevokeToken revokes a refresh token so it can no longer be redeemed.
// Access tokens are accepted but simply run out.
func (c *Client) RevokeToken(ctx context.Context, req TokenRequest) (*AuditRef, error) {
	return call[AuditRef](ctx, c, http.MethodPost, "/v1/auth/token/revoke", nil, req, http.StatusOK)
}

// VerifyKey resolves a user key value to its user.
func (c *Client) VerifyKey(ctx context.Context, req KeyRequest) (*UserKey, error) {
	return call[UserKey](ctx, c, http.MethodPost, "/v1/auth/key/verify", nil, req, http.StatusOK)
}

// RevokeKey permanently revokes a user key.
func (c *Client) RevokeKey(ctx context.Context, req KeyRequest) (*AuditRef, error) {
	return call[AuditRef](ctx, c, http.MethodPost, "/v1/auth/key/revoke", nil, req, http.StatusOK)
}

// VerifyTotp checks a code against the user's TOTP key.
func (c *Client) VerifyTotp(ctx context.Context, req TotpRequest) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/totp", req)
}

// CreateCsrf creates a single-use entry. A nil expiresS uses the server
// default.
func (c *Client) CreateCsrf(ctx context.Context, expiresS *int64) (*Csrf, error) {
	var q url.Values
	if expiresS != nil {
		q = url.Values{"expires_s": {strconv.FormatInt(*expiresS, 10)}}
	}
	return call[Csrf](ctx, c, http.MethodGet, "/v1/auth/csrf", q, nil, http.StatusOK)
}

// VerifyCsrf consumes an entry. A second call with the same key fails.
func (c *Client) VerifyCsrf(ctx context.Context, key string) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/csrf", CsrfVerifyRequest{Key: key})
}

// OAuth2URL returns the provider URL to send the browser to.
func (c *Client) OAuth2URL(ctx context.Context, provider string) (*OAuth2URLResponse, error) {
	return call[OAuth2URLResponse](ctx, c, http.MethodGet,
		"/v1/auth/provider/"+url.PathEscape(provider)+"/oauth2", nil, nil, http.StatusOK)
}

// OAuth2Callback completes a provider login with the code and state the
// browser came back with.
func (c *Client) OAuth2Callback(ctx context.Context, provider string, req OAuth2CallbackRequest) (*UserToken, error) {
	return call[UserToken](ctx, c, http.MethodPost,
		"/v1/auth/provider/"+url.PathEscape(provider)+"/oauth2", nil, req, http.StatusOK)
}
