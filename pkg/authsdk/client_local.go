package authsdk

import (
	"context"
	"net/http"
)

// Login exchanges an email and password for a token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*UserToken, error) {
	return call[UserToken](ctx, c, http.MethodPost, "/v1/auth/local/login", nil, req, http.StatusOK)
}

// Register asks for a registration email. It succeeds whether or not the
// email was sent.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/local/register", req)
}

// RegisterConfirm redeems the token from the registration email.
func (c *Client) RegisterConfirm(ctx context.Context, req ConfirmRequest) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/local/register/confirm", req)
}

// RegisterRevoke redeems the revoke token sent after registration. The
// returned audit id names the optional custom record written with it.
func (c *Client) RegisterRevoke(ctx context.Context, req TokenRequest) (*AuditRef, error) {
	return call[AuditRef](ctx, c, http.MethodPost, "/v1/auth/local/register/revoke", nil, req, http.StatusOK)
}

// ResetPassword asks for a reset email. It succeeds whether or not the
// user exists.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/local/reset-password", req)
}

func (c *Client) ResetPasswordConfirm(ctx context.Context, req ConfirmRequest) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/local/reset-password/confirm", req)
}

func (c *Client) ResetPasswordRevoke(ctx context.Context, req TokenRequest) (*AuditRef, error) {
	return call[AuditRef](ctx, c, http.MethodPost, "/v1/auth/local/reset-password/revoke", nil, req, http.StatusOK)
}

func (c *Client) UpdateEmail(ctx context.Context, req UpdateEmailRequest) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/local/update-email", req)
}

func (c *Client) UpdateEmailRevoke(ctx context.Context, req TokenRequest) (*AuditRef, error) {
	return call[AuditRef](ctx, c, http.MethodPost, "/v1/auth/local/update-email/revoke", nil, req, http.StatusOK)
}

func (c *Client) UpdatePassword(ctx context.Context, req UpdatePasswordRequest) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/local/update-password", req)
}

func (c *Client) UpdatePasswordRevoke(ctx context.Context, req TokenRequest) (*AuditRef, error) {
	return call[AuditRef](ctx, c, http.MethodPost, "/v1/auth/local/update-password/revoke", nil, req, http.StatusOK)
}
