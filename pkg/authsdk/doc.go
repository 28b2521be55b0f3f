/*
Package authsdk provides a client SDK for the SSO service.

# Overview

Every call is made with one key, sent as the Authorization header. A
service backend uses its service key for everything it does on behalf of
its users; operators use a root key for administration:

	client := authsdk.NewClient("https://sso.example.com", serviceKey)
	client.ForwardedFor = endUserIP // recorded in the audit trail

	tokens, err := client.Login(ctx, authsdk.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct horse",
	})

	// Later, on each request from the user
	access, err := client.VerifyToken(ctx, authsdk.TokenRequest{Token: tokens.Access.Token})

	// When the access token expires
	fresh, err := client.RefreshToken(ctx, authsdk.TokenRequest{Token: tokens.Refresh.Token})

A refresh token can be redeemed once. Revoking the user's token key with
UpdateKey ends every token issued with it.

# Local accounts

Register, reset password, update email and update password send the user an
email with a link carrying a token. The link points at the service's
local_url; the service then calls the matching Confirm or Revoke method with
that token. Register and ResetPassword always succeed so callers cannot tell
whether an email exists.

# OAuth2

	u, err := client.OAuth2URL(ctx, "github")
	// redirect the browser to u.URL, then on the way back:
	tokens, err := client.OAuth2Callback(ctx, "github", authsdk.OAuth2CallbackRequest{
		Code:  r.FormValue("code"),
		State: r.FormValue("state"),
	})

# Error Handling

Failed calls return an *APIError carrying the status code and error kind.
errors.Is matches on the kind:

	if errors.Is(err, authsdk.ErrUnauthorised) {
		// key, token or credentials rejected
	}

Descriptions are deliberately coarse; the audit trail holds the detail.
*/
package authsdk
