package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// AuthHandler serves /v1/auth. Every route takes a service key; user
// credentials and tokens travel in the body.
type AuthHandler struct {
	Auth *service.AuthService
}

// HandleLogin godoc
//
//	@Summary		Log in with email and password
//	@Description	Issues a fresh access and refresh token pair signed with the user's token key.
//	@Tags			Local
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.UserToken
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse	"Password update required"
//	@Security		KeyAuth
//	@Router			/v1/auth/local/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Auth.Login(r.Context(), auditMeta(r), keyValue(r), service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserToken(out))
}

// HandleRegister godoc
//
//	@Summary		Start a registration
//	@Description	Answers 204 whether or not an email was sent, so existing addresses do not leak.
//	@Tags			Local
//	@Accept			json
//	@Param			request	body	authsdk.RegisterRequest	true	"New user"
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/local/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.Auth.Register(r.Context(), auditMeta(r), keyValue(r), service.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Locale:   req.Locale,
		Timezone: req.Timezone,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// HandleRegisterConfirm godoc
//
//	@Summary	Confirm a registration
//	@Tags		Local
//	@Accept		json
//	@Param		request	body	authsdk.ConfirmRequest	true	"Token from the email and optional password"
//	@Success	204
//	@Failure	400	{object}	authsdk.ErrorResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/auth/local/register/confirm [post].
func (h *AuthHandler) HandleRegisterConfirm(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.Auth.RegisterConfirm)
}

// HandleResetPassword godoc
//
//	@Summary		Start a password reset
//	@Description	Answers 204 whether or not the user exists.
//	@Tags			Local
//	@Accept			json
//	@Param			request	body	authsdk.ResetPasswordRequest	true	"Email"
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/local/reset-password [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.Auth.ResetPassword(r.Context(), auditMeta(r), keyValue(r), service.ResetPasswordRequest{Email: req.Email})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// HandleResetPasswordConfirm godoc
//
//	@Summary	Confirm a password reset
//	@Tags		Local
//	@Accept		json
//	@Param		request	body	authsdk.ConfirmRequest	true	"Token from the email and new password"
//	@Success	204
//	@Failure	400	{object}	authsdk.ErrorResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/auth/local/reset-password/confirm [post].
func (h *AuthHandler) HandleResetPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.Auth.ResetPasswordConfirm)
}

// HandleUpdateEmail godoc
//
//	@Summary		Change a user's email
//	@Description	Notifies the old address with a revoke link.
//	@Tags			Local
//	@Accept			json
//	@Param			request	body	authsdk.UpdateEmailRequest	true	"User, current password and new email"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		409	{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/local/update-email [post].
func (h *AuthHandler) HandleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateEmailRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.Auth.UpdateEmail(r.Context(), auditMeta(r), keyValue(r), service.UpdateEmailRequest{
		UserID:   req.UserID,
		Password: req.Password,
		NewEmail: req.NewEmail,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// HandleUpdatePassword godoc
//
//	@Summary	Change a user's password
//	@Tags		Local
//	@Accept		json
//	@Param		request	body	authsdk.UpdatePasswordRequest	true	"User, current and new password"
//	@Success	204
//	@Failure	400	{object}	authsdk.ErrorResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/auth/local/update-password [post].
func (h *AuthHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdatePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.Auth.UpdatePassword(r.Context(), auditMeta(r), keyValue(r), service.UpdatePasswordRequest{
		UserID:      req.UserID,
		Password:    req.Password,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// HandleRevoke godoc
//
//	@Summary		Redeem a revoke token from a notification email
//	@Description	Consumes the token so it cannot be replayed and records the revoke, with an optional
//	@Description	custom audit record, for the calling service to act on. The same body is accepted on
//	@Description	register/revoke, reset-password/revoke, update-email/revoke and update-password/revoke.
//	@Description	Works for disabled users and keys.
//	@Tags			Local
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TokenRequest	true	"Revoke token"
//	@Success		200		{object}	authsdk.AuditRef
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/local/register/revoke [post].
func revokeHandler(revoke revokeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.TokenRequest
		if !decode(w, r, &req) {
			return
		}

		auditID, err := revoke(r.Context(), auditMeta(r), keyValue(r), fromTokenRequest(req))
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.AuditRef{Audit: auditID})
	}
}

type (
	confirmFunc func(context.Context, domain.AuditMeta, string, service.ConfirmRequest) error
	revokeFunc  func(context.Context, domain.AuditMeta, string, service.TokenRequest) (string, error)
)

func (h *AuthHandler) confirm(w http.ResponseWriter, r *http.Request, fn confirmFunc) {
	var req authsdk.ConfirmRequest
	if !decode(w, r, &req) {
		return
	}

	err := fn(r.Context(), auditMeta(r), keyValue(r), service.ConfirmRequest{
		Token:              req.Token,
		Password:           req.Password,
		PasswordAllowReset: req.PasswordAllowReset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}
