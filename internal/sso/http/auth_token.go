package http

import (
	"net/http"

	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// HandleTokenVerify godoc
//
//	@Summary		Verify an access token
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TokenRequest	true	"Access token and optional custom audit record"
//	@Success		200		{object}	authsdk.UserTokenAccess
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/token/verify [post].
func (h *AuthHandler) HandleTokenVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TokenRequest
	if !decode(w, r, &req) {
		return
	}

	out, auditID, err := h.Auth.TokenVerify(r.Context(), auditMeta(r), keyValue(r), fromTokenRequest(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserTokenAccess{
		User:     toUser(out.User),
		Access:   toToken(out.Access),
		AuditRef: authsdk.AuditRef{Audit: auditID},
	})
}

// HandleTokenRefresh godoc
//
//	@Summary		Redeem a refresh token
//	@Description	A refresh token works once; the response carries a new pair.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TokenRequest	true	"Refresh token and optional custom audit record"
//	@Success		200		{object}	authsdk.UserTokenRefresh
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/token/refresh [post].
func (h *AuthHandler) HandleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TokenRequest
	if !decode(w, r, &req) {
		return
	}

	out, auditID, err := h.Auth.TokenRefresh(r.Context(), auditMeta(r), keyValue(r), fromTokenRequest(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserTokenRefresh{
		UserToken: toUserToken(out),
		AuditRef:  authsdk.AuditRef{Audit: auditID},
	})
}

// HandleTokenRevoke godoc
//
//	@Summary		Revoke a token
//	@Description	Consumes a refresh token so it cannot be redeemed. Access tokens are accepted and run out on their own.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TokenRequest	true	"Token and optional custom audit record"
//	@Success		200		{object}	authsdk.AuditRef
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/token/revoke [post].
func (h *AuthHandler) HandleTokenRevoke(w http.ResponseWriter, r *http.Request) {
	revokeHandler(h.Auth.TokenRevoke)(w, r)
}

// HandleKeyVerify godoc
//
//	@Summary	Verify a user's API key
//	@Tags		Keys
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.KeyRequest	true	"User key value and optional custom audit record"
//	@Success	200		{object}	authsdk.UserKey
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/auth/key/verify [post].
func (h *AuthHandler) HandleKeyVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.KeyRequest
	if !decode(w, r, &req) {
		return
	}

	out, auditID, err := h.Auth.KeyVerify(r.Context(), auditMeta(r), keyValue(r), service.KeyRequest{
		Key:   req.Key,
		Audit: fromAuditCreate(req.Audit),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserKey{
		User:     toUser(out.User),
		Key:      toKey(out.Key),
		AuditRef: authsdk.AuditRef{Audit: auditID},
	})
}

// HandleKeyRevoke godoc
//
//	@Summary	Revoke a user's API key
//	@Tags		Keys
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.KeyRequest	true	"User key value and optional custom audit record"
//	@Success	200		{object}	authsdk.AuditRef
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/auth/key/revoke [post].
func (h *AuthHandler) HandleKeyRevoke(w http.ResponseWriter, r *http.Request) {
	var req authsdk.KeyRequest
	if !decode(w, r, &req) {
		return
	}

	auditID, err := h.Auth.KeyRevoke(r.Context(), auditMeta(r), keyValue(r), service.KeyRequest{
		Key:   req.Key,
		Audit: fromAuditCreate(req.Audit),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.AuditRef{Audit: auditID})
}

// HandleTotpVerify godoc
//
//	@Summary	Verify a TOTP code
//	@Tags		TOTP
//	@Accept		json
//	@Param		request	body	authsdk.TotpRequest	true	"User and code"
//	@Success	204
//	@Failure	400	{object}	authsdk.ErrorResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/auth/totp [post].
func (h *AuthHandler) HandleTotpVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TotpRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.Auth.TotpVerify(r.Context(), auditMeta(r), keyValue(r), service.TotpRequest{
		UserID: req.UserID,
		Code:   req.Code,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}
