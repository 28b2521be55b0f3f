package http

import (
	"net/http"

	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// HandleOAuth2URL godoc
//
//	@Summary		Start a provider login
//	@Description	Returns the provider authorize URL with state and a PKCE challenge. The state is
//	@Description	single use and expires with the access token lifetime.
//	@Tags			OAuth2
//	@Produce		json
//	@Param			provider	path		string	true	"Provider"	Enums(github, microsoft, oidc)
//	@Success		200			{object}	authsdk.OAuth2URLResponse
//	@Failure		400			{object}	authsdk.ErrorResponse
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/provider/{provider}/oauth2 [get].
func (h *AuthHandler) HandleOAuth2URL(w http.ResponseWriter, r *http.Request) {
	out, err := h.Auth.OAuth2URL(r.Context(), auditMeta(r), keyValue(r), r.PathValue("provider"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.OAuth2URLResponse{URL: out})
}

// HandleOAuth2Callback godoc
//
//	@Summary		Complete a provider login
//	@Description	Exchanges the code, looks up the user by the provider's email and issues a token pair.
//	@Description	Users are never created here.
//	@Tags			OAuth2
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string							true	"Provider"	Enums(github, microsoft, oidc)
//	@Param			request		body		authsdk.OAuth2CallbackRequest	true	"Code and state from the redirect"
//	@Success		200			{object}	authsdk.UserToken
//	@Failure		400			{object}	authsdk.ErrorResponse
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/provider/{provider}/oauth2 [post].
func (h *AuthHandler) HandleOAuth2Callback(w http.ResponseWriter, r *http.Request) {
	var req authsdk.OAuth2CallbackRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Auth.OAuth2Callback(r.Context(), auditMeta(r), keyValue(r), r.PathValue("provider"), service.OAuth2CallbackRequest{
		Code:  req.Code,
		State: req.State,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserToken(out))
}
