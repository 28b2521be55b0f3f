package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// HandleCsrfCreate godoc
//
//	@Summary	Create a single-use CSRF entry
//	@Tags		CSRF
//	@Produce	json
//	@Param		expires_s	query		int	false	"Lifetime in seconds (default 3600, max 86400)"
//	@Success	200			{object}	authsdk.Csrf
//	@Failure	400			{object}	authsdk.ErrorResponse
//	@Failure	401			{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/auth/csrf [get].
func (h *AuthHandler) HandleCsrfCreate(w http.ResponseWriter, r *http.Request) {
	var expiresS *int64
	if s := r.URL.Query().Get("expires_s"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeInvalidQuery(w, "expires_s")
			return
		}
		expiresS = &n
	}

	out, err := h.Auth.CsrfCreate(r.Context(), auditMeta(r), keyValue(r), expiresS)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCsrf(out))
}

// HandleCsrfVerify godoc
//
//	@Summary		Consume a CSRF entry
//	@Description	Succeeds once per entry. Expired, consumed and foreign entries are all rejected the same way.
//	@Tags			CSRF
//	@Accept			json
//	@Param			request	body	authsdk.CsrfVerifyRequest	true	"Entry key"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/auth/csrf [post].
func (h *AuthHandler) HandleCsrfVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CsrfVerifyRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.Auth.CsrfVerify(r.Context(), auditMeta(r), keyValue(r), req.Key); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}
