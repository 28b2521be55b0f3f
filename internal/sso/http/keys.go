package http

import (
	"net/http"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// KeysHandler serves /v1/keys for service and root keys. Service keys only
// see keys of their own service.
type KeysHandler struct {
	Admin *service.AdminService
}

// HandleList godoc
//
//	@Summary		List keys
//	@Tags			Keys
//	@Produce		json
//	@Param			service_id	query		string	false	"Filter by service (root only)"
//	@Param			user_id		query		string	false	"Filter by user"
//	@Param			type		query		string	false	"Filter by type"	Enums(key, token, totp)
//	@Param			after_id	query		string	false	"Return keys after this id"
//	@Param			limit		query		int		false	"Page size"
//	@Success		200			{object}	authsdk.ListResponse[authsdk.Key]
//	@Failure		400			{object}	authsdk.ErrorResponse
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/keys [get].
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeInvalidQuery(w, "limit")
		return
	}
	f := domain.KeyFilter{
		ServiceID: q.Get("service_id"),
		UserID:    q.Get("user_id"),
		Limit:     limit,
		AfterID:   q.Get("after_id"),
	}
	if t := q.Get("type"); t != "" {
		if f.Type, err = domain.ParseKeyType(t); err != nil {
			writeInvalidQuery(w, "type")
			return
		}
	}

	out, err := h.Admin.KeyList(r.Context(), auditMeta(r), keyValue(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListResponse[authsdk.Key]{Data: mapSlice(out, toKey)})
}

// HandleCreate godoc
//
//	@Summary		Create a key
//	@Description	Returns the key value once; it cannot be read back. Service keys may only create
//	@Description	keys for their own users. Token and totp keys need a user; totp keys also return an
//	@Description	otpauth:// URL for enrolment.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.KeyCreateRequest	true	"Key"
//	@Success		201		{object}	authsdk.KeyWithValue
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/keys [post].
func (h *KeysHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.KeyCreateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Admin.KeyCreate(r.Context(), auditMeta(r), keyValue(r), service.KeyCreateRequest{
		Name:      req.Name,
		Type:      parseKeyType(req.Type),
		ServiceID: req.ServiceID,
		UserID:    req.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.KeyWithValue{
		Key:     toKey(out.Key),
		Value:   out.Value,
		TotpURL: out.TotpURL,
	})
}

// HandleRead godoc
//
//	@Summary	Read a key
//	@Tags		Keys
//	@Produce	json
//	@Param		id	path		string	true	"Key id"
//	@Success	200	{object}	authsdk.Key
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/keys/{id} [get].
func (h *KeysHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	out, err := h.Admin.KeyRead(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toKey(out))
}

// HandleUpdate godoc
//
//	@Summary		Update a key
//	@Description	Revoked can only be set, never cleared.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Key id"
//	@Param			request	body		authsdk.KeyUpdateRequest	true	"Changes"
//	@Success		200		{object}	authsdk.Key
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/keys/{id} [patch].
func (h *KeysHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.KeyUpdateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Admin.KeyUpdate(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"), domain.KeyUpdate{
		Name:    req.Name,
		Enabled: req.Enabled,
		Revoked: req.Revoked,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toKey(out))
}

// HandleDelete godoc
//
//	@Summary	Delete a key
//	@Tags		Keys
//	@Param		id	path	string	true	"Key id"
//	@Success	204
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/keys/{id} [delete].
func (h *KeysHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.KeyDelete(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}
