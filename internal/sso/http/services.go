package http

import (
	"net/http"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// ServicesHandler serves /v1/services. Every route needs a root key.
type ServicesHandler struct {
	Admin *service.AdminService
}

// HandleList godoc
//
//	@Summary		List services
//	@Tags			Services
//	@Produce		json
//	@Param			after_id	query		string	false	"Return services after this id"
//	@Param			limit		query		int		false	"Page size (default 50, max 1000)"
//	@Success		200			{object}	authsdk.ListResponse[authsdk.Service]
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Failure		403			{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/services [get].
func (h *ServicesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeInvalidQuery(w, "limit")
		return
	}

	out, err := h.Admin.ServiceList(r.Context(), auditMeta(r), keyValue(r), r.URL.Query().Get("after_id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListResponse[authsdk.Service]{Data: mapSlice(out, toService)})
}

// HandleCreate godoc
//
//	@Summary		Create a service
//	@Tags			Services
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ServiceCreateRequest	true	"Service"
//	@Success		201		{object}	authsdk.Service
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Failure		409		{object}	authsdk.ErrorResponse	"Name taken"
//	@Security		KeyAuth
//	@Router			/v1/services [post].
func (h *ServicesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ServiceCreateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Admin.ServiceCreate(r.Context(), auditMeta(r), keyValue(r), domain.Service{
		Name:               req.Name,
		URL:                req.URL,
		Enabled:            req.Enabled,
		UserAllowRegister:  req.UserAllowRegister,
		UserEmailText:      req.UserEmailText,
		LocalURL:           req.LocalURL,
		OAuth2RedirectURLs: req.OAuth2RedirectURLs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toService(out))
}

// HandleRead godoc
//
//	@Summary		Read a service
//	@Tags			Services
//	@Produce		json
//	@Param			id	path		string	true	"Service id"
//	@Success		200	{object}	authsdk.Service
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/services/{id} [get].
func (h *ServicesHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	out, err := h.Admin.ServiceRead(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toService(out))
}

// HandleUpdate godoc
//
//	@Summary		Update a service
//	@Description	Absent fields are left as they are. The change set is recorded in the audit trail.
//	@Tags			Services
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"Service id"
//	@Param			request	body		authsdk.ServiceUpdateRequest	true	"Changes"
//	@Success		200		{object}	authsdk.Service
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/services/{id} [patch].
func (h *ServicesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ServiceUpdateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Admin.ServiceUpdate(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"), domain.ServiceUpdate{
		Name:               req.Name,
		URL:                req.URL,
		Enabled:            req.Enabled,
		UserAllowRegister:  req.UserAllowRegister,
		UserEmailText:      req.UserEmailText,
		LocalURL:           req.LocalURL,
		OAuth2RedirectURLs: req.OAuth2RedirectURLs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toService(out))
}

// HandleDelete godoc
//
//	@Summary		Delete a service
//	@Description	Deletes the service together with its keys, users and CSRF entries.
//	@Tags			Services
//	@Param			id	path	string	true	"Service id"
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/services/{id} [delete].
func (h *ServicesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.ServiceDelete(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}
