package http

import (
	"net/http"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// UsersHandler serves /v1/users. Password hashes never leave the service.
type UsersHandler struct {
	Admin *service.AdminService
}

// HandleList godoc
//
//	@Summary	List users
//	@Tags		Users
//	@Produce	json
//	@Param		service_id	query		string	false	"Filter by service (root only)"
//	@Param		email		query		string	false	"Filter by email"
//	@Param		after_id	query		string	false	"Return users after this id"
//	@Param		limit		query		int		false	"Page size"
//	@Success	200			{object}	authsdk.ListResponse[authsdk.User]
//	@Failure	401			{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/users [get].
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeInvalidQuery(w, "limit")
		return
	}

	out, err := h.Admin.UserList(r.Context(), auditMeta(r), keyValue(r), domain.UserFilter{
		ServiceID: q.Get("service_id"),
		Email:     q.Get("email"),
		Limit:     limit,
		AfterID:   q.Get("after_id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListResponse[authsdk.User]{Data: mapSlice(out, toUser)})
}

// HandleCreate godoc
//
//	@Summary		Create a user
//	@Description	Root keys must name the service. The password is optional.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.UserCreateRequest	true	"User"
//	@Success		201		{object}	authsdk.User
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email taken in this service"
//	@Security		KeyAuth
//	@Router			/v1/users [post].
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UserCreateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Admin.UserCreate(r.Context(), auditMeta(r), keyValue(r), service.UserCreateRequest{
		ServiceID:             req.ServiceID,
		Name:                  req.Name,
		Email:                 req.Email,
		Locale:                req.Locale,
		Timezone:              req.Timezone,
		Password:              req.Password,
		PasswordAllowReset:    req.PasswordAllowReset,
		PasswordRequireUpdate: req.PasswordRequireUpdate,
		Enabled:               req.Enabled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUser(out))
}

// HandleRead godoc
//
//	@Summary	Read a user
//	@Tags		Users
//	@Produce	json
//	@Param		id	path		string	true	"User id"
//	@Success	200	{object}	authsdk.User
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/users/{id} [get].
func (h *UsersHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	out, err := h.Admin.UserRead(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUser(out))
}

// HandleUpdate godoc
//
//	@Summary	Update a user
//	@Tags		Users
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string						true	"User id"
//	@Param		request	body		authsdk.UserUpdateRequest	true	"Changes"
//	@Success	200		{object}	authsdk.User
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Failure	409		{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/users/{id} [patch].
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UserUpdateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Admin.UserUpdate(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"), service.UserUpdateRequest{
		UserUpdate: domain.UserUpdate{
			Name:                  req.Name,
			Email:                 req.Email,
			Locale:                req.Locale,
			Timezone:              req.Timezone,
			PasswordAllowReset:    req.PasswordAllowReset,
			PasswordRequireUpdate: req.PasswordRequireUpdate,
			Enabled:               req.Enabled,
		},
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUser(out))
}

// HandleDelete godoc
//
//	@Summary	Delete a user
//	@Tags		Users
//	@Param		id	path	string	true	"User id"
//	@Success	204
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/users/{id} [delete].
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.UserDelete(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}
