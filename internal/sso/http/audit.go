package http

import (
	"net/http"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

// AuditHandler serves /v1/audit.
type AuditHandler struct {
	Audit *service.AuditService
}

// HandleList godoc
//
//	@Summary		List audit records
//	@Description	Pages by id. With after_id the page is ascending, otherwise newest first.
//	@Description	Filters may repeat and match any of their values.
//	@Tags			Audit
//	@Produce		json
//	@Param			after_id	query		string		false	"Exclusive lower id bound"
//	@Param			before_id	query		string		false	"Exclusive upper id bound"
//	@Param			created_ge	query		string		false	"RFC 3339 lower creation bound"
//	@Param			created_le	query		string		false	"RFC 3339 upper creation bound"
//	@Param			limit		query		int			false	"Page size"
//	@Param			id			query		[]string	false	"Record ids"
//	@Param			type		query		[]string	false	"Record types"
//	@Param			subject		query		[]string	false	"Subjects"
//	@Param			service_id	query		[]string	false	"Service ids"
//	@Param			user_id		query		[]string	false	"User ids"
//	@Success		200			{object}	authsdk.ListResponse[authsdk.Audit]
//	@Failure		400			{object}	authsdk.ErrorResponse
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/audit [get].
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeInvalidQuery(w, "limit")
		return
	}
	createdGE, err := queryTime(r, "created_ge")
	if err != nil {
		writeInvalidQuery(w, "created_ge")
		return
	}
	createdLE, err := queryTime(r, "created_le")
	if err != nil {
		writeInvalidQuery(w, "created_le")
		return
	}

	out, err := h.Audit.List(r.Context(), auditMeta(r), keyValue(r), domain.AuditListQuery{
		AfterID:   q.Get("after_id"),
		BeforeID:  q.Get("before_id"),
		CreatedGE: createdGE,
		CreatedLE: createdLE,
		Limit:     limit,
	}, domain.AuditListFilter{
		IDs:        q["id"],
		Types:      q["type"],
		Subjects:   q["subject"],
		ServiceIDs: q["service_id"],
		UserIDs:    q["user_id"],
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListResponse[authsdk.Audit]{Data: mapSlice(out, toAudit)})
}

// HandleCreate godoc
//
//	@Summary		Create a custom audit record
//	@Description	Types starting with "sso." are reserved.
//	@Tags			Audit
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.AuditCreateRequest	true	"Record"
//	@Success		201		{object}	authsdk.Audit
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/audit [post].
func (h *AuditHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AuditCreateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Audit.Create(r.Context(), auditMeta(r), keyValue(r), *fromAuditCreate(&req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAudit(out))
}

// HandleRead godoc
//
//	@Summary	Read an audit record
//	@Tags		Audit
//	@Produce	json
//	@Param		id	path		string	true	"Record id"
//	@Success	200	{object}	authsdk.Audit
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Security	KeyAuth
//	@Router		/v1/audit/{id} [get].
func (h *AuditHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	out, err := h.Audit.Read(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAudit(out))
}

// HandleUpdate godoc
//
//	@Summary		Update a custom audit record
//	@Description	Built-in records cannot be changed.
//	@Tags			Audit
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Record id"
//	@Param			request	body		authsdk.AuditUpdateRequest	true	"Changes"
//	@Success		200		{object}	authsdk.Audit
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Security		KeyAuth
//	@Router			/v1/audit/{id} [patch].
func (h *AuditHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AuditUpdateRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.Audit.Update(r.Context(), auditMeta(r), keyValue(r), r.PathValue("id"), domain.AuditUpdate{
		Subject: req.Subject,
		Data:    req.Data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAudit(out))
}
