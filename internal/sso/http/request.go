package http

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/httpx"
	"github.com/aussiebroadwan/sso/pkg/slogx"
)

// auditMeta is the request information recorded with every operation.
func auditMeta(r *http.Request) domain.AuditMeta {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	return domain.AuditMeta{
		UserAgent: r.UserAgent(),
		Remote:    remote,
		Forwarded: r.Header.Get("X-Forwarded-For"),
	}
}

// keyValue is the caller's key, put there by httpx.RequireKey.
func keyValue(r *http.Request) string {
	return httpx.KeyValueFromContext(r.Context())
}

// writeError maps a service error onto a status code. The response only
// names the kind; the detail is already in the audit trail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	kind := service.Kind(err)
	switch kind {
	case service.ErrUnauthorised:
		authsdk.ErrUnauthorised.WriteError(w)
	case service.ErrBadRequest:
		authsdk.ErrBadRequest.WriteError(w)
	case service.ErrForbidden:
		authsdk.ErrForbidden.WriteError(w)
	case service.ErrNotFound:
		authsdk.ErrNotFound.WriteError(w)
	case service.ErrConflict:
		authsdk.ErrConflict.WriteError(w)
	default:
		log.Error("request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	log.Debug("request rejected", "error", err)
}

// decode reads the JSON body into v, writing the error response itself.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		slogx.FromContext(r.Context()).Debug("invalid body", "error", err)
		authsdk.ErrInvalidBody.WriteError(w)
		return false
	}
	return true
}

func writeNoContent(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

var errInvalidQuery = errors.New("invalid query parameter")

// queryInt parses an optional integer parameter, 0 when absent.
func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errInvalidQuery
	}
	return n, nil
}

// queryTime parses an optional RFC 3339 parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, errInvalidQuery
	}
	return &t, nil
}

func writeInvalidQuery(w http.ResponseWriter, name string) {
	httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeBadRequest, "invalid query parameter "+name)
}
