package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Page selects a slice of a list ordered by id.
type Page struct {
	AfterID string
	Limit   int
}

func (p Page) query() url.Values {
	q := url.Values{}
	if p.AfterID != "" {
		q.Set("after_id", p.AfterID)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

// ============================================================================
// Services (root key)
// ============================================================================

func (c *Client) ListServices(ctx context.Context, page Page) ([]Service, error) {
	out, err := call[ListResponse[Service]](ctx, c, http.MethodGet, "/v1/services", page.query(), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) CreateService(ctx context.Context, req ServiceCreateRequest) (*Service, error) {
	return call[Service](ctx, c, http.MethodPost, "/v1/services", nil, req, http.StatusCreated)
}

func (c *Client) GetService(ctx context.Context, id string) (*Service, error) {
	return call[Service](ctx, c, http.MethodGet, "/v1/services/"+url.PathEscape(id), nil, nil, http.StatusOK)
}

func (c *Client) UpdateService(ctx context.Context, id string, req ServiceUpdateRequest) (*Service, error) {
	return call[Service](ctx, c, http.MethodPatch, "/v1/services/"+url.PathEscape(id), nil, req, http.StatusOK)
}

// DeleteService removes a service with its keys, users and csrf entries.
func (c *Client) DeleteService(ctx context.Context, id string) error {
	return callNoContent(ctx, c, http.MethodDelete, "/v1/services/"+url.PathEscape(id), nil)
}

// ============================================================================
// Keys
// ============================================================================

// KeyListQuery narrows a key listing. Service callers only ever see their
// own service.
type KeyListQuery struct {
	Page
	ServiceID string
	UserID    string
	Type      string
}

func (c *Client) ListKeys(ctx context.Context, q KeyListQuery) ([]Key, error) {
	query := q.query()
	if q.ServiceID != "" {
		query.Set("service_id", q.ServiceID)
	}
	if q.UserID != "" {
		query.Set("user_id", q.UserID)
	}
	if q.Type != "" {
		query.Set("type", q.Type)
	}
	out, err := call[ListResponse[Key]](ctx, c, http.MethodGet, "/v1/keys", query, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateKey returns the new key with its value. The value is never shown
// again.
func (c *Client) CreateKey(ctx context.Context, req KeyCreateRequest) (*KeyWithValue, error) {
	return call[KeyWithValue](ctx, c, http.MethodPost, "/v1/keys", nil, req, http.StatusCreated)
}

func (c *Client) GetKey(ctx context.Context, id string) (*Key, error) {
	return call[Key](ctx, c, http.MethodGet, "/v1/keys/"+url.PathEscape(id), nil, nil, http.StatusOK)
}

func (c *Client) UpdateKey(ctx context.Context, id string, req KeyUpdateRequest) (*Key, error) {
	return call[Key](ctx, c, http.MethodPatch, "/v1/keys/"+url.PathEscape(id), nil, req, http.StatusOK)
}

func (c *Client) DeleteKey(ctx context.Context, id string) error {
	return callNoContent(ctx, c, http.MethodDelete, "/v1/keys/"+url.PathEscape(id), nil)
}

// ============================================================================
// Users
// ============================================================================

type UserListQuery struct {
	Page
	ServiceID string
	Email     string
}

func (c *Client) ListUsers(ctx context.Context, q UserListQuery) ([]User, error) {
	query := q.query()
	if q.ServiceID != "" {
		query.Set("service_id", q.ServiceID)
	}
	if q.Email != "" {
		query.Set("email", q.Email)
	}
	out, err := call[ListResponse[User]](ctx, c, http.MethodGet, "/v1/users", query, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) CreateUser(ctx context.Context, req UserCreateRequest) (*User, error) {
	return call[User](ctx, c, http.MethodPost, "/v1/users", nil, req, http.StatusCreated)
}

func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	return call[User](ctx, c, http.MethodGet, "/v1/users/"+url.PathEscape(id), nil, nil, http.StatusOK)
}

func (c *Client) UpdateUser(ctx context.Context, id string, req UserUpdateRequest) (*User, error) {
	return call[User](ctx, c, http.MethodPatch, "/v1/users/"+url.PathEscape(id), nil, req, http.StatusOK)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return callNoContent(ctx, c, http.MethodDelete, "/v1/users/"+url.PathEscape(id), nil)
}

// ============================================================================
// Audit
// ============================================================================

func (q AuditListQuery) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("after_id", q.AfterID)
	set("before_id", q.BeforeID)
	if q.CreatedGE != nil {
		v.Set("created_ge", q.CreatedGE.UTC().Format(time.RFC3339Nano))
	}
	if q.CreatedLE != nil {
		v.Set("created_le", q.CreatedLE.UTC().Format(time.RFC3339Nano))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	v["id"] = q.IDs
	v["type"] = q.Types
	v["subject"] = q.Subjects
	v["service_id"] = q.ServiceIDs
	v["user_id"] = q.UserIDs
	return v
}

func (c *Client) ListAudit(ctx context.Context, q AuditListQuery) ([]Audit, error) {
	out, err := call[ListResponse[Audit]](ctx, c, http.MethodGet, "/v1/audit", q.values(), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) CreateAudit(ctx context.Context, req AuditCreateRequest) (*Audit, error) {
	return call[Audit](ctx, c, http.MethodPost, "/v1/audit", nil, req, http.StatusCreated)
}

func (c *Client) GetAudit(ctx context.Context, id string) (*Audit, error) {
	return call[Audit](ctx, c, http.MethodGet, "/v1/audit/"+url.PathEscape(id), nil, nil, http.StatusOK)
}

// UpdateAudit changes a custom record. Built-in records are immutable.
func (c *Client) UpdateAudit(ctx context.Context, id string, req AuditUpdateRequest) (*Audit, error) {
	return call[Audit](ctx, c, http.MethodPatch, "/v1/audit/"+url.PathEscape(id), nil, req, http.StatusOK)
}
