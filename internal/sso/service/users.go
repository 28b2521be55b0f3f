package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/idx"
)

type UserCreateRequest struct {
	ServiceID             string // root callers only
	Name                  string
	Email                 string
	Locale                string
	Timezone              string
	Password              string // optional
	PasswordAllowReset    bool
	PasswordRequireUpdate bool
	Enabled               bool
}

// UserUpdateRequest is domain.UserUpdate with a plaintext password.
type UserUpdateRequest struct {
	domain.UserUpdate
	Password *string
}

// userServiceID picks the service a user operation acts in.
func userServiceID(c Caller, requested string) (string, error) {
	if mask := c.ServiceMask(); mask != "" {
		return mask, nil
	}
	if requested == "" {
		return "", badRequest("service id required")
	}
	return requested, nil
}

func (s *AdminService) readManagedUser(ctx context.Context, c Caller, id string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, storeErr(err, "user not found")
	}
	if mask := c.ServiceMask(); mask != "" && u.ServiceID != mask {
		return domain.User{}, fmt.Errorf("%w: user not found", ErrNotFound)
	}
	return u, nil
}

func (s *AdminService) UserList(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	f domain.UserFilter,
) (out []domain.User, err error) {
	e := NewAuditEntry(meta, domain.AuditUserList)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return nil, err
	}
	if mask := c.ServiceMask(); mask != "" {
		f.ServiceID = mask
	}
	if f.Email != "" {
		if f.Email, err = normaliseEmail(f.Email); err != nil {
			return nil, err
		}
	}
	f.Limit = clampLimit(f.Limit)
	return s.Store.Users().ListUsers(ctx, f)
}

func (s *AdminService) UserCreate(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req UserCreateRequest,
) (out domain.User, err error) {
	e := NewAuditEntry(meta, domain.AuditUserCreate)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	serviceID, err := userServiceID(c, req.ServiceID)
	if err != nil {
		return out, err
	}
	if _, err := s.Store.Services().GetServiceByID(ctx, serviceID); err != nil {
		return out, asBadRequest(storeErr(err, "service not found"))
	}
	if strings.TrimSpace(req.Name) == "" {
		return out, badRequest("name required")
	}
	email, err := normaliseEmail(req.Email)
	if err != nil {
		return out, err
	}

	now := s.now()
	user := domain.User{
		ID:                    idx.NewAt(now).String(),
		ServiceID:             serviceID,
		Name:                  req.Name,
		Email:                 email,
		Locale:                req.Locale,
		Timezone:              req.Timezone,
		PasswordAllowReset:    req.PasswordAllowReset,
		PasswordRequireUpdate: req.PasswordRequireUpdate,
		Enabled:               req.Enabled,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return out, err
		}
		if user.PasswordHash, err = s.Pool.HashPassword(ctx, req.Password); err != nil {
			return out, fmt.Errorf("hash password: %w", err)
		}
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		return out, storeErr(err, "email taken")
	}
	e.Subject = user.ID
	e.SetUser(user)
	return s.readManagedUser(ctx, c, user.ID)
}

func (s *AdminService) UserRead(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
) (out domain.User, err error) {
	e := NewAuditEntry(meta, domain.AuditUserRead)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	return s.readManagedUser(ctx, c, id)
}

func (s *AdminService) UserUpdate(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
	req UserUpdateRequest,
) (out domain.User, err error) {
	e := NewAuditEntry(meta, domain.AuditUserUpdate)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	u := req.UserUpdate
	u.PasswordHash = nil
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return out, badRequest("name required")
	}
	if u.Email != nil {
		email, err := normaliseEmail(*u.Email)
		if err != nil {
			return out, err
		}
		u.Email = &email
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return out, err
		}
		hash, err := s.Pool.HashPassword(ctx, *req.Password)
		if err != nil {
			return out, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = &hash
	}

	prev, err := s.readManagedUser(ctx, c, id)
	if err != nil {
		return out, err
	}
	e.SetUser(prev)
	next := u.Apply(prev)
	next.UpdatedAt = s.now()
	if err := s.Store.Users().UpdateUser(ctx, next); err != nil {
		return out, storeErr(err, "email taken")
	}
	e.Data = userDiff(prev, next)
	return s.readManagedUser(ctx, c, id)
}

// UserDelete removes a user and their keys.
func (s *AdminService) UserDelete(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditUserDelete)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return err
	}
	user, err := s.readManagedUser(ctx, c, id)
	if err != nil {
		return err
	}
	e.SetUser(user)
	return storeErr(s.Store.Users().DeleteUser(ctx, id), "user not found")
}
