package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/idx"
)

// AdminService manages services, keys and users. Services need a root key,
// keys and users a service or root key.
type AdminService struct {
	Base
	Pool *Pool
}

func validURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return badRequest(field + " required")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return badRequest(field + " must be an http(s) url")
	}
	return nil
}

func validateService(s domain.Service) error {
	if strings.TrimSpace(s.Name) == "" {
		return badRequest("name required")
	}
	if err := validURL("url", s.URL, true); err != nil {
		return err
	}
	if err := validURL("local_url", s.LocalURL, false); err != nil {
		return err
	}
	for provider, redirect := range s.OAuth2RedirectURLs {
		if !knownProvider(provider) {
			return badRequest("unknown oauth2 provider " + provider)
		}
		if err := validURL("oauth2 redirect url", redirect, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *AdminService) ServiceList(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, afterID string,
	limit int,
) (out []domain.Service, err error) {
	e := NewAuditEntry(meta, domain.AuditServiceList)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	if _, err := s.authRoot(ctx, e, keyValue); err != nil {
		return nil, err
	}
	return s.Store.Services().ListServices(ctx, afterID, clampLimit(limit))
}

func (s *AdminService) ServiceCreate(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req domain.Service,
) (out domain.Service, err error) {
	e := NewAuditEntry(meta, domain.AuditServiceCreate)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	if _, err := s.authRoot(ctx, e, keyValue); err != nil {
		return out, err
	}
	if err := validateService(req); err != nil {
		return out, err
	}

	now := s.now()
	req.ID = idx.NewAt(now).String()
	req.CreatedAt, req.UpdatedAt = now, now
	if err := s.Store.Services().CreateService(ctx, req); err != nil {
		return out, storeErr(err, "service exists")
	}
	e.Subject = req.ID
	return s.Store.Services().GetServiceByID(ctx, req.ID)
}

func (s *AdminService) ServiceRead(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
) (out domain.Service, err error) {
	e := NewAuditEntry(meta, domain.AuditServiceRead)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	if _, err := s.authRoot(ctx, e, keyValue); err != nil {
		return out, err
	}
	out, err = s.Store.Services().GetServiceByID(ctx, id)
	return out, storeErr(err, "service not found")
}

func (s *AdminService) ServiceUpdate(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
	u domain.ServiceUpdate,
) (out domain.Service, err error) {
	e := NewAuditEntry(meta, domain.AuditServiceUpdate)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	if _, err := s.authRoot(ctx, e, keyValue); err != nil {
		return out, err
	}
	prev, err := s.Store.Services().GetServiceByID(ctx, id)
	if err != nil {
		return out, storeErr(err, "service not found")
	}
	next := u.Apply(prev)
	next.UpdatedAt = s.now()
	if err := validateService(next); err != nil {
		return out, err
	}
	if err := s.Store.Services().UpdateService(ctx, next); err != nil {
		return out, storeErr(err, "service not found")
	}
	e.Data = serviceDiff(prev, next)
	out, err = s.Store.Services().GetServiceByID(ctx, id)
	return out, storeErr(err, "service not found")
}

// ServiceDelete removes a service with its keys, users and csrf entries.
// Audit records are kept.
func (s *AdminService) ServiceDelete(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditServiceDelete)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	if _, err := s.authRoot(ctx, e, keyValue); err != nil {
		return err
	}
	return storeErr(s.Store.Services().DeleteService(ctx, id), "service not found")
}
