package http

import (
	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
)

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

func toService(s domain.Service) authsdk.Service {
	redirects := s.OAuth2RedirectURLs
	if redirects == nil {
		redirects = map[string]string{}
	}
	return authsdk.Service{
		ID:                 s.ID,
		Name:               s.Name,
		URL:                s.URL,
		Enabled:            s.Enabled,
		UserAllowRegister:  s.UserAllowRegister,
		UserEmailText:      s.UserEmailText,
		LocalURL:           s.LocalURL,
		OAuth2RedirectURLs: redirects,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func toKey(k domain.Key) authsdk.Key {
	return authsdk.Key{
		ID:        k.ID,
		Name:      k.Name,
		Type:      k.Type.String(),
		Enabled:   k.Enabled,
		Revoked:   k.Revoked,
		ServiceID: k.ServiceID,
		UserID:    k.UserID,
		CreatedAt: k.CreatedAt,
		UpdatedAt: k.UpdatedAt,
	}
}

func toUser(u domain.User) authsdk.User {
	return authsdk.User{
		ID:                    u.ID,
		ServiceID:             u.ServiceID,
		Name:                  u.Name,
		Email:                 u.Email,
		Locale:                u.Locale,
		Timezone:              u.Timezone,
		PasswordAllowReset:    u.PasswordAllowReset,
		PasswordRequireUpdate: u.PasswordRequireUpdate,
		Enabled:               u.Enabled,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func toAudit(a domain.Audit) authsdk.Audit {
	return authsdk.Audit{
		ID:        a.ID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		UserAgent: a.Meta.UserAgent,
		Remote:    a.Meta.Remote,
		Forwarded: a.Meta.Forwarded,
		Type:      a.Type,
		Subject:   a.Subject,
		Data:      a.Data,
		KeyID:     a.KeyID,
		ServiceID: a.ServiceID,
		UserID:    a.UserID,
		UserKeyID: a.UserKeyID,
	}
}

func toToken(t domain.TokenValue) authsdk.Token {
	return authsdk.Token{Token: t.Token, Expires: t.Expires}
}

func toUserToken(t domain.UserToken) authsdk.UserToken {
	return authsdk.UserToken{
		User:    toUser(t.User),
		Access:  toToken(t.Access),
		Refresh: toToken(t.Refresh),
	}
}

func toCsrf(c domain.Csrf) authsdk.Csrf {
	return authsdk.Csrf{
		Key:       c.Key,
		Value:     c.Value,
		ServiceID: c.ServiceID,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

func fromAuditCreate(a *authsdk.AuditCreateRequest) *service.AuditCustom {
	if a == nil {
		return nil
	}
	return &service.AuditCustom{Type: a.Type, Subject: a.Subject, Data: a.Data}
}

func fromTokenRequest(req authsdk.TokenRequest) service.TokenRequest {
	return service.TokenRequest{Token: req.Token, Audit: fromAuditCreate(req.Audit)}
}

// parseKeyType maps the wire name onto a key type. An unknown name becomes
// the zero type, which key create rejects and audits.
func parseKeyType(s string) domain.KeyType {
	if s == "" {
		return domain.KeyTypeKey
	}
	t, err := domain.ParseKeyType(s)
	if err != nil {
		return 0
	}
	return t
}
