package service

import (
	"context"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
)

// AuthService holds the operations a service calls on behalf of its users.
type AuthService struct {
	Base
	Csrf   *CsrfStore
	Tokens *TokenEngine
	Pool   *Pool
	Mailer Mailer

	// Providers maps a provider name to its client registration.
	Providers map[string]*Provider
}

// totpOpts matches what authenticator apps use for otpauth URLs generated
// by key create.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// KeyRequest names a user key by its opaque value.
type KeyRequest struct {
	Key   string
	Audit *AuditCustom
}

// readKeyByValue resolves a user key of service and its owner. Checked reads
// require both to be usable.
func (s *AuthService) readKeyByValue(
	ctx context.Context,
	e *AuditEntry,
	service domain.Service,
	value string,
	checked bool,
) (domain.User, domain.Key, error) {
	if value == "" {
		return domain.User{}, domain.Key{}, badRequest("key required")
	}
	key, err := s.Store.Keys().GetKeyByValueHash(ctx, cryptox.FingerprintToken(value))
	if err != nil {
		return domain.User{}, domain.Key{}, asBadRequest(storeErr(err, "key not found"))
	}
	if !key.IsUser() || key.ServiceID != service.ID || key.Type != domain.KeyTypeKey {
		return domain.User{}, domain.Key{}, badRequest("key not found")
	}
	e.SetUserKey(key)
	if checked && !key.Usable() {
		return domain.User{}, domain.Key{}, badRequest("key disabled or revoked")
	}
	user, err := s.readUser(ctx, e, service, key.UserID, checked)
	if err != nil {
		return domain.User{}, domain.Key{}, err
	}
	return user, key, nil
}

// KeyVerify checks a user's API key and returns the key and its owner.
func (s *AuthService) KeyVerify(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req KeyRequest,
) (out domain.UserKey, auditID string, err error) {
	e := NewAuditEntry(meta, domain.AuditKeyVerify)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return out, "", err
	}
	user, key, err := s.readKeyByValue(ctx, e, service, req.Key, true)
	if err != nil {
		return out, "", err
	}
	if auditID, err = s.customAudit(ctx, e, req.Audit); err != nil {
		return out, "", err
	}
	return domain.UserKey{User: user, Key: key}, auditID, nil
}

// KeyRevoke permanently revokes a user's API key. Revoking an already
// revoked key succeeds.
func (s *AuthService) KeyRevoke(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req KeyRequest,
) (auditID string, err error) {
	e := NewAuditEntry(meta, domain.AuditKeyRevoke)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return "", err
	}
	_, key, err := s.readKeyByValue(ctx, e, service, req.Key, false)
	if err != nil {
		return "", err
	}

	revoked := true
	next := domain.KeyUpdate{Revoked: &revoked}.Apply(key)
	next.UpdatedAt = s.now()
	if err := s.Store.Keys().UpdateKey(ctx, next); err != nil {
		return "", storeErr(err, "key not found")
	}
	e.Data = keyDiff(key, next)

	return s.customAudit(ctx, e, req.Audit)
}

// TotpRequest carries a code to check against a user's Totp key.
type TotpRequest struct {
	UserID string
	Code   string
}

// TotpVerify checks a TOTP code for the user's newest usable Totp key.
func (s *AuthService) TotpVerify(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req TotpRequest,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditTotpVerify)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}
	user, err := s.readUser(ctx, e, service, req.UserID, true)
	if err != nil {
		return err
	}
	key, err := s.readUserKey(ctx, e, user, domain.KeyTypeTotp)
	if err != nil {
		return err
	}

	secret, err := cryptox.DecryptSecret(key.SecretEncrypted)
	if err != nil {
		return fmt.Errorf("decrypt totp secret: %w", err)
	}
	ok, err := totp.ValidateCustom(req.Code, string(secret), s.now(), totpOpts)
	if err != nil || !ok {
		return badRequest("totp invalid")
	}
	return nil
}

// generateTotp creates the secret and enrolment URL for a new Totp key.
func generateTotp(service domain.Service, user domain.User) (secret, url string, err error) {
	issuer := service.Name
	if issuer == "" {
		issuer = "sso"
	}
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: user.Email,
		Period:      uint(totpOpts.Period),
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp: %w", err)
	}
	return k.Secret(), k.URL(), nil
}
