package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
	"github.com/aussiebroadwan/sso/pkg/jwtx"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 24 * time.Hour
	DefaultRevokeTTL  = 7 * 24 * time.Hour
)

// TokenEngine signs and verifies user tokens. Every kind but access is bound
// to a CSRF entry, so redeeming a token consumes the entry and a replay
// fails even though the signature still verifies.
type TokenEngine struct {
	Csrf *CsrfStore

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	RevokeTTL  time.Duration

	Now func() time.Time
}

func (t *TokenEngine) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

func (t *TokenEngine) accessTTL() time.Duration  { return orDefault(t.AccessTTL, DefaultAccessTTL) }
func (t *TokenEngine) refreshTTL() time.Duration { return orDefault(t.RefreshTTL, DefaultRefreshTTL) }
func (t *TokenEngine) revokeTTL() time.Duration  { return orDefault(t.RevokeTTL, DefaultRevokeTTL) }

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// hs256 builds the signer for key from its sealed secret.
func hs256(key domain.Key) (*jwtx.HS256, error) {
	secret, err := cryptox.DecryptSecret(key.SecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt key secret: %w", err)
	}
	return jwtx.NewHS256(secret)
}

// Encode signs a token of kind for user with key's secret. CSRF bound kinds
// first create an entry holding csrfValue (random when empty) and embed its
// key in the token.
func (t *TokenEngine) Encode(
	ctx context.Context,
	kind jwtx.Kind,
	service domain.Service,
	user domain.User,
	key domain.Key,
	ttl time.Duration,
	csrfValue string,
) (domain.TokenValue, error) {
	signer, err := hs256(key)
	if err != nil {
		return domain.TokenValue{}, err
	}

	var csrfKey string
	if kind.CarriesCSRF() {
		var entry domain.Csrf
		if csrfValue == "" {
			entry, err = t.Csrf.Generate(ctx, service.ID, ttl)
		} else {
			var k string
			if k, err = cryptox.GenerateToken(cryptox.TokenSize128); err == nil {
				entry, err = t.Csrf.Create(ctx, service.ID, k, csrfValue, ttl)
			}
		}
		if err != nil {
			return domain.TokenValue{}, err
		}
		csrfKey = entry.Key
	}

	now := t.now()
	claims := jwtx.NewClaims(kind, service.ID, user.ID, key.ID, csrfKey, ttl, now)
	token, err := signer.Sign(claims)
	if err != nil {
		return domain.TokenValue{}, err
	}
	return domain.TokenValue{Token: token, Expires: claims.ExpiresIn(now)}, nil
}

// DecodeUnsafe reads the user and key a token names without checking its
// signature. It only tells the caller which key to load for Decode; never
// authorize on its result.
func DecodeUnsafe(token, serviceID string) (userID, keyID string, err error) {
	claims, err := jwtx.ParseUnverified(token)
	if err != nil {
		return "", "", badRequest("token malformed")
	}
	if claims.ServiceID != serviceID || claims.UserID == "" || claims.KeyID == "" {
		return "", "", badRequest("token claims invalid")
	}
	return claims.UserID, claims.KeyID, nil
}

// Decode verifies token against key and the expected context and returns its
// CSRF key, empty for access tokens. Every failure is the same bad request.
func (t *TokenEngine) Decode(
	kind jwtx.Kind,
	service domain.Service,
	user domain.User,
	key domain.Key,
	token string,
) (string, error) {
	claims, err := t.verify(key, token)
	if err != nil {
		return "", err
	}
	if err := claims.ValidateContext(kind, service.ID, user.ID, key.ID); err != nil {
		return "", badRequest("token invalid")
	}
	return claims.CSRFKey, nil
}

func (t *TokenEngine) verify(key domain.Key, token string) (jwtx.Claims, error) {
	verifier, err := hs256(key)
	if err != nil {
		return jwtx.Claims{}, err
	}
	claims, err := verifier.VerifyAt(token, t.now())
	if err != nil {
		return jwtx.Claims{}, badRequest("token invalid")
	}
	return claims, nil
}

// EncodeUserToken issues a stateless access token and a CSRF bound refresh
// token. Each has its own lifecycle.
func (t *TokenEngine) EncodeUserToken(
	ctx context.Context,
	service domain.Service,
	user domain.User,
	key domain.Key,
) (domain.UserToken, error) {
	access, err := t.Encode(ctx, jwtx.KindAccess, service, user, key, t.accessTTL(), "")
	if err != nil {
		return domain.UserToken{}, err
	}
	refresh, err := t.Encode(ctx, jwtx.KindRefresh, service, user, key, t.refreshTTL(), "")
	if err != nil {
		return domain.UserToken{}, err
	}
	return domain.UserToken{User: user, Access: access, Refresh: refresh}, nil
}

// Redeem decodes a CSRF bound token and consumes its entry. A second redeem
// of the same token fails.
func (t *TokenEngine) Redeem(
	ctx context.Context,
	kind jwtx.Kind,
	service domain.Service,
	user domain.User,
	key domain.Key,
	token string,
) error {
	csrfKey, err := t.Decode(kind, service, user, key, token)
	if err != nil {
		return err
	}
	_, err = t.Csrf.ConsumeFor(ctx, service.ID, csrfKey)
	return err
}

// resolveToken finds the user and key a token was issued to. Checked
// resolution requires both to still be usable.
func (s *AuthService) resolveToken(
	ctx context.Context,
	e *AuditEntry,
	service domain.Service,
	token string,
	checked bool,
) (domain.User, domain.Key, error) {
	userID, keyID, err := DecodeUnsafe(token, service.ID)
	if err != nil {
		return domain.User{}, domain.Key{}, err
	}
	user, err := s.readUser(ctx, e, service, userID, checked)
	if err != nil {
		return domain.User{}, domain.Key{}, err
	}
	key, err := s.readTokenKey(ctx, e, user, keyID, checked)
	if err != nil {
		return domain.User{}, domain.Key{}, err
	}
	return user, key, nil
}

// TokenRequest carries a token and an optional custom audit record written
// alongside the operation.
type TokenRequest struct {
	Token string
	Audit *AuditCustom
}

// TokenVerify checks an access token and returns its user.
func (s *AuthService) TokenVerify(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req TokenRequest,
) (out domain.UserTokenAccess, auditID string, err error) {
	e := NewAuditEntry(meta, domain.AuditTokenVerify)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return out, "", err
	}
	user, key, err := s.resolveToken(ctx, e, service, req.Token, true)
	if err != nil {
		return out, "", err
	}

	claims, err := s.Tokens.verify(key, req.Token)
	if err != nil {
		return out, "", err
	}
	if err := claims.ValidateContext(jwtx.KindAccess, service.ID, user.ID, key.ID); err != nil {
		return out, "", badRequest("token invalid")
	}

	if auditID, err = s.customAudit(ctx, e, req.Audit); err != nil {
		return out, "", err
	}
	out = domain.UserTokenAccess{
		User:   user,
		Access: domain.TokenValue{Token: req.Token, Expires: claims.ExpiresIn(s.now())},
	}
	return out, auditID, nil
}

// TokenRefresh redeems a refresh token for a new access and refresh pair.
// The old refresh token stops working because its CSRF entry is gone.
func (s *AuthService) TokenRefresh(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req TokenRequest,
) (out domain.UserToken, auditID string, err error) {
	e := NewAuditEntry(meta, domain.AuditTokenRefresh)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return out, "", err
	}
	user, key, err := s.resolveToken(ctx, e, service, req.Token, true)
	if err != nil {
		return out, "", err
	}
	if err := s.Tokens.Redeem(ctx, jwtx.KindRefresh, service, user, key, req.Token); err != nil {
		return out, "", err
	}

	if auditID, err = s.customAudit(ctx, e, req.Audit); err != nil {
		return out, "", err
	}
	out, err = s.Tokens.EncodeUserToken(ctx, service, user, key)
	if err != nil {
		return domain.UserToken{}, "", err
	}
	return out, auditID, nil
}

// TokenRevoke consumes the CSRF entry of an access or refresh token. Access
// tokens have none and simply expire. The user and key are left untouched.
func (s *AuthService) TokenRevoke(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req TokenRequest,
) (auditID string, err error) {
	e := NewAuditEntry(meta, domain.AuditTokenRevoke)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return "", err
	}
	user, key, err := s.resolveToken(ctx, e, service, req.Token, false)
	if err != nil {
		return "", err
	}

	claims, err := s.Tokens.verify(key, req.Token)
	if err != nil {
		return "", err
	}
	if claims.Kind != jwtx.KindAccess && claims.Kind != jwtx.KindRefresh {
		return "", badRequest("token invalid")
	}
	if err := claims.ValidateContext(claims.Kind, service.ID, user.ID, key.ID); err != nil {
		return "", badRequest("token invalid")
	}
	if claims.Kind.CarriesCSRF() {
		if _, err := s.Tokens.Csrf.ConsumeFor(ctx, service.ID, claims.CSRFKey); err != nil {
			return "", err
		}
	}

	return s.customAudit(ctx, e, req.Audit)
}

// revokeToken redeems a revoke token issued by one of the local flows.
func (s *AuthService) revokeToken(
	ctx context.Context,
	meta domain.AuditMeta,
	t domain.AuditType,
	keyValue string,
	req TokenRequest,
) (auditID string, err error) {
	e := NewAuditEntry(meta, t)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return "", err
	}
	// Revoking must work for disabled users and keys.
	user, key, err := s.resolveToken(ctx, e, service, req.Token, false)
	if err != nil {
		return "", err
	}
	if err := s.Tokens.Redeem(ctx, jwtx.KindRevoke, service, user, key, req.Token); err != nil {
		return "", err
	}

	return s.customAudit(ctx, e, req.Audit)
}

// customAudit writes the optional caller supplied record and returns its id.
func (s *AuthService) customAudit(ctx context.Context, e *AuditEntry, c *AuditCustom) (string, error) {
	if c == nil {
		return "", nil
	}
	a, err := s.Audit.recordCustom(ctx, e, *c)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}
