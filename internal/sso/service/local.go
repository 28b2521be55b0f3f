package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
	"github.com/aussiebroadwan/sso/pkg/idx"
	"github.com/aussiebroadwan/sso/pkg/jwtx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

func forbidden(detail string) error { return fmt.Errorf("%w: %s", ErrForbidden, detail) }

func validatePassword(password string) error {
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return badRequest(fmt.Sprintf("password must be %d to %d characters", MinPasswordLength, MaxPasswordLength))
	}
	return nil
}

func normaliseEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", badRequest("email invalid")
	}
	return strings.ToLower(addr.Address), nil
}

// checkPassword compares password with the user's hash on the pool. A user
// without a password never matches.
func (s *AuthService) checkPassword(ctx context.Context, user domain.User, password string) error {
	if !user.HasPassword() {
		return badRequest("password incorrect")
	}
	err := s.Pool.VerifyPassword(ctx, password, user.PasswordHash)
	if errors.Is(err, cryptox.ErrPasswordMismatch) {
		return badRequest("password incorrect")
	}
	return err
}

// setPassword hashes password and writes it with the given reset flag,
// clearing any forced update.
func (s *AuthService) setPassword(ctx context.Context, user domain.User, password string, allowReset *bool) (domain.User, error) {
	hash, err := s.Pool.HashPassword(ctx, password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	requireUpdate := false
	next := domain.UserUpdate{
		PasswordHash:          &hash,
		PasswordAllowReset:    allowReset,
		PasswordRequireUpdate: &requireUpdate,
	}.Apply(user)
	next.UpdatedAt = s.now()
	if err := s.Store.Users().UpdateUser(ctx, next); err != nil {
		return domain.User{}, storeErr(err, "user not found")
	}
	return next, nil
}

func (s *AuthService) send(ctx context.Context, kind MailKind, service domain.Service, user domain.User, token string, meta domain.AuditMeta) error {
	m, err := newMail(kind, service, user, token, meta)
	if err != nil {
		return err
	}
	return s.sendMail(ctx, m)
}

func (s *AuthService) sendMail(ctx context.Context, m Mail) error {
	if err := s.Mailer.Send(ctx, m); err != nil {
		return fmt.Errorf("send %s mail: %w", m.Kind, err)
	}
	return nil
}

// swallow hides the outcome of flows whose errors would reveal whether an
// email is registered. Unauthenticated callers still get their error.
func swallow(err error) error {
	if errors.Is(err, ErrUnauthorised) {
		return err
	}
	return nil
}

type LoginRequest struct {
	Email    string
	Password string
}

// Login checks a user's email and password and issues a user token.
func (s *AuthService) Login(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req LoginRequest,
) (out domain.UserToken, err error) {
	e := NewAuditEntry(meta, domain.AuditLocalLogin)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	user, err := s.readUserByEmail(ctx, e, service, req.Email)
	if err != nil {
		return out, err
	}
	key, err := s.readUserKey(ctx, e, user, domain.KeyTypeToken)
	if err != nil {
		return out, err
	}
	if user.PasswordRequireUpdate {
		return out, forbidden("password update required")
	}
	if err := s.checkPassword(ctx, user, req.Password); err != nil {
		return out, err
	}

	return s.Tokens.EncodeUserToken(ctx, service, user, key)
}

type RegisterRequest struct {
	Name     string
	Email    string
	Locale   string
	Timezone string
}

// Register creates an enabled user without a password and mails them a
// register token. It reports success whether or not that worked so callers
// cannot discover registered emails; the audit record has the outcome.
func (s *AuthService) Register(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req RegisterRequest,
) error {
	return swallow(s.register(ctx, meta, keyValue, req))
}

func (s *AuthService) register(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req RegisterRequest,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditLocalRegister)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}
	if !service.UserAllowRegister {
		return badRequest("service does not allow registration")
	}
	if strings.TrimSpace(req.Name) == "" {
		return badRequest("name required")
	}
	email, err := normaliseEmail(req.Email)
	if err != nil {
		return err
	}

	now := s.now()
	user := domain.User{
		ID:                 idx.NewAt(now).String(),
		ServiceID:          service.ID,
		Name:               req.Name,
		Email:              email,
		Locale:             req.Locale,
		Timezone:           req.Timezone,
		PasswordAllowReset: true,
		Enabled:            true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	key, err := newKey(&service, &user, domain.KeyTypeToken, req.Name, now)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return asBadRequest(storeErr(err, "email taken"))
		}
		if err := tx.Keys().CreateKey(ctx, key.Key); err != nil {
			return storeErr(err, "key exists")
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.SetUser(user)
	e.SetUserKey(key.Key)

	token, err := s.Tokens.Encode(ctx, jwtx.KindRegister, service, user, key.Key, s.Tokens.accessTTL(), "")
	if err != nil {
		return err
	}
	return s.send(ctx, MailRegister, service, user, token.Token, meta)
}

type ConfirmRequest struct {
	Token              string
	Password           string // optional for register confirm
	PasswordAllowReset *bool
}

// RegisterConfirm redeems a register token, optionally setting the user's
// password, and mails a revoke link.
func (s *AuthService) RegisterConfirm(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req ConfirmRequest,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditLocalRegisterConfirm)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}
	if !service.UserAllowRegister {
		return badRequest("service does not allow registration")
	}
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return err
		}
	}
	user, key, err := s.resolveToken(ctx, e, service, req.Token, true)
	if err != nil {
		return err
	}
	if err := s.Tokens.Redeem(ctx, jwtx.KindRegister, service, user, key, req.Token); err != nil {
		return err
	}

	revoke, err := s.Tokens.Encode(ctx, jwtx.KindRevoke, service, user, key, s.Tokens.revokeTTL(), "")
	if err != nil {
		return err
	}
	if req.Password != "" {
		if user, err = s.setPassword(ctx, user, req.Password, req.PasswordAllowReset); err != nil {
			return err
		}
	}
	return s.send(ctx, MailRegisterConfirm, service, user, revoke.Token, meta)
}

// RegisterRevoke redeems the revoke token mailed by RegisterConfirm.
func (s *AuthService) RegisterRevoke(ctx context.Context, meta domain.AuditMeta, keyValue string, req TokenRequest) (string, error) {
	return s.revokeToken(ctx, meta, domain.AuditLocalRegisterRevoke, keyValue, req)
}

type ResetPasswordRequest struct {
	Email string
}

// ResetPassword mails a reset token to the user with email. Like Register
// it reports success regardless of the outcome.
func (s *AuthService) ResetPassword(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req ResetPasswordRequest,
) error {
	return swallow(s.resetPassword(ctx, meta, keyValue, req))
}

func (s *AuthService) resetPassword(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req ResetPasswordRequest,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditLocalResetPassword)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}
	user, err := s.readUserByEmail(ctx, e, service, req.Email)
	if err != nil {
		return err
	}
	key, err := s.readUserKey(ctx, e, user, domain.KeyTypeToken)
	if err != nil {
		return err
	}
	if !user.PasswordAllowReset {
		return badRequest("password reset not allowed")
	}

	token, err := s.Tokens.Encode(ctx, jwtx.KindResetPassword, service, user, key, s.Tokens.accessTTL(), "")
	if err != nil {
		return err
	}
	return s.send(ctx, MailResetPassword, service, user, token.Token, meta)
}

// ResetPasswordConfirm redeems a reset token and sets the new password.
func (s *AuthService) ResetPasswordConfirm(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req ConfirmRequest,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditLocalResetPasswordConfirm)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	user, key, err := s.resolveToken(ctx, e, service, req.Token, true)
	if err != nil {
		return err
	}
	if !user.PasswordAllowReset {
		return badRequest("password reset not allowed")
	}
	if err := s.Tokens.Redeem(ctx, jwtx.KindResetPassword, service, user, key, req.Token); err != nil {
		return err
	}

	revoke, err := s.Tokens.Encode(ctx, jwtx.KindRevoke, service, user, key, s.Tokens.revokeTTL(), "")
	if err != nil {
		return err
	}
	if user, err = s.setPassword(ctx, user, req.Password, nil); err != nil {
		return err
	}
	return s.send(ctx, MailResetPasswordConfirm, service, user, revoke.Token, meta)
}

// ResetPasswordRevoke redeems the revoke token mailed by ResetPasswordConfirm.
func (s *AuthService) ResetPasswordRevoke(ctx context.Context, meta domain.AuditMeta, keyValue string, req TokenRequest) (string, error) {
	return s.revokeToken(ctx, meta, domain.AuditLocalResetPasswordRevoke, keyValue, req)
}

type UpdateEmailRequest struct {
	UserID   string
	Password string
	NewEmail string
}

// UpdateEmail changes a user's email after checking their password. The
// revoke link goes to the old address.
func (s *AuthService) UpdateEmail(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req UpdateEmailRequest,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditLocalUpdateEmail)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}
	newEmail, err := normaliseEmail(req.NewEmail)
	if err != nil {
		return err
	}
	user, err := s.readUser(ctx, e, service, req.UserID, true)
	if err != nil {
		return err
	}
	key, err := s.readUserKey(ctx, e, user, domain.KeyTypeToken)
	if err != nil {
		return err
	}
	if user.PasswordRequireUpdate {
		return forbidden("password update required")
	}
	if err := s.checkPassword(ctx, user, req.Password); err != nil {
		return err
	}

	revoke, err := s.Tokens.Encode(ctx, jwtx.KindRevoke, service, user, key, s.Tokens.revokeTTL(), "")
	if err != nil {
		return err
	}
	next := domain.UserUpdate{Email: &newEmail}.Apply(user)
	next.UpdatedAt = s.now()
	if err := s.Store.Users().UpdateUser(ctx, next); err != nil {
		return asBadRequest(storeErr(err, "email taken"))
	}
	e.Data = userDiff(user, next)

	m, err := newMail(MailUpdateEmail, service, user, revoke.Token, meta)
	if err != nil {
		return err
	}
	m.OldEmail = user.Email
	return s.sendMail(ctx, m)
}

// UpdateEmailRevoke redeems the revoke token mailed by UpdateEmail.
func (s *AuthService) UpdateEmailRevoke(ctx context.Context, meta domain.AuditMeta, keyValue string, req TokenRequest) (string, error) {
	return s.revokeToken(ctx, meta, domain.AuditLocalUpdateEmailRevoke, keyValue, req)
}

type UpdatePasswordRequest struct {
	UserID      string
	Password    string
	NewPassword string
}

// UpdatePassword changes a user's password after checking the current one.
// It is the way out of a forced update, so PasswordRequireUpdate does not
// block it.
func (s *AuthService) UpdatePassword(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req UpdatePasswordRequest,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditLocalUpdatePassword)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}
	user, err := s.readUser(ctx, e, service, req.UserID, true)
	if err != nil {
		return err
	}
	key, err := s.readUserKey(ctx, e, user, domain.KeyTypeToken)
	if err != nil {
		return err
	}
	if err := s.checkPassword(ctx, user, req.Password); err != nil {
		return err
	}

	revoke, err := s.Tokens.Encode(ctx, jwtx.KindRevoke, service, user, key, s.Tokens.revokeTTL(), "")
	if err != nil {
		return err
	}
	if user, err = s.setPassword(ctx, user, req.NewPassword, nil); err != nil {
		return err
	}
	return s.send(ctx, MailUpdatePassword, service, user, revoke.Token, meta)
}

// UpdatePasswordRevoke redeems the revoke token mailed by UpdatePassword.
func (s *AuthService) UpdatePasswordRevoke(ctx context.Context, meta domain.AuditMeta, keyValue string, req TokenRequest) (string, error) {
	return s.revokeToken(ctx, meta, domain.AuditLocalUpdatePasswordRevoke, keyValue, req)
}
