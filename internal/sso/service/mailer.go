package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/slogx"
)

// MailKind names the notification a Mail carries.
type MailKind string

const (
	MailRegister             MailKind = "register"
	MailRegisterConfirm      MailKind = "register_confirm"
	MailResetPassword        MailKind = "reset_password"
	MailResetPasswordConfirm MailKind = "reset_password_confirm"
	MailUpdateEmail          MailKind = "update_email"
	MailUpdatePassword       MailKind = "update_password"
)

// Mail is one notification to a user. Link carries the token the user
// follows to continue or revoke the operation.
type Mail struct {
	Kind    MailKind
	To      string
	Name    string
	Service string
	Link    string
	Text    string // service.UserEmailText
	// OldEmail is set for MailUpdateEmail, which goes to the old address.
	OldEmail string
	Meta     domain.AuditMeta
}

// Mailer delivers notifications.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// LogMailer writes notifications to the context logger. It stands in for a
// real transport in development and tests.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, m Mail) error {
	slogx.FromContext(ctx).Info("mail",
		slog.String("kind", string(m.Kind)),
		slog.String("to", m.To),
		slog.String("service", m.Service),
		slog.String("link", m.Link),
	)
	return nil
}

// mailLink builds the link a user follows from a notification:
// the service's LocalURL with type and token query parameters.
func mailLink(service domain.Service, kind MailKind, token string) (string, error) {
	u, err := url.Parse(service.LocalURL)
	if err != nil || service.LocalURL == "" {
		return "", fmt.Errorf("service local url %q invalid", service.LocalURL)
	}
	q := u.Query()
	q.Set("type", string(kind))
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newMail(kind MailKind, service domain.Service, user domain.User, token string, meta domain.AuditMeta) (Mail, error) {
	link, err := mailLink(service, kind, token)
	if err != nil {
		return Mail{}, err
	}
	return Mail{
		Kind:    kind,
		To:      user.Email,
		Name:    user.Name,
		Service: service.Name,
		Link:    link,
		Text:    service.UserEmailText,
		Meta:    meta,
	}, nil
}
