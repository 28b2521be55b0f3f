package jwtx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind is the lifecycle stage a token represents.
type Kind int

const (
	KindAccess Kind = iota + 1
	KindRefresh
	KindRegister
	KindResetPassword
	KindRevoke
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	case KindRegister:
		return "register"
	case KindResetPassword:
		return "reset_password"
	case KindRevoke:
		return "revoke"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "access":
		return KindAccess, nil
	case "refresh":
		return KindRefresh, nil
	case "register":
		return KindRegister, nil
	case "reset_password":
		return KindResetPassword, nil
	case "revoke":
		return KindRevoke, nil
	}
	return 0, fmt.Errorf("%w: unknown token kind %q", ErrInvalidClaim, s)
}

// CarriesCSRF reports whether tokens of this kind are bound to a single-use
// CSRF entry. Only access tokens are stateless.
func (k Kind) CarriesCSRF() bool { return k != KindAccess }

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Claims is the signed claim set of every token the service issues.
type Claims struct {
	jwt.RegisteredClaims

	ServiceID string `json:"service_id"`
	UserID    string `json:"user_id"`
	KeyID     string `json:"key_id"`
	Kind      Kind   `json:"token_kind"`

	// CSRFKey references the entry consumed when the token is redeemed.
	// Empty for access tokens.
	CSRFKey string `json:"csrf_key,omitempty"`
}

// NewClaims builds claims expiring ttl after now.
func NewClaims(kind Kind, serviceID, userID, keyID, csrfKey string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ServiceID: serviceID,
		UserID:    userID,
		KeyID:     keyID,
		Kind:      kind,
		CSRFKey:   csrfKey,
	}
}

// ExpiresIn returns the whole seconds until the token expires.
func (c *Claims) ExpiresIn(now time.Time) int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return int64(c.ExpiresAt.Sub(now) / time.Second)
}

// ValidateContext checks the kind and identity claims against the expected
// values. Empty expectations are not enforced.
func (c *Claims) ValidateContext(kind Kind, serviceID, userID, keyID string) error {
	if c.Kind != kind {
		return ErrKindMismatch
	}
	if serviceID != "" && c.ServiceID != serviceID {
		return ErrInvalidClaim
	}
	if userID != "" && c.UserID != userID {
		return ErrInvalidClaim
	}
	if keyID != "" && c.KeyID != keyID {
		return ErrInvalidClaim
	}
	if kind.CarriesCSRF() && c.CSRFKey == "" {
		return ErrInvalidClaim
	}
	return nil
}
