package domain

import (
	"fmt"
	"time"
)

// KeyType decides what a key may be used for.
type KeyType int

const (
	// KeyTypeKey is the usual type of service and root keys.
	KeyTypeKey KeyType = iota + 1
	// KeyTypeToken belongs to a user and signs that user's tokens.
	KeyTypeToken
	// KeyTypeTotp belongs to a user and holds a TOTP secret.
	KeyTypeTotp
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeKey:
		return "key"
	case KeyTypeToken:
		return "token"
	case KeyTypeTotp:
		return "totp"
	default:
		return fmt.Sprintf("keytype(%d)", int(t))
	}
}

// ParseKeyType is the inverse of KeyType.String.
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "key":
		return KeyTypeKey, nil
	case "token":
		return KeyTypeToken, nil
	case "totp":
		return KeyTypeTotp, nil
	}
	return 0, fmt.Errorf("unknown key type %q", s)
}

type Key struct {
	ID              string
	Name            string
	Type            KeyType
	Enabled         bool
	Revoked         bool   // Permanent, a revoked key is never usable again
	ServiceID       string // Empty for root keys
	UserID          string // Empty for root and service keys
	ValueHash       string // cryptox.FingerprintToken of the opaque value
	SecretEncrypted []byte // HMAC or TOTP secret sealed with the master key
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (k Key) IsRoot() bool    { return k.ServiceID == "" }
func (k Key) IsService() bool { return k.ServiceID != "" && k.UserID == "" }
func (k Key) IsUser() bool    { return k.ServiceID != "" && k.UserID != "" }

// Usable reports whether the key can authenticate anything.
func (k Key) Usable() bool { return k.Enabled && !k.Revoked }

// KeyWithValue is returned once, on create. The value is never stored.
type KeyWithValue struct {
	Key
	Value string

	// TotpURL is the otpauth:// enrolment URL, set for new Totp keys only.
	TotpURL string
}

// KeyUpdate carries optional changes. Revoked can only move to true.
type KeyUpdate struct {
	Name    *string
	Enabled *bool
	Revoked *bool
}

func (u KeyUpdate) Apply(k Key) Key {
	if u.Name != nil {
		k.Name = *u.Name
	}
	if u.Enabled != nil {
		k.Enabled = *u.Enabled
	}
	if u.Revoked != nil && *u.Revoked {
		k.Revoked = true
	}
	return k
}

// KeyFilter narrows key listings. Empty fields are ignored.
type KeyFilter struct {
	ServiceID string
	UserID    string
	Type      KeyType
	Limit     int
	AfterID   string
}
