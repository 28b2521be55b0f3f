package domain

import "time"

type User struct {
	ID                    string
	ServiceID             string
	Name                  string
	Email                 string // Unique per service
	Locale                string
	Timezone              string
	PasswordHash          string // argon2 encoded, empty when no password is set
	PasswordAllowReset    bool
	PasswordRequireUpdate bool
	Enabled               bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasPassword reports whether a local password has been set.
func (u User) HasPassword() bool { return u.PasswordHash != "" }

type UserUpdate struct {
	Name                  *string
	Email                 *string
	Locale                *string
	Timezone              *string
	PasswordHash          *string
	PasswordAllowReset    *bool
	PasswordRequireUpdate *bool
	Enabled               *bool
}

func (u UserUpdate) Apply(user User) User {
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Locale != nil {
		user.Locale = *u.Locale
	}
	if u.Timezone != nil {
		user.Timezone = *u.Timezone
	}
	if u.PasswordHash != nil {
		user.PasswordHash = *u.PasswordHash
	}
	if u.PasswordAllowReset != nil {
		user.PasswordAllowReset = *u.PasswordAllowReset
	}
	if u.PasswordRequireUpdate != nil {
		user.PasswordRequireUpdate = *u.PasswordRequireUpdate
	}
	if u.Enabled != nil {
		user.Enabled = *u.Enabled
	}
	return user
}

type UserFilter struct {
	ServiceID string
	Email     string
	Limit     int
	AfterID   string
}
