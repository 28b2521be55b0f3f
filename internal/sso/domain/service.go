package domain

import "time"

// Service is a tenant. Every key, user, csrf entry and audit record outside
// of root keys is scoped to one.
type Service struct {
	ID                string
	Name              string
	URL               string
	Enabled           bool
	UserAllowRegister bool
	UserEmailText     string // Appended to every notification sent for this service
	LocalURL          string // Base URL for links in register/reset emails

	// OAuth2RedirectURLs maps a provider name ("github", "microsoft", "oidc")
	// to the URL the browser is sent back to. A provider missing from the map
	// is disabled for the service.
	OAuth2RedirectURLs map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceUpdate carries optional changes; nil fields are left untouched.
type ServiceUpdate struct {
	Name               *string
	URL                *string
	Enabled            *bool
	UserAllowRegister  *bool
	UserEmailText      *string
	LocalURL           *string
	OAuth2RedirectURLs map[string]string
}

// Apply returns a copy of s with u applied.
func (u ServiceUpdate) Apply(s Service) Service {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.URL != nil {
		s.URL = *u.URL
	}
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.UserAllowRegister != nil {
		s.UserAllowRegister = *u.UserAllowRegister
	}
	if u.UserEmailText != nil {
		s.UserEmailText = *u.UserEmailText
	}
	if u.LocalURL != nil {
		s.LocalURL = *u.LocalURL
	}
	if u.OAuth2RedirectURLs != nil {
		s.OAuth2RedirectURLs = u.OAuth2RedirectURLs
	}
	return s
}
