package domain

import "time"

// Csrf is a single-use entry. Reading it through the store consumes it.
type Csrf struct {
	Key       string
	Value     string
	ServiceID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its TTL at now.
func (c Csrf) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }
