package domain

import "time"

// APIToken is a bearer token issued to a student or writer. Only the
// sha256 of the plain token is stored.
type APIToken struct {
	ID        int64
	TokenHash string
	UserID    int64
	Role      string
	ExpiresAt *time.Time
}

func (t APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
