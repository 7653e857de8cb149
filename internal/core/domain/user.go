package domain

import "time"

// User mirrors the persisted representation in the users table. The ID is the
// login name chosen at registration; it never changes.
type User struct {
	ID           string
	PasswordHash string
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAuthenticate reports whether the account is allowed to start new sessions.
func (u User) CanAuthenticate() bool {
	return u.IsActive
}
