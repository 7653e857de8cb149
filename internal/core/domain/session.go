package domain

import "time"

// Session represents a persisted login session. Only the SHA-256 hash of the
// bearer token is stored; the raw token is returned to the client exactly once
// at creation and cannot be recovered afterwards.
type Session struct {
	ID           string
	UserID       string
	TokenHash    string
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    time.Time
	IsActive     bool
	IP           *string
	UserAgent    *string
}

// Usable reports whether the session may authenticate requests at the supplied
// moment. A session is usable iff it is active and the moment is strictly
// before expiry.
func (s Session) Usable(at time.Time) bool {
	return s.IsActive && at.Before(s.ExpiresAt)
}

// Touch updates last-accessed metadata. Activity is sliding; expiry is fixed
// at creation or refresh.
func (s *Session) Touch(at time.Time) {
	s.LastAccessed = at
}

// SessionContext is the claims view handed to callers after a successful
// token validation.
type SessionContext struct {
	SessionID    string
	UserID       string
	ExpiresAt    time.Time
	LastAccessed time.Time
}
