package domain

import "time"

// PasswordResetToken represents a single-use password reset token. As with
// sessions, only the SHA-256 hash of the token is persisted.
//
// Invariant: at most one unused token exists per user; issuing a new token
// invalidates all prior unused tokens for that user.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsUsed    bool
	UsedAt    *time.Time
}

// Redeemable reports whether the token may still be consumed at the supplied
// moment: unused and not expired.
func (t PasswordResetToken) Redeemable(at time.Time) bool {
	return !t.IsUsed && at.Before(t.ExpiresAt)
}
