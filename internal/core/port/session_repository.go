package port

import (
	"context"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// SessionRepository persists login sessions keyed by token hash.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// Touch updates last-accessed without moving expiry.
	Touch(ctx context.Context, sessionID string, at time.Time) error
	// UpdateExpiry moves expiry and last-accessed on refresh.
	UpdateExpiry(ctx context.Context, sessionID string, expiresAt, at time.Time) error
	// Deactivate flips the active flag; returns false when the session was
	// already inactive or unknown.
	Deactivate(ctx context.Context, tokenHash string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) (int, error)
	// DeactivateExpired batch-deactivates sessions whose expiry has passed.
	// Safe to run repeatedly and concurrently.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)
}
