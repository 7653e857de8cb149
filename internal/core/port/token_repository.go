package port

import (
	"context"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// TokenRepository persists password reset tokens keyed by token hash.
type TokenRepository interface {
	Create(ctx context.Context, token domain.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	// InvalidateUnusedForUser marks every unused token for the user as used,
	// enforcing the single-active-token invariant before a new issue.
	InvalidateUnusedForUser(ctx context.Context, userID string, at time.Time) (int, error)
	// MarkUsed consumes the token in one operation; returns false when the
	// token was already used, expired, or unknown.
	MarkUsed(ctx context.Context, tokenHash string, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
