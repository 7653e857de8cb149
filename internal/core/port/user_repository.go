package port

import (
	"context"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// UserRepository exposes the identity-store operations the core needs. The
// wider user CRUD surface lives with the owning service.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string, at time.Time) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}
