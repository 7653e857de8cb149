package port

import (
	"context"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// RoleRepository persists roles and user-role assignments.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context, includeInactive bool) ([]domain.Role, error)
	SetActive(ctx context.Context, id int64, active bool) error

	// ListByUser returns the active roles held by the user through active
	// assignments.
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)
	// AssignToUser records an assignment; returns false when it already
	// existed (idempotent, no duplicate row).
	AssignToUser(ctx context.Context, userID string, roleID int64, at time.Time) (bool, error)
	// RemoveFromUser deletes an assignment; returns false when none existed.
	RemoveFromUser(ctx context.Context, userID string, roleID int64) (bool, error)
	// UserHasRole reports whether the user holds an active assignment of an
	// active role with the given name.
	UserHasRole(ctx context.Context, userID, roleName string) (bool, error)
}
