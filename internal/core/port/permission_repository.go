package port

import (
	"context"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// PermissionRepository persists permissions and role-permission grants.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) (int64, error)
	GetByResourceAction(ctx context.Context, resource, action string) (*domain.Permission, error)
	List(ctx context.Context, includeInactive bool) ([]domain.Permission, error)
	SetActive(ctx context.Context, id int64, active bool) error

	// UserHasPermission evaluates the four-way join: active assignment,
	// active role, active grant, active permission. No caching; every call
	// hits the store so revocation takes effect on the next check.
	UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error)
	// ListByUser projects the same join for contextual enrichment. Not used
	// for authorization decisions.
	ListByUser(ctx context.Context, userID string) ([]domain.Permission, error)
	ListByRole(ctx context.Context, roleID int64) ([]domain.Permission, error)
	// GrantToRole records a grant; returns false when it already existed.
	GrantToRole(ctx context.Context, roleID, permissionID int64) (bool, error)
}
