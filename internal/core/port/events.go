package port

import (
	"context"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// EventPublisher propagates security-relevant lifecycle events to downstream
// consumers. Publication is best-effort; the core never blocks a business
// operation on delivery.
type EventPublisher interface {
	PublishSecurityAlert(ctx context.Context, event domain.SecurityAlertEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishPasswordResetCompleted(ctx context.Context, event domain.PasswordResetCompletedEvent) error
	PublishRoleAssignmentChanged(ctx context.Context, event domain.RoleAssignmentChangedEvent) error
}
