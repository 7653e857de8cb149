package port

import (
	"context"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// AuditFilter narrows audit event queries.
type AuditFilter struct {
	UserID string
	Type   domain.EventType
	Since  time.Time
	Limit  int
}

// AuditRepository appends and queries immutable audit events. There is
// deliberately no update or delete operation.
type AuditRepository interface {
	Insert(ctx context.Context, event domain.AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditEvent, error)
}
