package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSecurityAlert logs iam.security.alert_raised events.
func (p *StubPublisher) PublishSecurityAlert(_ context.Context, event domain.SecurityAlertEvent) error {
	payload := map[string]any{
		"alert_id":   event.AlertID,
		"alert_type": event.AlertType,
		"severity":   event.Severity,
		"message":    event.Message,
		"details":    event.Details,
		"raised_at":  event.RaisedAt,
	}
	p.logEvent("iam.security.alert_raised", "", event.RaisedAt, payload)
	return nil
}

// PublishSessionRevoked logs iam.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"reason":     event.Reason,
		"count":      event.Count,
		"revoked_at": event.RevokedAt,
	}
	p.logEvent("iam.session.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

// PublishPasswordResetCompleted logs iam.user.password.reset_completed events.
func (p *StubPublisher) PublishPasswordResetCompleted(_ context.Context, event domain.PasswordResetCompletedEvent) error {
	payload := map[string]any{
		"user_id":          event.UserID,
		"sessions_revoked": event.SessionsRevoked,
		"completed_at":     event.CompletedAt,
	}
	p.logEvent("iam.user.password.reset_completed", event.UserID, event.CompletedAt, payload)
	return nil
}

// PublishRoleAssignmentChanged logs iam.user.role_assignment.changed events.
func (p *StubPublisher) PublishRoleAssignmentChanged(_ context.Context, event domain.RoleAssignmentChangedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"role_name":  event.RoleName,
		"assigned":   event.Assigned,
		"actor_id":   event.ActorID,
		"changed_at": event.ChangedAt,
	}
	p.logEvent("iam.user.role_assignment.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
