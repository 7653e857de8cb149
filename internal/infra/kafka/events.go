package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: envelopeMetadata{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSecurityAlert publishes iam.security.alert_raised events.
func (p *EventPublisher) PublishSecurityAlert(ctx context.Context, event domain.SecurityAlertEvent) error {
	payload := struct {
		AlertID   string         `json:"alert_id"`
		AlertType string         `json:"alert_type"`
		Severity  string         `json:"severity"`
		Message   string         `json:"message"`
		Details   map[string]any `json:"details,omitempty"`
		RaisedAt  time.Time      `json:"raised_at"`
	}{
		AlertID:   event.AlertID,
		AlertType: event.AlertType,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Details:   event.Details,
		RaisedAt:  event.RaisedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "iam.security.alert_raised", "", event.RaisedAt, payload)
}

// PublishSessionRevoked publishes iam.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id,omitempty"`
		UserID    string    `json:"user_id"`
		Reason    string    `json:"reason"`
		Count     int       `json:"count"`
		RevokedAt time.Time `json:"revoked_at"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		Reason:    event.Reason,
		Count:     event.Count,
		RevokedAt: event.RevokedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "iam.session.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishPasswordResetCompleted publishes iam.user.password.reset_completed events.
func (p *EventPublisher) PublishPasswordResetCompleted(ctx context.Context, event domain.PasswordResetCompletedEvent) error {
	payload := struct {
		UserID          string    `json:"user_id"`
		SessionsRevoked int       `json:"sessions_revoked"`
		CompletedAt     time.Time `json:"completed_at"`
	}{
		UserID:          event.UserID,
		SessionsRevoked: event.SessionsRevoked,
		CompletedAt:     event.CompletedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "iam.user.password.reset_completed", event.UserID, event.CompletedAt, payload)
}

// PublishRoleAssignmentChanged publishes iam.user.role_assignment.changed events.
func (p *EventPublisher) PublishRoleAssignmentChanged(ctx context.Context, event domain.RoleAssignmentChangedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		RoleName  string    `json:"role_name"`
		Assigned  bool      `json:"assigned"`
		ActorID   string    `json:"actor_id,omitempty"`
		ChangedAt time.Time `json:"changed_at"`
	}{
		UserID:    event.UserID,
		RoleName:  event.RoleName,
		Assigned:  event.Assigned,
		ActorID:   event.ActorID,
		ChangedAt: event.ChangedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "iam.user.role_assignment.changed", event.UserID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
