package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, asyncProducer sarama.AsyncProducer) *EventPublisher {
	t.Helper()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "iam",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	return NewEventPublisher(producer, config.AppSettings{
		Name: "dense-platform-iam",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishSecurityAlert(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	raisedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.SecurityAlertEvent{
		EventID:   "event-123",
		AlertID:   "alert-456",
		AlertType: "failed_login_burst",
		Severity:  domain.SeverityHigh,
		Message:   "5 failed logins within 5m0s",
		Details:   map[string]any{"identifier": "user-789"},
		RaisedAt:  raisedAt,
	}

	if err := publisher.PublishSecurityAlert(context.Background(), event); err != nil {
		t.Fatalf("PublishSecurityAlert returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "iam.security.alert_raised" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("encode message: %v", err)
		}

		var envelope struct {
			EventID   string         `json:"event_id"`
			EventType string         `json:"event_type"`
			Timestamp time.Time      `json:"timestamp"`
			Version   string         `json:"version"`
			Payload   map[string]any `json:"payload"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}

		if envelope.EventID != "event-123" {
			t.Fatalf("expected event id preserved, got %s", envelope.EventID)
		}
		if envelope.EventType != "iam.security.alert_raised" {
			t.Fatalf("unexpected event type: %s", envelope.EventType)
		}
		if !envelope.Timestamp.Equal(raisedAt) {
			t.Fatalf("expected timestamp %v, got %v", raisedAt, envelope.Timestamp)
		}
		if envelope.Payload["alert_id"] != "alert-456" {
			t.Fatalf("unexpected payload: %+v", envelope.Payload)
		}
	default:
		t.Fatalf("expected a message on the producer input channel")
	}
}

func TestPublishSessionRevoked_GeneratesEventID(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	event := domain.SessionRevokedEvent{
		UserID:    "user-1",
		Reason:    "password_reset",
		Count:     3,
		RevokedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishSessionRevoked(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionRevoked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		raw, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("encode message: %v", err)
		}

		var envelope struct {
			EventID string `json:"event_id"`
			UserID  string `json:"user_id"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if envelope.EventID == "" {
			t.Fatalf("expected generated event id")
		}
		if envelope.UserID != "user-1" {
			t.Fatalf("expected user id on envelope, got %s", envelope.UserID)
		}
	default:
		t.Fatalf("expected a message on the producer input channel")
	}
}
