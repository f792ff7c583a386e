package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/infra/config"
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

func newTestPublisher(t *testing.T, async sarama.AsyncProducer) *EventPublisher {
	t.Helper()

	producer := &Producer{
		producer: async,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "auth",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	return NewEventPublisher(producer, config.AppSettings{
		Name: "identity-service",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishIdentityLocked(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	lockedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	event := domain.IdentityLockedEvent{
		EventID:    "event-123",
		IdentityID: "identity-456",
		Attempts:   5,
		Permanent:  false,
		OccurredAt: lockedAt,
		Metadata:   map[string]string{"source": "unit-test"},
	}

	if err := publisher.PublishIdentityLocked(context.Background(), event); err != nil {
		t.Fatalf("PublishIdentityLocked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "auth.identity.locked" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			t.Fatalf("Key.Encode returned error: %v", err)
		}
		if string(key) != event.IdentityID {
			t.Fatalf("unexpected message key: %s", key)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_id"]; got != event.EventID {
			t.Fatalf("unexpected event_id: %v", got)
		}

		if got := envelope["event_type"]; got != "identity.locked" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		if got := envelope["identity_id"]; got != event.IdentityID {
			t.Fatalf("unexpected identity_id: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}
		parsed, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			t.Fatalf("failed to parse timestamp: %v", err)
		}
		if !parsed.Equal(lockedAt) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["attempts"]; got != float64(event.Attempts) {
			t.Fatalf("unexpected attempts: %v", got)
		}

		if got := payload["permanent"]; got != false {
			t.Fatalf("unexpected permanent flag: %v", got)
		}

		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("metadata not a map: %T", envelope["metadata"])
		}

		if got := metadata["service"]; got != "identity-service" {
			t.Fatalf("unexpected metadata.service: %v", got)
		}
	default:
		t.Fatal("no message published")
	}
}

func TestPublishSessionRevokedGeneratesEventID(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	event := domain.SessionRevokedEvent{
		IdentityID: "identity-456",
		SessionID:  "session-789",
		Reason:     "user_logout",
		RevokedBy:  "identity-456",
		OccurredAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishSessionRevoked(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionRevoked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		eventID, ok := envelope["event_id"].(string)
		if !ok || eventID == "" {
			t.Fatalf("expected generated event_id, got %v", envelope["event_id"])
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["session_id"]; got != event.SessionID {
			t.Fatalf("unexpected session_id: %v", got)
		}

		if got := payload["reason"]; got != event.Reason {
			t.Fatalf("unexpected reason: %v", got)
		}
	default:
		t.Fatal("no message published")
	}
}

func TestTopicNameAppliesPrefixOnce(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "auth"}}

	if got := producer.TopicName("identity.locked"); got != "auth.identity.locked" {
		t.Fatalf("unexpected topic: %s", got)
	}

	if got := producer.TopicName("auth.identity.locked"); got != "auth.identity.locked" {
		t.Fatalf("expected prefix applied once, got %s", got)
	}

	bare := &Producer{cfg: config.KafkaSettings{}}
	if got := bare.TopicName("identity.locked"); got != "identity.locked" {
		t.Fatalf("expected bare topic, got %s", got)
	}
}
