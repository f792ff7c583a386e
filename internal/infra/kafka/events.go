package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/config"
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
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	IdentityID string           `json:"identity_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Version    string           `json:"version"`
	Payload    any              `json:"payload"`
	Metadata   envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, identityID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:    id,
		EventType:  eventType,
		IdentityID: identityID,
		Timestamp:  ts.UTC(),
		Version:    schemaVersion,
		Payload:    payload,
		Metadata:   metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(identityID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishIdentityRegistered publishes identity.registered events.
func (p *EventPublisher) PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error {
	payload := struct {
		IdentityID   string            `json:"identity_id"`
		Email        string            `json:"email"`
		Role         string            `json:"role"`
		RegisteredAt time.Time         `json:"registered_at"`
		Metadata     map[string]string `json:"metadata,omitempty"`
	}{
		IdentityID:   event.IdentityID,
		Email:        event.Email,
		Role:         string(event.Role),
		RegisteredAt: event.OccurredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.registered", event.IdentityID, event.OccurredAt, payload)
}

// PublishIdentityVerified publishes identity.verified events.
func (p *EventPublisher) PublishIdentityVerified(ctx context.Context, event domain.IdentityVerifiedEvent) error {
	payload := struct {
		IdentityID string    `json:"identity_id"`
		VerifiedAt time.Time `json:"verified_at"`
	}{
		IdentityID: event.IdentityID,
		VerifiedAt: event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.verified", event.IdentityID, event.OccurredAt, payload)
}

// PublishIdentityLocked publishes identity.locked events.
func (p *EventPublisher) PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error {
	payload := struct {
		IdentityID string            `json:"identity_id"`
		Attempts   int               `json:"attempts"`
		Permanent  bool              `json:"permanent"`
		LockedAt   time.Time         `json:"locked_at"`
		Metadata   map[string]string `json:"metadata,omitempty"`
	}{
		IdentityID: event.IdentityID,
		Attempts:   event.Attempts,
		Permanent:  event.Permanent,
		LockedAt:   event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.locked", event.IdentityID, event.OccurredAt, payload)
}

// PublishPasswordChanged publishes identity.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		IdentityID string    `json:"identity_id"`
		Reason     string    `json:"reason"`
		ChangedAt  time.Time `json:"changed_at"`
	}{
		IdentityID: event.IdentityID,
		Reason:     event.Reason,
		ChangedAt:  event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.password.changed", event.IdentityID, event.OccurredAt, payload)
}

// PublishSessionRevoked publishes session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID  string    `json:"session_id"`
		IdentityID string    `json:"identity_id"`
		Reason     string    `json:"reason"`
		RevokedBy  string    `json:"revoked_by"`
		RevokedAt  time.Time `json:"revoked_at"`
	}{
		SessionID:  event.SessionID,
		IdentityID: event.IdentityID,
		Reason:     event.Reason,
		RevokedBy:  event.RevokedBy,
		RevokedAt:  event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "session.revoked", event.IdentityID, event.OccurredAt, payload)
}

// PublishOTPIssued publishes identity.otp.issued events. The payload never
// carries the code.
func (p *EventPublisher) PublishOTPIssued(ctx context.Context, event domain.OTPIssuedEvent) error {
	payload := struct {
		IdentityID string    `json:"identity_id"`
		Purpose    string    `json:"purpose"`
		IssuedAt   time.Time `json:"issued_at"`
		ExpiresAt  time.Time `json:"expires_at"`
	}{
		IdentityID: event.IdentityID,
		Purpose:    event.Purpose,
		IssuedAt:   event.OccurredAt.UTC(),
		ExpiresAt:  event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.otp.issued", event.IdentityID, event.OccurredAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
