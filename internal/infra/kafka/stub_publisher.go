package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful when no
// broker is configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, identityID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("identity_id", identityID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishIdentityRegistered logs identity.registered events.
func (p *StubPublisher) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	payload := map[string]any{
		"identity_id":   event.IdentityID,
		"email":         event.Email,
		"role":          event.Role,
		"registered_at": event.OccurredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("identity.registered", event.IdentityID, event.OccurredAt, payload)
	return nil
}

// PublishIdentityVerified logs identity.verified events.
func (p *StubPublisher) PublishIdentityVerified(_ context.Context, event domain.IdentityVerifiedEvent) error {
	payload := map[string]any{
		"identity_id": event.IdentityID,
		"verified_at": event.OccurredAt,
	}
	p.logEvent("identity.verified", event.IdentityID, event.OccurredAt, payload)
	return nil
}

// PublishIdentityLocked logs identity.locked events.
func (p *StubPublisher) PublishIdentityLocked(_ context.Context, event domain.IdentityLockedEvent) error {
	payload := map[string]any{
		"identity_id": event.IdentityID,
		"attempts":    event.Attempts,
		"permanent":   event.Permanent,
		"locked_at":   event.OccurredAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("identity.locked", event.IdentityID, event.OccurredAt, payload)
	return nil
}

// PublishPasswordChanged logs identity.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"identity_id": event.IdentityID,
		"reason":      event.Reason,
		"changed_at":  event.OccurredAt,
	}
	p.logEvent("identity.password.changed", event.IdentityID, event.OccurredAt, payload)
	return nil
}

// PublishSessionRevoked logs session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"session_id":  event.SessionID,
		"identity_id": event.IdentityID,
		"reason":      event.Reason,
		"revoked_by":  event.RevokedBy,
		"revoked_at":  event.OccurredAt,
	}
	p.logEvent("session.revoked", event.IdentityID, event.OccurredAt, payload)
	return nil
}

// PublishOTPIssued logs identity.otp.issued events.
func (p *StubPublisher) PublishOTPIssued(_ context.Context, event domain.OTPIssuedEvent) error {
	payload := map[string]any{
		"identity_id": event.IdentityID,
		"purpose":     event.Purpose,
		"issued_at":   event.OccurredAt,
		"expires_at":  event.ExpiresAt,
	}
	p.logEvent("identity.otp.issued", event.IdentityID, event.OccurredAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
