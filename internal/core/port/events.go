package port

import (
	"context"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// EventPublisher emits domain events to the message bus. Implementations must
// not block state changes: callers treat publish failures as warnings.
type EventPublisher interface {
	PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error
	PublishIdentityVerified(ctx context.Context, event domain.IdentityVerifiedEvent) error
	PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishOTPIssued(ctx context.Context, event domain.OTPIssuedEvent) error
}
