package port

import (
	"context"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// SessionRepository persists authenticated sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	CountActiveByIdentity(ctx context.Context, identityID string, at time.Time) (int, error)
	ListByIdentity(ctx context.Context, identityID string) ([]domain.Session, error)
	ListActiveByIdentity(ctx context.Context, identityID string, at time.Time) ([]domain.Session, error)
	// ExtendExpiry pushes the session's expiry forward during token renewal and
	// records the activity.
	ExtendExpiry(ctx context.Context, id string, expiresAt, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time, ip *string) error
	Revoke(ctx context.Context, id, reason string, at time.Time) error
	// RevokeAllForIdentity revokes every active session and returns the IDs it
	// revoked, so callers can emit one event per session.
	RevokeAllForIdentity(ctx context.Context, identityID, reason string, at time.Time) ([]string, error)
	DeleteByIdentity(ctx context.Context, identityID string) error
}
