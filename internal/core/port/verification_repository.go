package port

import (
	"context"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// VerificationRepository persists email-verification tokens.
type VerificationRepository interface {
	Create(ctx context.Context, token domain.VerificationToken) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.VerificationToken, error)
	// Consume marks the token used; a second consume for the same token fails
	// with ErrNotFound semantics at the store level.
	Consume(ctx context.Context, id string, at time.Time) error
	DeleteByIdentity(ctx context.Context, identityID string) error
}
