package port

import (
	"context"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// CredentialRepository persists password material and its bounded history.
type CredentialRepository interface {
	Create(ctx context.Context, credential domain.Credential) error
	GetByIdentity(ctx context.Context, identityID string) (*domain.Credential, error)
	// UpdatePassword replaces the current hash and stamps the change time.
	UpdatePassword(ctx context.Context, identityID, passwordHash string, changedAt time.Time) error
	SetRequireChange(ctx context.Context, identityID string, require bool, at time.Time) error
	ListHistory(ctx context.Context, identityID string, limit int) ([]domain.PasswordHistoryEntry, error)
	AddHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error
	// TrimHistory deletes all but the most recent keep entries.
	TrimHistory(ctx context.Context, identityID string, keep int) error
	DeleteByIdentity(ctx context.Context, identityID string) error
}
