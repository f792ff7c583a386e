package port

import (
	"context"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// IdentityFilter narrows administrative listings.
type IdentityFilter struct {
	Role   *domain.Role
	Status *domain.IdentityStatus
	Limit  int
	Offset int
}

// IdentityRepository persists identities and their lifecycle state.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	UpdateStatus(ctx context.Context, id string, status domain.IdentityStatus, at time.Time) error
	UpdateProfile(ctx context.Context, identity domain.Identity) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, filter IdentityFilter) ([]domain.Identity, error)
	ListWithLatestSession(ctx context.Context, filter IdentityFilter, at time.Time) ([]domain.IdentityWithSession, error)
	Delete(ctx context.Context, id string) error
}
