package port

import (
	"context"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// PolicyRepository persists the singleton policy configuration record.
type PolicyRepository interface {
	// Get returns the stored policy, or repository.ErrNotFound when no record
	// has ever been written.
	Get(ctx context.Context) (*domain.PolicyConfig, error)
	Upsert(ctx context.Context, cfg domain.PolicyConfig) error
}
