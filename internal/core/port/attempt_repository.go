package port

import (
	"context"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// AttemptRepository tracks failed-login counters and lockout occurrences.
type AttemptRepository interface {
	// IncrementUnresolved bumps the open counter for the identity and returns
	// the post-increment total. The increment must be atomic in the store: two
	// racing failures yield distinct totals, never a lost update.
	IncrementUnresolved(ctx context.Context, identityID string, ip *string, at time.Time) (int, error)
	GetUnresolved(ctx context.Context, identityID string) (*domain.FailedAttempt, error)
	// ResolveAll closes every open counter for the identity and returns how
	// many rows changed. Resolving with no open counter is not an error.
	ResolveAll(ctx context.Context, identityID string, at time.Time) (int, error)
	RecordLockout(ctx context.Context, record domain.LockoutRecord) error
	CountLockoutsSince(ctx context.Context, identityID string, since time.Time) (int, error)
	DeleteByIdentity(ctx context.Context, identityID string) error
}
