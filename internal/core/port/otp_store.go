package port

import (
	"context"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// OTPStore keeps pending one-time-code challenges keyed by purpose and
// identity. Storing a new challenge for the same key replaces the previous
// one and resets its attempt counter.
type OTPStore interface {
	Store(ctx context.Context, purpose, identityID, codeHash string, ttl time.Duration, at time.Time) error
	Fetch(ctx context.Context, purpose, identityID string) (*domain.OTPChallenge, error)
	// IncrementAttempts returns the post-increment attempt count.
	IncrementAttempts(ctx context.Context, purpose, identityID string) (int, error)
	Delete(ctx context.Context, purpose, identityID string) error
}
