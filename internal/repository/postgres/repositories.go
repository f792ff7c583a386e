package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Identities    *IdentityRepository
	Credentials   *CredentialRepository
	Attempts      *AttemptRepository
	Sessions      *SessionRepository
	Verifications *VerificationRepository
	Policies      *PolicyRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Identities:    NewIdentityRepository(pool),
		Credentials:   NewCredentialRepository(pool),
		Attempts:      NewAttemptRepository(pool),
		Sessions:      NewSessionRepository(pool),
		Verifications: NewVerificationRepository(pool),
		Policies:      NewPolicyRepository(pool),
	}
}
