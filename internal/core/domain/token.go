package domain

import "time"

// VerificationToken is an email-verification grant issued at registration.
// Only the hash of the emailed token is stored; redemption hashes the
// presented value and looks it up.
type VerificationToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
}

// Redeemable reports whether the token can still be consumed.
func (t VerificationToken) Redeemable(at time.Time) bool {
	return t.UsedAt == nil && at.Before(t.ExpiresAt)
}
