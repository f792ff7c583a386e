package domain

import "time"

// MFAKind selects the configured second factor for an identity.
type MFAKind string

const (
	MFAKindOTP  MFAKind = "OTP"
	MFAKindTOTP MFAKind = "TOTP"
	MFAKindSMS  MFAKind = "SMS"
)

// Credential holds the password material and per-identity authentication
// policy for one identity. Exactly one credential exists per identity.
//
// PasswordHash must never appear in logs, events, or API responses.
type Credential struct {
	ID                 string
	IdentityID         string
	PasswordHash       string
	RequireChange      bool
	LastPasswordChange time.Time
	MFAKind            MFAKind
	MFASecret          *string
	MaxFailedAttempts  int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PasswordHistoryEntry records a hash the identity used previously. New
// passwords are compared against the bounded history to block reuse.
type PasswordHistoryEntry struct {
	ID           string
	CredentialID string
	PasswordHash string
	SetAt        time.Time
}

// OTPChallenge is the server-side state of a pending one-time code: the code
// is delivered out of band and only its hash is retained.
type OTPChallenge struct {
	Purpose    string
	IdentityID string
	CodeHash   string
	Attempts   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the challenge is past its validity window.
func (c OTPChallenge) Expired(at time.Time) bool {
	return at.After(c.ExpiresAt)
}
