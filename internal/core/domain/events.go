package domain

import "time"

// Domain events published to the message bus. Publication is best-effort:
// a failed publish is logged and never rolls back the state change that
// produced it.

// IdentityRegisteredEvent is emitted after a new identity and its credential
// are persisted.
type IdentityRegisteredEvent struct {
	EventID    string
	IdentityID string
	Email      string
	Role       Role
	OccurredAt time.Time
	Metadata   map[string]string
}

// IdentityVerifiedEvent is emitted when a pending identity redeems its
// verification token and becomes active.
type IdentityVerifiedEvent struct {
	EventID    string
	IdentityID string
	OccurredAt time.Time
}

// IdentityLockedEvent is emitted when the failed-attempt threshold blocks an
// identity. Permanent marks the escalation to a permanent block.
type IdentityLockedEvent struct {
	EventID    string
	IdentityID string
	Attempts   int
	Permanent  bool
	OccurredAt time.Time
	Metadata   map[string]string
}

// PasswordChangedEvent is emitted after a credential change or reset has been
// applied and the identity's sessions revoked.
type PasswordChangedEvent struct {
	EventID    string
	IdentityID string
	Reason     string
	OccurredAt time.Time
}

// SessionRevokedEvent is emitted for each revocation, single or bulk.
type SessionRevokedEvent struct {
	EventID    string
	IdentityID string
	SessionID  string
	Reason     string
	RevokedBy  string
	OccurredAt time.Time
}

// OTPIssuedEvent is emitted whenever a one-time code is generated, for audit
// and delivery tracking. It never carries the code itself.
type OTPIssuedEvent struct {
	EventID    string
	IdentityID string
	Purpose    string
	ExpiresAt  time.Time
	OccurredAt time.Time
}
