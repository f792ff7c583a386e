package domain

import (
	"time"
)

// Role identifies the kind of principal an identity represents. The set is
// closed: unknown role values are rejected at registration time.
type Role string

const (
	RoleCustomer Role = "cliente"
	RoleAdmin    Role = "administrador"
)

// sessionCaps bounds the number of concurrently active sessions per role.
var sessionCaps = map[Role]int{
	RoleCustomer: 5,
	RoleAdmin:    2,
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	_, ok := sessionCaps[r]
	return ok
}

// SessionCap returns the maximum number of concurrently active sessions
// allowed for the role. Unknown roles get the most restrictive cap.
func (r Role) SessionCap() int {
	if cap, ok := sessionCaps[r]; ok {
		return cap
	}
	return 1
}

// IdentityStatus tracks the lifecycle state of an identity.
type IdentityStatus string

const (
	// StatusPending is assigned at registration until the email address is verified.
	StatusPending IdentityStatus = "pending"
	// StatusActive identities may authenticate.
	StatusActive IdentityStatus = "active"
	// StatusBlocked is entered when the failed-attempt threshold is reached.
	// Cleared by an administrative unlock or a completed password reset.
	StatusBlocked IdentityStatus = "blocked"
	// StatusSuspended is an administrative hold. Only an administrator lifts it.
	StatusSuspended IdentityStatus = "suspended"
	// StatusPermanentlyBlocked is the escalation of repeated lockouts. Only an
	// administrator can reverse it; password resets do not.
	StatusPermanentlyBlocked IdentityStatus = "permanently_blocked"
)

// CanAuthenticate reports whether credentials may be verified for an identity
// in this state.
func (s IdentityStatus) CanAuthenticate() bool {
	return s == StatusActive
}

// statusTransitions enumerates the allowed state changes. Absent entries are
// disallowed transitions.
var statusTransitions = map[IdentityStatus][]IdentityStatus{
	StatusPending:            {StatusActive, StatusBlocked},
	StatusActive:             {StatusBlocked, StatusSuspended, StatusPermanentlyBlocked},
	StatusBlocked:            {StatusActive, StatusPermanentlyBlocked},
	StatusSuspended:          {StatusActive},
	StatusPermanentlyBlocked: {StatusActive},
}

// CanTransitionTo reports whether moving from the current status to the target
// is an allowed lifecycle change.
func (s IdentityStatus) CanTransitionTo(target IdentityStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Address captures the optional postal address attached to a profile.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
}

// Identity is the aggregate root for a registered principal. Password
// material lives on the associated Credential, never here, so an Identity can
// be returned from any operation without sanitization.
type Identity struct {
	ID           string
	Name         string
	Email        string
	Phone        *string
	Address      *Address
	Role         Role
	Status       IdentityStatus
	MFAEnabled   bool
	RegisteredAt time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// IsActive reports whether the identity may currently authenticate.
func (i *Identity) IsActive() bool {
	return i != nil && i.Status.CanAuthenticate()
}

// IdentityWithSession pairs an identity with its most recent active session,
// if any. Used by administrative listings.
type IdentityWithSession struct {
	Identity      Identity
	LatestSession *Session
}
