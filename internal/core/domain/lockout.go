package domain

import "time"

// FailedAttempt is the running counter of consecutive failed logins for one
// identity. At most one unresolved row exists per identity; successful logins,
// explicit clears, and completed resets resolve it.
type FailedAttempt struct {
	ID         string
	IdentityID string
	IP         *string
	Attempts   int
	FirstAt    time.Time
	LastAt     time.Time
	ResolvedAt *time.Time
}

// Resolved reports whether the counter has been closed out.
func (f FailedAttempt) Resolved() bool {
	return f.ResolvedAt != nil
}

// LockoutRecord marks one completed lockout occurrence. Escalation to a
// permanent block counts these within a rolling window.
type LockoutRecord struct {
	ID         string
	IdentityID string
	Attempts   int
	LockedAt   time.Time
}
