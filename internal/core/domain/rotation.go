package domain

import "time"

// Password rotation windows. Arithmetic is done on UTC instants with fixed
// durations rather than calendar months so the boundary is unambiguous.
const (
	// RotationBoundary is the maximum credential age before a change is forced.
	RotationBoundary = 180 * 24 * time.Hour
	// RotationWarningWindow is how long before the boundary warnings begin.
	RotationWarningWindow = 5 * 24 * time.Hour
)

// RotationStatus is the outcome of evaluating a credential's age.
type RotationStatus struct {
	MustChange bool
	Warn       bool
	// Remaining is the time left until the boundary. Negative once overdue.
	Remaining time.Duration
}

// EvaluateRotation classifies a credential by the age of its last password
// change. A zero lastChange means the change date was never recorded and is
// treated as overdue.
func EvaluateRotation(lastChange, now time.Time) RotationStatus {
	if lastChange.IsZero() {
		return RotationStatus{MustChange: true}
	}

	age := now.UTC().Sub(lastChange.UTC())
	remaining := RotationBoundary - age

	switch {
	case age > RotationBoundary:
		return RotationStatus{MustChange: true, Remaining: remaining}
	case age > RotationBoundary-RotationWarningWindow:
		return RotationStatus{Warn: true, Remaining: remaining}
	default:
		return RotationStatus{Remaining: remaining}
	}
}
