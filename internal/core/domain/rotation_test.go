package domain

import (
	"testing"
	"time"
)

func TestEvaluateRotation(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		name       string
		lastChange time.Time
		mustChange bool
		warn       bool
	}{
		{"fresh credential", now.Add(-10 * day), false, false},
		{"just inside the warning window", now.Add(-176 * day), false, true},
		{"last day before the boundary", now.Add(-179 * day), false, true},
		{"exactly at the boundary", now.Add(-180 * day), false, true},
		{"past the boundary", now.Add(-181 * day), true, false},
		{"just outside the warning window", now.Add(-175 * day), false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := EvaluateRotation(tc.lastChange, now)
			if status.MustChange != tc.mustChange {
				t.Fatalf("MustChange = %v, want %v", status.MustChange, tc.mustChange)
			}
			if status.Warn != tc.warn {
				t.Fatalf("Warn = %v, want %v", status.Warn, tc.warn)
			}
		})
	}
}

func TestEvaluateRotation_ZeroLastChange(t *testing.T) {
	status := EvaluateRotation(time.Time{}, time.Now().UTC())
	if !status.MustChange {
		t.Fatalf("an unrecorded change date must force a change")
	}
}

func TestEvaluateRotation_RemainingTurnsNegativeWhenOverdue(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	status := EvaluateRotation(now.Add(-181*24*time.Hour), now)
	if status.Remaining >= 0 {
		t.Fatalf("expected a negative remainder when overdue, got %v", status.Remaining)
	}

	status = EvaluateRotation(now.Add(-170*24*time.Hour), now)
	if want := 10 * 24 * time.Hour; status.Remaining != want {
		t.Fatalf("expected %v remaining, got %v", want, status.Remaining)
	}
}
