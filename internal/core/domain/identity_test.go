package domain

import "testing"

func TestRole_Valid(t *testing.T) {
	if !RoleCustomer.Valid() || !RoleAdmin.Valid() {
		t.Fatalf("expected both known roles valid")
	}
	if Role("gerente").Valid() {
		t.Fatalf("unknown roles must be invalid")
	}
	if Role("").Valid() {
		t.Fatalf("the empty role must be invalid")
	}
}

func TestRole_SessionCap(t *testing.T) {
	if cap := RoleCustomer.SessionCap(); cap != 5 {
		t.Fatalf("customer cap = %d, want 5", cap)
	}
	if cap := RoleAdmin.SessionCap(); cap != 2 {
		t.Fatalf("administrator cap = %d, want 2", cap)
	}
	if cap := Role("gerente").SessionCap(); cap != 1 {
		t.Fatalf("unknown role cap = %d, want 1", cap)
	}
}

func TestIdentityStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to IdentityStatus
		allowed  bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusBlocked, true},
		{StatusPending, StatusSuspended, false},
		{StatusActive, StatusBlocked, true},
		{StatusActive, StatusSuspended, true},
		{StatusActive, StatusPermanentlyBlocked, true},
		{StatusActive, StatusPending, false},
		{StatusBlocked, StatusActive, true},
		{StatusBlocked, StatusPermanentlyBlocked, true},
		{StatusBlocked, StatusSuspended, false},
		{StatusSuspended, StatusActive, true},
		{StatusSuspended, StatusBlocked, false},
		{StatusPermanentlyBlocked, StatusActive, true},
		{StatusPermanentlyBlocked, StatusBlocked, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestIdentityStatus_CanAuthenticate(t *testing.T) {
	for _, status := range []IdentityStatus{StatusPending, StatusBlocked, StatusSuspended, StatusPermanentlyBlocked} {
		if status.CanAuthenticate() {
			t.Errorf("%s must not authenticate", status)
		}
	}
	if !StatusActive.CanAuthenticate() {
		t.Fatalf("active identities must authenticate")
	}
}

func TestIdentity_IsActive(t *testing.T) {
	identity := &Identity{Status: StatusActive}
	if !identity.IsActive() {
		t.Fatalf("expected active")
	}

	identity.Status = StatusSuspended
	if identity.IsActive() {
		t.Fatalf("expected inactive when suspended")
	}

	var nilIdentity *Identity
	if nilIdentity.IsActive() {
		t.Fatalf("a nil identity is never active")
	}
}
