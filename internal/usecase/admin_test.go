package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
)

type adminFixture struct {
	svc           *AdminService
	identities    *memIdentities
	credentials   *memCredentials
	attempts      *memAttempts
	verifications *memVerifications
	sessions      *memSessions
	events        *publishedEvents
}

func newAdminFixture(t *testing.T, seed ...domain.Identity) *adminFixture {
	t.Helper()
	identities := newMemIdentities(seed...)
	credentials := newMemCredentials()
	for _, identity := range seed {
		credentials.Create(context.Background(), customerCredential(identity.ID, "x"))
	}
	attempts := newMemAttempts()
	verifications := newMemVerifications()
	sessions := newMemSessions()
	events := &publishedEvents{}
	policies := testPolicies()

	lockouts := NewLockoutService(identities, credentials, attempts, sessions, policies, events, nil)
	sessionSvc := NewSessionService(identities, sessions, testSigner(t), policies, events, NewKeyedMutex(), nil)
	svc := NewAdminService(identities, credentials, attempts, verifications, sessions, lockouts, sessionSvc, nil)

	return &adminFixture{
		svc:           svc,
		identities:    identities,
		credentials:   credentials,
		attempts:      attempts,
		verifications: verifications,
		sessions:      sessions,
		events:        events,
	}
}

func TestAdminService_Unlock_BlockedIdentity(t *testing.T) {
	target := activeCustomer("adm-1")
	target.Status = domain.StatusBlocked
	fx := newAdminFixture(t, target)
	fx.attempts.IncrementUnresolved(context.Background(), target.ID, nil, time.Now().UTC())

	if err := fx.svc.Unlock(context.Background(), target.ID, "admin-1"); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}

	stored, _ := fx.identities.GetByID(context.Background(), target.ID)
	if stored.Status != domain.StatusActive {
		t.Fatalf("expected status active, got %s", stored.Status)
	}
	if _, err := fx.attempts.GetUnresolved(context.Background(), target.ID); err == nil {
		t.Fatalf("expected failure counters cleared")
	}

	credential, _ := fx.credentials.GetByIdentity(context.Background(), target.ID)
	if credential.RequireChange {
		t.Fatalf("expected change requirement cleared on unlock")
	}
}

func TestAdminService_Unlock_ReversesPermanentBlock(t *testing.T) {
	target := activeCustomer("adm-2")
	target.Status = domain.StatusPermanentlyBlocked
	fx := newAdminFixture(t, target)

	if err := fx.svc.Unlock(context.Background(), target.ID, "admin-1"); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}

	stored, _ := fx.identities.GetByID(context.Background(), target.ID)
	if stored.Status != domain.StatusActive {
		t.Fatalf("expected the permanent block lifted, got %s", stored.Status)
	}
}

func TestAdminService_Unlock_RejectsUnblockedTarget(t *testing.T) {
	target := activeCustomer("adm-3")
	fx := newAdminFixture(t, target)

	if err := fx.svc.Unlock(context.Background(), target.ID, "admin-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for an active target, got %v", err)
	}
}

func TestAdminService_Unlock_RejectsSelf(t *testing.T) {
	target := activeCustomer("adm-4")
	target.Status = domain.StatusBlocked
	fx := newAdminFixture(t, target)

	if err := fx.svc.Unlock(context.Background(), target.ID, target.ID); !errors.Is(err, ErrSelfAction) {
		t.Fatalf("expected ErrSelfAction, got %v", err)
	}
}

func TestAdminService_SetStatus_BlockRevokesSessions(t *testing.T) {
	target := activeCustomer("adm-5")
	fx := newAdminFixture(t, target)

	now := time.Now().UTC()
	fx.sessions.Create(context.Background(), domain.Session{
		ID:         "adm-sess-1",
		IdentityID: target.ID,
		Role:       target.Role,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	})

	if err := fx.svc.SetStatus(context.Background(), target.ID, "admin-1", ActionBlock); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}

	stored, _ := fx.identities.GetByID(context.Background(), target.ID)
	if stored.Status != domain.StatusBlocked {
		t.Fatalf("expected blocked status, got %s", stored.Status)
	}

	session, _ := fx.sessions.GetByID(context.Background(), "adm-sess-1")
	if session.RevokedAt == nil {
		t.Fatalf("expected the session revoked")
	}
	if session.RevokeReason == nil || *session.RevokeReason != "admin_block" {
		t.Fatalf("expected the administrative revocation reason recorded")
	}
}

func TestAdminService_SetStatus_SameStatusIsNoOp(t *testing.T) {
	target := activeCustomer("adm-6")
	fx := newAdminFixture(t, target)

	if err := fx.svc.SetStatus(context.Background(), target.ID, "admin-1", ActionActivate); err != nil {
		t.Fatalf("expected a no-op, got %v", err)
	}
	if fx.identities.statusCalls != 0 {
		t.Fatalf("no status write may happen for a no-op")
	}
}

func TestAdminService_SetStatus_RejectsDisallowedTransition(t *testing.T) {
	target := activeCustomer("adm-7")
	target.Status = domain.StatusPending
	fx := newAdminFixture(t, target)

	if err := fx.svc.SetStatus(context.Background(), target.ID, "admin-1", ActionSuspend); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for a pending target, got %v", err)
	}
}

func TestAdminService_SetStatus_ActivateClearsCounters(t *testing.T) {
	target := activeCustomer("adm-8")
	target.Status = domain.StatusSuspended
	fx := newAdminFixture(t, target)
	fx.attempts.IncrementUnresolved(context.Background(), target.ID, nil, time.Now().UTC())

	if err := fx.svc.SetStatus(context.Background(), target.ID, "admin-1", ActionActivate); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}

	stored, _ := fx.identities.GetByID(context.Background(), target.ID)
	if stored.Status != domain.StatusActive {
		t.Fatalf("expected active status, got %s", stored.Status)
	}
	if _, err := fx.attempts.GetUnresolved(context.Background(), target.ID); err == nil {
		t.Fatalf("expected failure counters cleared on activation")
	}
}

func TestAdminService_SetStatus_UnknownAction(t *testing.T) {
	target := activeCustomer("adm-9")
	fx := newAdminFixture(t, target)

	if err := fx.svc.SetStatus(context.Background(), target.ID, "admin-1", AdminAction("purge")); err == nil {
		t.Fatalf("expected an error for an unknown action")
	}
}

func TestAdminService_DeleteCustomer_Cascades(t *testing.T) {
	target := activeCustomer("adm-10")
	fx := newAdminFixture(t, target)

	now := time.Now().UTC()
	fx.sessions.Create(context.Background(), domain.Session{
		ID:         "adm-sess-2",
		IdentityID: target.ID,
		Role:       target.Role,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	})
	fx.attempts.IncrementUnresolved(context.Background(), target.ID, nil, now)
	fx.verifications.Create(context.Background(), domain.VerificationToken{
		ID:         "adm-ver-1",
		IdentityID: target.ID,
		TokenHash:  "hash",
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	})

	if err := fx.svc.DeleteCustomer(context.Background(), target.ID, "admin-1"); err != nil {
		t.Fatalf("DeleteCustomer returned error: %v", err)
	}

	if _, err := fx.identities.GetByID(context.Background(), target.ID); err == nil {
		t.Fatalf("expected the identity removed")
	}
	if _, err := fx.credentials.GetByIdentity(context.Background(), target.ID); err == nil {
		t.Fatalf("expected the credential removed")
	}
	if _, err := fx.sessions.GetByID(context.Background(), "adm-sess-2"); err == nil {
		t.Fatalf("expected the session removed")
	}
	if _, err := fx.attempts.GetUnresolved(context.Background(), target.ID); err == nil {
		t.Fatalf("expected attempt counters removed")
	}
}

func TestAdminService_DeleteCustomer_RejectsAdministrator(t *testing.T) {
	target := activeCustomer("adm-11")
	target.Role = domain.RoleAdmin
	fx := newAdminFixture(t, target)

	if err := fx.svc.DeleteCustomer(context.Background(), target.ID, "admin-1"); !errors.Is(err, ErrNotCustomer) {
		t.Fatalf("expected ErrNotCustomer, got %v", err)
	}
}

func TestAdminService_DeleteCustomer_UnknownTarget(t *testing.T) {
	fx := newAdminFixture(t)

	if err := fx.svc.DeleteCustomer(context.Background(), "missing", "admin-1"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestAdminService_ListIdentities_Filters(t *testing.T) {
	customer := activeCustomer("adm-12")
	admin := activeCustomer("adm-13")
	admin.Role = domain.RoleAdmin
	suspended := activeCustomer("adm-14")
	suspended.Status = domain.StatusSuspended
	fx := newAdminFixture(t, customer, admin, suspended)

	role := domain.RoleCustomer
	listed, err := fx.svc.ListIdentities(context.Background(), port.IdentityFilter{Role: &role})
	if err != nil {
		t.Fatalf("ListIdentities returned error: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(listed))
	}

	status := domain.StatusSuspended
	listed, err = fx.svc.ListIdentities(context.Background(), port.IdentityFilter{Role: &role, Status: &status})
	if err != nil {
		t.Fatalf("ListIdentities returned error: %v", err)
	}
	if len(listed) != 1 || listed[0].Identity.ID != suspended.ID {
		t.Fatalf("expected only the suspended customer")
	}
}
