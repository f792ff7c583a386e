package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/infra/security"
)

const (
	currentStrongPassword = "Troca-Antiga#45"
	nextStrongPassword    = "Renovada!Chave-88"
)

type passwordFixture struct {
	svc         *PasswordService
	identities  *memIdentities
	credentials *memCredentials
	attempts    *memAttempts
	sessions    *memSessions
	rateLimits  *memRateLimits
	notifier    *captureNotifier
	events      *publishedEvents
}

func newPasswordFixture(t *testing.T, identity domain.Identity, credential domain.Credential) *passwordFixture {
	t.Helper()
	identities := newMemIdentities(identity)
	credentials := newMemCredentials(credential)
	attempts := newMemAttempts()
	sessions := newMemSessions()
	rateLimits := newMemRateLimits()
	notifier := &captureNotifier{}
	events := &publishedEvents{}
	policies := testPolicies()

	lockouts := NewLockoutService(identities, credentials, attempts, sessions, policies, events, nil)
	mfa := NewMFAService(identities, credentials, newMemOTPStore(), policies, notifier, events, &stubSecondFactor{}, nil)
	sessionSvc := NewSessionService(identities, sessions, testSigner(t), policies, events, NewKeyedMutex(), nil)
	validator := security.DefaultPasswordValidator(security.NewBlacklist(nil))

	svc := NewPasswordService(identities, credentials, lockouts, sessionSvc, mfa, rateLimits, policies, validator, notifier, events, NewKeyedMutex(), nil)

	return &passwordFixture{
		svc:         svc,
		identities:  identities,
		credentials: credentials,
		attempts:    attempts,
		sessions:    sessions,
		rateLimits:  rateLimits,
		notifier:    notifier,
		events:      events,
	}
}

func TestPasswordService_Change_WrongCurrentPassword(t *testing.T) {
	identity := activeCustomer("pw-1")
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	_, err := fx.svc.Change(context.Background(), ChangeInput{
		IdentityID:      identity.ID,
		CurrentPassword: "not-it",
		NewPassword:     nextStrongPassword,
	})
	if !errors.Is(err, ErrCurrentPasswordInvalid) {
		t.Fatalf("expected ErrCurrentPasswordInvalid, got %v", err)
	}
}

func TestPasswordService_Change_Success(t *testing.T) {
	identity := activeCustomer("pw-2")
	priorHash := mustHash(t, currentStrongPassword)
	credential := customerCredential(identity.ID, priorHash)
	credential.RequireChange = true
	fx := newPasswordFixture(t, identity, credential)

	fx.sessions.Create(context.Background(), domain.Session{
		ID:         "pw-sess-1",
		IdentityID: identity.ID,
		Role:       identity.Role,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	})
	fx.attempts.IncrementUnresolved(context.Background(), identity.ID, nil, time.Now().UTC())

	result, err := fx.svc.Change(context.Background(), ChangeInput{
		IdentityID:      identity.ID,
		CurrentPassword: currentStrongPassword,
		NewPassword:     nextStrongPassword,
	})
	if err != nil {
		t.Fatalf("Change returned error: %v", err)
	}

	if result.SessionsRevoked != 1 {
		t.Fatalf("expected 1 revoked session, got %d", result.SessionsRevoked)
	}
	if result.Reactivated {
		t.Fatalf("an active identity is never reported as reactivated")
	}

	stored, err := fx.credentials.GetByIdentity(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("GetByIdentity returned error: %v", err)
	}
	if match, _ := security.VerifyPassword(nextStrongPassword, stored.PasswordHash); !match {
		t.Fatalf("new password does not verify against the stored hash")
	}
	if stored.RequireChange {
		t.Fatalf("change requirement must be cleared")
	}

	history, err := fx.credentials.ListHistory(context.Background(), identity.ID, 5)
	if err != nil {
		t.Fatalf("ListHistory returned error: %v", err)
	}
	if len(history) != 1 || history[0].PasswordHash != priorHash {
		t.Fatalf("expected the prior hash appended to history")
	}

	if _, err := fx.attempts.GetUnresolved(context.Background(), identity.ID); err == nil {
		t.Fatalf("expected the failure counter cleared")
	}
	if len(fx.events.passwords) != 1 {
		t.Fatalf("expected one password changed event, got %d", len(fx.events.passwords))
	}
	if len(fx.notifier.sends) != 1 {
		t.Fatalf("expected one change notice, got %d", len(fx.notifier.sends))
	}
}

func TestPasswordService_Change_RejectsCurrentReuse(t *testing.T) {
	identity := activeCustomer("pw-3")
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	_, err := fx.svc.Change(context.Background(), ChangeInput{
		IdentityID:      identity.ID,
		CurrentPassword: currentStrongPassword,
		NewPassword:     currentStrongPassword,
	})
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
}

func TestPasswordService_Change_RejectsHistoryReuse(t *testing.T) {
	identity := activeCustomer("pw-4")
	credential := customerCredential(identity.ID, mustHash(t, currentStrongPassword))
	fx := newPasswordFixture(t, identity, credential)

	fx.credentials.AddHistory(context.Background(), domain.PasswordHistoryEntry{
		ID:           "hist-1",
		CredentialID: credential.ID,
		PasswordHash: mustHash(t, nextStrongPassword),
		SetAt:        time.Now().UTC().Add(-time.Hour),
	})

	_, err := fx.svc.Change(context.Background(), ChangeInput{
		IdentityID:      identity.ID,
		CurrentPassword: currentStrongPassword,
		NewPassword:     nextStrongPassword,
	})
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused for a historical password, got %v", err)
	}
}

func TestPasswordService_Change_RejectsWeakPassword(t *testing.T) {
	identity := activeCustomer("pw-5")
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	_, err := fx.svc.Change(context.Background(), ChangeInput{
		IdentityID:      identity.ID,
		CurrentPassword: currentStrongPassword,
		NewPassword:     "password123",
	})

	var violation *security.PasswordValidationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected a password validation error, got %v", err)
	}
}

func TestPasswordService_RequestRecovery_UnknownEmail(t *testing.T) {
	identity := activeCustomer("pw-6")
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	if _, err := fx.svc.RequestRecovery(context.Background(), "nobody@example.com"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestPasswordService_RequestRecovery_RateLimited(t *testing.T) {
	identity := activeCustomer("pw-7")
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	for i := 0; i < 3; i++ {
		if _, err := fx.svc.RequestRecovery(context.Background(), identity.Email); err != nil {
			t.Fatalf("request %d returned error: %v", i+1, err)
		}
	}

	if _, err := fx.svc.RequestRecovery(context.Background(), identity.Email); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("expected ErrRecoveryRateLimited on the fourth request, got %v", err)
	}
}

func TestPasswordService_RequestRecovery_PermanentlyBlocked(t *testing.T) {
	identity := activeCustomer("pw-8")
	identity.Status = domain.StatusPermanentlyBlocked
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	if _, err := fx.svc.RequestRecovery(context.Background(), identity.Email); !errors.Is(err, ErrIdentityPermanentlyBlocked) {
		t.Fatalf("expected ErrIdentityPermanentlyBlocked, got %v", err)
	}
}

func TestPasswordService_Reset_WrongCode(t *testing.T) {
	identity := activeCustomer("pw-9")
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	if _, err := fx.svc.RequestRecovery(context.Background(), identity.Email); err != nil {
		t.Fatalf("RequestRecovery returned error: %v", err)
	}

	_, err := fx.svc.Reset(context.Background(), ResetInput{
		Email:       identity.Email,
		Code:        "000000",
		NewPassword: nextStrongPassword,
	})
	if !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}
}

func TestPasswordService_Reset_Success(t *testing.T) {
	identity := activeCustomer("pw-10")
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	if _, err := fx.svc.RequestRecovery(context.Background(), identity.Email); err != nil {
		t.Fatalf("RequestRecovery returned error: %v", err)
	}
	code := fx.notifier.lastVar("code")

	result, err := fx.svc.Reset(context.Background(), ResetInput{
		Email:       identity.Email,
		Code:        code,
		NewPassword: nextStrongPassword,
	})
	if err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if result.Reactivated {
		t.Fatalf("an active identity is never reported as reactivated")
	}

	stored, _ := fx.credentials.GetByIdentity(context.Background(), identity.ID)
	if match, _ := security.VerifyPassword(nextStrongPassword, stored.PasswordHash); !match {
		t.Fatalf("new password does not verify after reset")
	}

	// The code is single use.
	if _, err := fx.svc.Reset(context.Background(), ResetInput{
		Email:       identity.Email,
		Code:        code,
		NewPassword: "Outra!Troca-77",
	}); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid on code replay, got %v", err)
	}
}

func TestPasswordService_Reset_ReactivatesBlockedIdentity(t *testing.T) {
	identity := activeCustomer("pw-11")
	identity.Status = domain.StatusBlocked
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	if _, err := fx.svc.RequestRecovery(context.Background(), identity.Email); err != nil {
		t.Fatalf("RequestRecovery returned error: %v", err)
	}
	code := fx.notifier.lastVar("code")

	result, err := fx.svc.Reset(context.Background(), ResetInput{
		Email:       identity.Email,
		Code:        code,
		NewPassword: nextStrongPassword,
	})
	if err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if !result.Reactivated {
		t.Fatalf("expected the blocked identity reactivated")
	}

	stored, _ := fx.identities.GetByID(context.Background(), identity.ID)
	if stored.Status != domain.StatusActive {
		t.Fatalf("expected status active, got %s", stored.Status)
	}
}

func TestPasswordService_Reset_NeverLiftsPermanentBlock(t *testing.T) {
	identity := activeCustomer("pw-12")
	identity.Status = domain.StatusPermanentlyBlocked
	fx := newPasswordFixture(t, identity, customerCredential(identity.ID, mustHash(t, currentStrongPassword)))

	_, err := fx.svc.Reset(context.Background(), ResetInput{
		Email:       identity.Email,
		Code:        "123456",
		NewPassword: nextStrongPassword,
	})
	if !errors.Is(err, ErrIdentityPermanentlyBlocked) {
		t.Fatalf("expected ErrIdentityPermanentlyBlocked, got %v", err)
	}
}
