package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/infra/security"
)

// Exercises the whole account lifecycle over shared in-memory stores:
// register, redeem the verification token, log in, change the password, and
// confirm the pre-change session token no longer validates.
func TestAccountLifecycle_RegisterVerifyLoginChangePassword(t *testing.T) {
	identities := newMemIdentities()
	credentials := newMemCredentials()
	attempts := newMemAttempts()
	sessions := newMemSessions()
	verifications := newMemVerifications()
	rateLimits := newMemRateLimits()
	notifier := &captureNotifier{}
	events := &publishedEvents{}
	policies := testPolicies()
	validator := security.DefaultPasswordValidator(security.NewBlacklist(nil))

	lockouts := NewLockoutService(identities, credentials, attempts, sessions, policies, events, nil)
	mfa := NewMFAService(identities, credentials, newMemOTPStore(), policies, notifier, events, &stubSecondFactor{}, nil)
	sessionSvc := NewSessionService(identities, sessions, testSigner(t), policies, events, NewKeyedMutex(), nil)
	auth := NewAuthService(identities, credentials, lockouts, sessionSvc, mfa, nil)
	registration := NewRegistrationService(identities, credentials, verifications, policies, validator, notifier, events, nil)
	passwords := NewPasswordService(identities, credentials, lockouts, sessionSvc, mfa, rateLimits, policies, validator, notifier, events, NewKeyedMutex(), nil)

	ctx := context.Background()

	registered, err := registration.Register(ctx, RegisterInput{
		Name:     "Carla Nunes",
		Email:    "carla.nunes@example.com",
		Password: registrationPassword,
		Role:     domain.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	// The account cannot log in before redeeming the verification token.
	if _, err := auth.Login(ctx, LoginInput{Email: registered.Identity.Email, Password: registrationPassword}); !errors.Is(err, ErrVerificationRequired) {
		t.Fatalf("pre-verification login: expected ErrVerificationRequired, got %v", err)
	}

	verified, err := registration.VerifyEmail(ctx, notifier.lastVar("token"))
	if err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}
	if verified.Status != domain.StatusActive {
		t.Fatalf("expected active status after verification, got %s", verified.Status)
	}

	login, err := auth.Login(ctx, LoginInput{Email: registered.Identity.Email, Password: registrationPassword})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if login.Outcome != OutcomeAuthenticated || login.Token == "" {
		t.Fatalf("expected an authenticated session, got outcome %s", login.Outcome)
	}

	if _, err := sessionSvc.Validate(ctx, login.Token); err != nil {
		t.Fatalf("fresh token failed validation: %v", err)
	}

	if _, err := passwords.Change(ctx, ChangeInput{
		IdentityID:      verified.ID,
		CurrentPassword: registrationPassword,
		NewPassword:     nextStrongPassword,
	}); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}

	if _, err := sessionSvc.Validate(ctx, login.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("pre-change token: expected ErrSessionRevoked, got %v", err)
	}

	if _, err := auth.Login(ctx, LoginInput{Email: registered.Identity.Email, Password: registrationPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: expected ErrInvalidCredentials, got %v", err)
	}

	relogin, err := auth.Login(ctx, LoginInput{Email: registered.Identity.Email, Password: nextStrongPassword})
	if err != nil {
		t.Fatalf("login with new password returned error: %v", err)
	}
	if relogin.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected authenticated outcome with the new password, got %s", relogin.Outcome)
	}
}
