package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/repository"
)

// In-memory fakes for the repository ports. They keep real state so
// multi-step flows (issue then verify, count then create) behave like the
// backing stores, with injectable errors for the failure paths.

type memIdentities struct {
	mu              sync.Mutex
	byID            map[string]*domain.Identity
	getByEmailErr   error
	updateStatusErr error

	statusCalls    int
	lastLoginCalls int
	deleteCalls    int
}

func newMemIdentities(seed ...domain.Identity) *memIdentities {
	m := &memIdentities{byID: make(map[string]*domain.Identity)}
	for i := range seed {
		identity := seed[i]
		m.byID[identity.ID] = &identity
	}
	return m
}

func (m *memIdentities) Create(_ context.Context, identity domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == identity.Email {
			return repository.ErrConflict
		}
	}
	m.byID[identity.ID] = &identity
	return nil
}

func (m *memIdentities) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *identity
	return &copied, nil
}

func (m *memIdentities) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getByEmailErr != nil {
		return nil, m.getByEmailErr
	}
	for _, identity := range m.byID {
		if identity.Email == email {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memIdentities) UpdateStatus(_ context.Context, id string, status domain.IdentityStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.Status = status
	identity.UpdatedAt = at
	return nil
}

func (m *memIdentities) UpdateProfile(_ context.Context, identity domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[identity.ID]; !ok {
		return repository.ErrNotFound
	}
	m.byID[identity.ID] = &identity
	return nil
}

func (m *memIdentities) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLoginCalls++
	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.LastLogin = &at
	return nil
}

func (m *memIdentities) List(_ context.Context, filter port.IdentityFilter) ([]domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Identity, 0, len(m.byID))
	for _, identity := range m.byID {
		if filter.Role != nil && identity.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && identity.Status != *filter.Status {
			continue
		}
		out = append(out, *identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memIdentities) ListWithLatestSession(ctx context.Context, filter port.IdentityFilter, _ time.Time) ([]domain.IdentityWithSession, error) {
	listed, err := m.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.IdentityWithSession, len(listed))
	for i, identity := range listed {
		out[i] = domain.IdentityWithSession{Identity: identity}
	}
	return out, nil
}

func (m *memIdentities) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memCredentials struct {
	mu         sync.Mutex
	byIdentity map[string]*domain.Credential
	history    map[string][]domain.PasswordHistoryEntry

	requireChangeCalls int
	trimCalls          int
	trimKeep           int
	updatePasswordErr  error
}

func newMemCredentials(seed ...domain.Credential) *memCredentials {
	m := &memCredentials{
		byIdentity: make(map[string]*domain.Credential),
		history:    make(map[string][]domain.PasswordHistoryEntry),
	}
	for i := range seed {
		credential := seed[i]
		m.byIdentity[credential.IdentityID] = &credential
	}
	return m
}

func (m *memCredentials) Create(_ context.Context, credential domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byIdentity[credential.IdentityID]; ok {
		return repository.ErrConflict
	}
	m.byIdentity[credential.IdentityID] = &credential
	return nil
}

func (m *memCredentials) GetByIdentity(_ context.Context, identityID string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credential, ok := m.byIdentity[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *credential
	return &copied, nil
}

func (m *memCredentials) UpdatePassword(_ context.Context, identityID, passwordHash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	credential, ok := m.byIdentity[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	credential.PasswordHash = passwordHash
	credential.LastPasswordChange = changedAt
	credential.UpdatedAt = changedAt
	return nil
}

func (m *memCredentials) SetRequireChange(_ context.Context, identityID string, require bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requireChangeCalls++
	credential, ok := m.byIdentity[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	credential.RequireChange = require
	credential.UpdatedAt = at
	return nil
}

func (m *memCredentials) ListHistory(_ context.Context, identityID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[identityID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]domain.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *memCredentials) AddHistory(_ context.Context, entry domain.PasswordHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identityID := ""
	for id, credential := range m.byIdentity {
		if credential.ID == entry.CredentialID {
			identityID = id
			break
		}
	}
	m.history[identityID] = append(m.history[identityID], entry)
	return nil
}

func (m *memCredentials) TrimHistory(_ context.Context, identityID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimCalls++
	m.trimKeep = keep
	entries := m.history[identityID]
	if keep > 0 && len(entries) > keep {
		m.history[identityID] = entries[len(entries)-keep:]
	}
	return nil
}

func (m *memCredentials) DeleteByIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byIdentity, identityID)
	delete(m.history, identityID)
	return nil
}

type memAttempts struct {
	mu           sync.Mutex
	counts       map[string]int
	lockouts     []domain.LockoutRecord
	resolveCalls int
	deleteCalls  int
	incrementErr error
}

func newMemAttempts() *memAttempts {
	return &memAttempts{counts: make(map[string]int)}
}

func (m *memAttempts) IncrementUnresolved(_ context.Context, identityID string, _ *string, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return 0, m.incrementErr
	}
	m.counts[identityID]++
	return m.counts[identityID], nil
}

func (m *memAttempts) GetUnresolved(_ context.Context, identityID string) (*domain.FailedAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, ok := m.counts[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.FailedAttempt{IdentityID: identityID, Attempts: count}, nil
}

func (m *memAttempts) ResolveAll(_ context.Context, identityID string, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveCalls++
	if _, ok := m.counts[identityID]; !ok {
		return 0, nil
	}
	delete(m.counts, identityID)
	return 1, nil
}

func (m *memAttempts) RecordLockout(_ context.Context, record domain.LockoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockouts = append(m.lockouts, record)
	return nil
}

func (m *memAttempts) CountLockoutsSince(_ context.Context, identityID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, record := range m.lockouts {
		if record.IdentityID == identityID && !record.LockedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memAttempts) DeleteByIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.counts, identityID)
	return nil
}

type memSessions struct {
	mu          sync.Mutex
	byID        map[string]*domain.Session
	createErr   error
	deleteCalls int
}

func newMemSessions(seed ...domain.Session) *memSessions {
	m := &memSessions{byID: make(map[string]*domain.Session)}
	for i := range seed {
		session := seed[i]
		m.byID[session.ID] = &session
	}
	return m
}

func (m *memSessions) Create(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.byID[session.ID] = &session
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *memSessions) CountActiveByIdentity(_ context.Context, identityID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, session := range m.byID {
		if session.IdentityID == identityID && session.IsActive(at) {
			count++
		}
	}
	return count, nil
}

func (m *memSessions) ListByIdentity(_ context.Context, identityID string) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, session := range m.byID {
		if session.IdentityID == identityID {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memSessions) ListActiveByIdentity(_ context.Context, identityID string, at time.Time) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, session := range m.byID {
		if session.IdentityID == identityID && session.IsActive(at) {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memSessions) ExtendExpiry(_ context.Context, id string, expiresAt, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byID[id]
	if !ok || session.RevokedAt != nil {
		return repository.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	session.LastActivity = at
	return nil
}

func (m *memSessions) Touch(_ context.Context, id string, at time.Time, ip *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	session.Touch(at, ip)
	return nil
}

func (m *memSessions) Revoke(_ context.Context, id, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	session.Revoke(at, reason)
	return nil
}

func (m *memSessions) RevokeAllForIdentity(_ context.Context, identityID, reason string, at time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var revoked []string
	for _, session := range m.byID {
		if session.IdentityID == identityID && session.IsActive(at) {
			session.Revoke(at, reason)
			revoked = append(revoked, session.ID)
		}
	}
	return revoked, nil
}

func (m *memSessions) DeleteByIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	for id, session := range m.byID {
		if session.IdentityID == identityID {
			delete(m.byID, id)
		}
	}
	return nil
}

type memVerifications struct {
	mu          sync.Mutex
	byID        map[string]*domain.VerificationToken
	createErr   error
	deleteCalls int
}

func newMemVerifications() *memVerifications {
	return &memVerifications{byID: make(map[string]*domain.VerificationToken)}
}

func (m *memVerifications) Create(_ context.Context, token domain.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.byID[token.ID] = &token
	return nil
}

func (m *memVerifications) GetByHash(_ context.Context, tokenHash string) (*domain.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.byID {
		if token.TokenHash == tokenHash {
			copied := *token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memVerifications) Consume(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byID[id]
	if !ok || token.UsedAt != nil {
		return repository.ErrNotFound
	}
	usedAt := at
	token.UsedAt = &usedAt
	return nil
}

func (m *memVerifications) DeleteByIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	for id, token := range m.byID {
		if token.IdentityID == identityID {
			delete(m.byID, id)
		}
	}
	return nil
}

type memOTPStore struct {
	mu         sync.Mutex
	challenges map[string]*domain.OTPChallenge
	storeCalls int
}

func newMemOTPStore() *memOTPStore {
	return &memOTPStore{challenges: make(map[string]*domain.OTPChallenge)}
}

func otpKey(purpose, identityID string) string { return purpose + ":" + identityID }

func (m *memOTPStore) Store(_ context.Context, purpose, identityID, codeHash string, ttl time.Duration, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCalls++
	m.challenges[otpKey(purpose, identityID)] = &domain.OTPChallenge{
		Purpose:    purpose,
		IdentityID: identityID,
		CodeHash:   codeHash,
		CreatedAt:  at,
		ExpiresAt:  at.Add(ttl),
	}
	return nil
}

func (m *memOTPStore) Fetch(_ context.Context, purpose, identityID string) (*domain.OTPChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[otpKey(purpose, identityID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *challenge
	return &copied, nil
}

func (m *memOTPStore) IncrementAttempts(_ context.Context, purpose, identityID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[otpKey(purpose, identityID)]
	if !ok {
		return 0, repository.ErrNotFound
	}
	challenge.Attempts++
	return challenge.Attempts, nil
}

func (m *memOTPStore) Delete(_ context.Context, purpose, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := otpKey(purpose, identityID)
	if _, ok := m.challenges[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.challenges, key)
	return nil
}

type memRateLimits struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newMemRateLimits() *memRateLimits {
	return &memRateLimits{attempts: make(map[string][]time.Time)}
}

func (m *memRateLimits) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *memRateLimits) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold := reference.Add(-window)
	count := 0
	for _, at := range m.attempts[identifier] {
		if at.After(threshold) {
			count++
		}
	}
	return count, nil
}

func (m *memRateLimits) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold := reference.Add(-window)
	var kept []time.Time
	for _, at := range m.attempts[identifier] {
		if at.After(threshold) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *memRateLimits) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range m.attempts[identifier] {
		if at.After(threshold) && (!found || at.Before(oldest)) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

type publishedEvents struct {
	mu         sync.Mutex
	registered []domain.IdentityRegisteredEvent
	verified   []domain.IdentityVerifiedEvent
	locked     []domain.IdentityLockedEvent
	passwords  []domain.PasswordChangedEvent
	sessions   []domain.SessionRevokedEvent
	otps       []domain.OTPIssuedEvent
}

func (p *publishedEvents) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

func (p *publishedEvents) PublishIdentityVerified(_ context.Context, event domain.IdentityVerifiedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified = append(p.verified, event)
	return nil
}

func (p *publishedEvents) PublishIdentityLocked(_ context.Context, event domain.IdentityLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, event)
	return nil
}

func (p *publishedEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwords = append(p.passwords, event)
	return nil
}

func (p *publishedEvents) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, event)
	return nil
}

func (p *publishedEvents) PublishOTPIssued(_ context.Context, event domain.OTPIssuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.otps = append(p.otps, event)
	return nil
}

type notifierSend struct {
	recipient string
	template  port.NotificationTemplate
	vars      map[string]string
}

type captureNotifier struct {
	mu    sync.Mutex
	sends []notifierSend
	err   error
}

func (n *captureNotifier) Send(_ context.Context, recipient string, template port.NotificationTemplate, vars map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	n.sends = append(n.sends, notifierSend{recipient: recipient, template: template, vars: copied})
	return nil
}

func (n *captureNotifier) lastVar(key string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sends) == 0 {
		return ""
	}
	return n.sends[len(n.sends)-1].vars[key]
}

type stubSecondFactor struct {
	ok    bool
	calls int
}

func (s *stubSecondFactor) Verify(_, _ string, _ time.Time) bool {
	s.calls++
	return s.ok
}

func testPolicies() *PolicyService {
	return NewPolicyService(nil, domain.DefaultPolicyConfig(), nil)
}

func testSigner(t *testing.T) *security.TokenSigner {
	t.Helper()
	signer, err := security.NewTokenSigner("unit-test-secret", "identity-service")
	if err != nil {
		t.Fatalf("NewTokenSigner returned error: %v", err)
	}
	return signer
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	return hash
}

func strPtr(s string) *string { return &s }
