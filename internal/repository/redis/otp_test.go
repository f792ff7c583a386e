package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/filograficos/identity-service/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestOTPRepository_StoreAndFetch(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOTPRepository(client, "auth:otp")

	ctx := context.Background()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute

	if err := repo.Store(ctx, "login", "id-1", "hash-1", ttl, at); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	challenge, err := repo.Fetch(ctx, "login", "id-1")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if challenge.CodeHash != "hash-1" {
		t.Fatalf("CodeHash = %s, want hash-1", challenge.CodeHash)
	}
	if challenge.Attempts != 0 {
		t.Fatalf("Attempts = %d, want 0", challenge.Attempts)
	}
	if !challenge.CreatedAt.Equal(at) {
		t.Fatalf("CreatedAt = %v, want %v", challenge.CreatedAt, at)
	}
	if !challenge.ExpiresAt.Equal(at.Add(ttl)) {
		t.Fatalf("ExpiresAt = %v, want %v", challenge.ExpiresAt, at.Add(ttl))
	}

	remaining := server.TTL("auth:otp:login:id-1")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestOTPRepository_StoreReplacesAndResetsAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "auth:otp")

	ctx := context.Background()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	if err := repo.Store(ctx, "login", "id-1", "hash-1", time.Minute, at); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if _, err := repo.IncrementAttempts(ctx, "login", "id-1"); err != nil {
		t.Fatalf("IncrementAttempts returned error: %v", err)
	}

	if err := repo.Store(ctx, "login", "id-1", "hash-2", time.Minute, at.Add(time.Minute)); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	challenge, err := repo.Fetch(ctx, "login", "id-1")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if challenge.CodeHash != "hash-2" {
		t.Fatalf("expected the replacement hash, got %s", challenge.CodeHash)
	}
	if challenge.Attempts != 0 {
		t.Fatalf("expected the attempt counter reset, got %d", challenge.Attempts)
	}
}

func TestOTPRepository_PurposesAreIsolated(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "auth:otp")

	ctx := context.Background()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	if err := repo.Store(ctx, "login", "id-1", "hash-login", time.Minute, at); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if err := repo.Store(ctx, "recovery", "id-1", "hash-recovery", time.Minute, at); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	login, err := repo.Fetch(ctx, "login", "id-1")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	recovery, err := repo.Fetch(ctx, "recovery", "id-1")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if login.CodeHash == recovery.CodeHash {
		t.Fatalf("challenges for different purposes must not collide")
	}
}

func TestOTPRepository_IncrementAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "auth:otp")

	ctx := context.Background()
	if err := repo.Store(ctx, "login", "id-1", "hash-1", time.Minute, time.Now().UTC()); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementAttempts(ctx, "login", "id-1")
		if err != nil {
			t.Fatalf("IncrementAttempts returned error: %v", err)
		}
		if got != want {
			t.Fatalf("attempts = %d, want %d", got, want)
		}
	}

	if _, err := repo.IncrementAttempts(ctx, "login", "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing challenge, got %v", err)
	}
}

func TestOTPRepository_Delete(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "auth:otp")

	ctx := context.Background()
	if err := repo.Store(ctx, "login", "id-1", "hash-1", time.Minute, time.Now().UTC()); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	if err := repo.Delete(ctx, "login", "id-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.Fetch(ctx, "login", "id-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "login", "id-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestOTPRepository_ExpiryEvictsChallenge(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOTPRepository(client, "auth:otp")

	ctx := context.Background()
	if err := repo.Store(ctx, "login", "id-1", "hash-1", time.Minute, time.Now().UTC()); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := repo.Fetch(ctx, "login", "id-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after the ttl elapsed, got %v", err)
	}
}

func TestOTPRepository_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "auth:otp")

	ctx := context.Background()
	at := time.Now().UTC()

	if err := repo.Store(ctx, "", "id-1", "hash", time.Minute, at); err == nil {
		t.Fatalf("expected error for empty purpose")
	}
	if err := repo.Store(ctx, "login", "", "hash", time.Minute, at); err == nil {
		t.Fatalf("expected error for empty identity id")
	}
	if err := repo.Store(ctx, "login", "id-1", "", time.Minute, at); err == nil {
		t.Fatalf("expected error for empty code hash")
	}
	if err := repo.Store(ctx, "login", "id-1", "hash", 0, at); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
	if _, err := repo.Fetch(ctx, "", "id-1"); err == nil {
		t.Fatalf("expected error for empty purpose in Fetch")
	}
}
