package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

const (
	defaultOTPPrefix = "auth:otp"

	fieldCodeHash  = "code_hash"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// OTPRepository keeps pending one-time-code challenges in Redis hashes keyed
// by purpose and identity. Only the code hash is stored.
type OTPRepository struct {
	client *red.Client
	prefix string
}

// NewOTPRepository constructs a repository with the provided Redis client and
// key prefix.
func NewOTPRepository(client *red.Client, keyPrefix string) *OTPRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultOTPPrefix
	}

	return &OTPRepository{client: client, prefix: prefix}
}

// Store persists a challenge with the supplied TTL. A challenge already
// present under the same key is replaced and its attempt counter reset.
func (r *OTPRepository) Store(ctx context.Context, purpose, identityID, codeHash string, ttl time.Duration, at time.Time) error {
	key := r.key(purpose, identityID)
	switch {
	case key == "":
		return errors.New("purpose and identity id are required")
	case strings.TrimSpace(codeHash) == "":
		return errors.New("code hash is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	createdAt := at.UTC()
	expiresAt := createdAt.Add(ttl)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCodeHash:  codeHash,
		fieldCreatedAt: strconv.FormatInt(createdAt.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(expiresAt.Unix(), 10),
		fieldAttempts:  "0",
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store otp: %w", err)
	}
	return nil
}

// Fetch retrieves the challenge for the provided purpose and identity.
func (r *OTPRepository) Fetch(ctx context.Context, purpose, identityID string) (*domain.OTPChallenge, error) {
	key := r.key(purpose, identityID)
	if key == "" {
		return nil, errors.New("purpose and identity id are required")
	}

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	codeHash := strings.TrimSpace(values[fieldCodeHash])
	if codeHash == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.OTPChallenge{
		Purpose:    strings.TrimSpace(purpose),
		IdentityID: strings.TrimSpace(identityID),
		CodeHash:   codeHash,
		Attempts:   attempts,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// IncrementAttempts increments the attempt counter and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, purpose, identityID string) (int, error) {
	key := r.key(purpose, identityID)
	if key == "" {
		return 0, errors.New("purpose and identity id are required")
	}

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists otp: %w", err)
	}
	if exists == 0 {
		return 0, repository.ErrNotFound
	}

	count, err := r.client.HIncrBy(ctx, key, fieldAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby otp attempts: %w", err)
	}
	return int(count), nil
}

// Delete removes the challenge, enforcing single-use semantics.
func (r *OTPRepository) Delete(ctx context.Context, purpose, identityID string) error {
	key := r.key(purpose, identityID)
	if key == "" {
		return errors.New("purpose and identity id are required")
	}

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis delete otp: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *OTPRepository) key(purpose, identityID string) string {
	purpose = strings.TrimSpace(purpose)
	identityID = strings.TrimSpace(identityID)
	if purpose == "" || identityID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", r.prefix, purpose, identityID)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.OTPStore = (*OTPRepository)(nil)
