package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

// PolicyRepository persists the singleton policy configuration row. Durations
// are stored as whole seconds so the record stays readable from psql.
type PolicyRepository struct {
	exec pgExecutor
}

func NewPolicyRepository(exec pgExecutor) *PolicyRepository {
	return &PolicyRepository{exec: exec}
}

// Get returns the stored policy or repository.ErrNotFound when the row was
// never written.
func (r *PolicyRepository) Get(ctx context.Context) (*domain.PolicyConfig, error) {
	const stmt = `
		SELECT token_lifetime_secs, session_lifetime_secs, renew_threshold_secs,
		       verification_lifetime_secs, otp_lifetime_secs,
		       max_failed_attempts, otp_max_attempts,
		       lockout_window_days, max_lockouts_in_window,
		       password_history_limit, updated_at
		FROM auth.policy_config
		WHERE id = 1`

	var (
		cfg              domain.PolicyConfig
		tokenSecs        int64
		sessionSecs      int64
		renewSecs        int64
		verificationSecs int64
		otpSecs          int64
	)

	err := r.exec.QueryRow(ctx, stmt).Scan(
		&tokenSecs,
		&sessionSecs,
		&renewSecs,
		&verificationSecs,
		&otpSecs,
		&cfg.MaxFailedAttempts,
		&cfg.OTPMaxAttempts,
		&cfg.LockoutWindowDays,
		&cfg.MaxLockoutsInWindow,
		&cfg.PasswordHistoryLimit,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan policy config: %w", err)
	}

	cfg.TokenLifetime = time.Duration(tokenSecs) * time.Second
	cfg.SessionLifetime = time.Duration(sessionSecs) * time.Second
	cfg.RenewThreshold = time.Duration(renewSecs) * time.Second
	cfg.VerificationLifetime = time.Duration(verificationSecs) * time.Second
	cfg.OTPLifetime = time.Duration(otpSecs) * time.Second

	return &cfg, nil
}

// Upsert writes the singleton policy row.
func (r *PolicyRepository) Upsert(ctx context.Context, cfg domain.PolicyConfig) error {
	const stmt = `
		INSERT INTO auth.policy_config (
			id, token_lifetime_secs, session_lifetime_secs, renew_threshold_secs,
			verification_lifetime_secs, otp_lifetime_secs,
			max_failed_attempts, otp_max_attempts,
			lockout_window_days, max_lockouts_in_window,
			password_history_limit, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			token_lifetime_secs = EXCLUDED.token_lifetime_secs,
			session_lifetime_secs = EXCLUDED.session_lifetime_secs,
			renew_threshold_secs = EXCLUDED.renew_threshold_secs,
			verification_lifetime_secs = EXCLUDED.verification_lifetime_secs,
			otp_lifetime_secs = EXCLUDED.otp_lifetime_secs,
			max_failed_attempts = EXCLUDED.max_failed_attempts,
			otp_max_attempts = EXCLUDED.otp_max_attempts,
			lockout_window_days = EXCLUDED.lockout_window_days,
			max_lockouts_in_window = EXCLUDED.max_lockouts_in_window,
			password_history_limit = EXCLUDED.password_history_limit,
			updated_at = EXCLUDED.updated_at`

	_, err := r.exec.Exec(ctx, stmt,
		int64(cfg.TokenLifetime/time.Second),
		int64(cfg.SessionLifetime/time.Second),
		int64(cfg.RenewThreshold/time.Second),
		int64(cfg.VerificationLifetime/time.Second),
		int64(cfg.OTPLifetime/time.Second),
		cfg.MaxFailedAttempts,
		cfg.OTPMaxAttempts,
		cfg.LockoutWindowDays,
		cfg.MaxLockoutsInWindow,
		cfg.PasswordHistoryLimit,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert policy config: %w", err)
	}
	return nil
}

var _ port.PolicyRepository = (*PolicyRepository)(nil)
