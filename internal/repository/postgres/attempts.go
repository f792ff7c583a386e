package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

// AttemptRepository implements port.AttemptRepository using PostgreSQL.
type AttemptRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAttemptRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewAttemptRepository(exec pgExecutor) *AttemptRepository {
	return &AttemptRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// IncrementUnresolved bumps the open counter in a single statement. The
// partial unique index on (identity_id) WHERE resolved_at IS NULL turns the
// insert into an atomic increment when a counter is already open, so two
// racing failures always observe distinct totals.
func (r *AttemptRepository) IncrementUnresolved(ctx context.Context, identityID string, ip *string, at time.Time) (int, error) {
	const stmt = `
		INSERT INTO auth.failed_attempts (id, identity_id, ip, attempts, first_at, last_at)
		VALUES (gen_random_uuid(), $1, $2, 1, $3, $3)
		ON CONFLICT (identity_id) WHERE resolved_at IS NULL
		DO UPDATE SET
			attempts = auth.failed_attempts.attempts + 1,
			last_at  = EXCLUDED.last_at,
			ip       = COALESCE(EXCLUDED.ip, auth.failed_attempts.ip)
		RETURNING attempts`

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, identityID, ip, at).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	return attempts, nil
}

// GetUnresolved returns the open counter for the identity, if any.
func (r *AttemptRepository) GetUnresolved(ctx context.Context, identityID string) (*domain.FailedAttempt, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"identity_id",
		"ip",
		"attempts",
		"first_at",
		"last_at",
		"resolved_at",
	).
		From("auth.failed_attempts").
		Where(squirrel.Eq{"identity_id": identityID, "resolved_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select attempts sql: %w", err)
	}

	var (
		attempt    domain.FailedAttempt
		ip         sql.NullString
		resolvedAt *time.Time
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&attempt.ID,
		&attempt.IdentityID,
		&ip,
		&attempt.Attempts,
		&attempt.FirstAt,
		&attempt.LastAt,
		&resolvedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan failed attempt: %w", err)
	}

	if ip.Valid {
		attempt.IP = &ip.String
	}
	attempt.ResolvedAt = resolvedAt
	return &attempt, nil
}

// ResolveAll closes every open counter for the identity.
func (r *AttemptRepository) ResolveAll(ctx context.Context, identityID string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update("auth.failed_attempts").
		Set("resolved_at", at).
		Where(squirrel.Eq{"identity_id": identityID, "resolved_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build resolve attempts sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("resolve failed attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecordLockout inserts one lockout occurrence.
func (r *AttemptRepository) RecordLockout(ctx context.Context, record domain.LockoutRecord) error {
	stmt, args, err := r.builder.Insert("auth.lockouts").
		Columns("id", "identity_id", "attempts", "locked_at").
		Values(record.ID, record.IdentityID, record.Attempts, record.LockedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert lockout sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert lockout: %w", err)
	}
	return nil
}

// CountLockoutsSince counts lockout occurrences inside the window.
func (r *AttemptRepository) CountLockoutsSince(ctx context.Context, identityID string, since time.Time) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("auth.lockouts").
		Where(squirrel.Eq{"identity_id": identityID}).
		Where(squirrel.GtOrEq{"locked_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count lockouts sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count lockouts: %w", err)
	}
	return count, nil
}

// DeleteByIdentity removes counters and lockout history for the identity.
func (r *AttemptRepository) DeleteByIdentity(ctx context.Context, identityID string) error {
	for _, table := range []string{"auth.failed_attempts", "auth.lockouts"} {
		stmt, args, err := r.builder.Delete(table).
			Where(squirrel.Eq{"identity_id": identityID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete sql for %s: %w", table, err)
		}
		if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

var _ port.AttemptRepository = (*AttemptRepository)(nil)
