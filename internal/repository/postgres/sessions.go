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

// SessionRepository implements port.SessionRepository using PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var sessionColumns = []string{
	"id",
	"identity_id",
	"role",
	"ip",
	"client",
	"created_at",
	"last_activity",
	"expires_at",
	"revoked_at",
	"revoke_reason",
}

// Create inserts a session record.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("auth.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.IdentityID,
			session.Role,
			session.IP,
			session.Client,
			session.CreatedAt,
			session.LastActivity,
			session.ExpiresAt,
			session.RevokedAt,
			session.RevokeReason,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From("auth.sessions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// CountActiveByIdentity counts sessions that are neither revoked nor expired.
func (r *SessionRepository) CountActiveByIdentity(ctx context.Context, identityID string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("auth.sessions").
		Where(squirrel.Eq{"identity_id": identityID, "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": at}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count sessions sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

// ListByIdentity returns all sessions for the identity, newest first.
func (r *SessionRepository) ListByIdentity(ctx context.Context, identityID string) ([]domain.Session, error) {
	return r.list(ctx, squirrel.Eq{"identity_id": identityID}, nil)
}

// ListActiveByIdentity returns sessions that are neither revoked nor expired.
func (r *SessionRepository) ListActiveByIdentity(ctx context.Context, identityID string, at time.Time) ([]domain.Session, error) {
	return r.list(ctx, squirrel.Eq{"identity_id": identityID, "revoked_at": nil}, &at)
}

func (r *SessionRepository) list(ctx context.Context, where squirrel.Eq, activeAt *time.Time) ([]domain.Session, error) {
	query := r.builder.Select(sessionColumns...).
		From("auth.sessions").
		Where(where).
		OrderBy("created_at DESC")

	if activeAt != nil {
		query = query.Where(squirrel.Gt{"expires_at": *activeAt})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ExtendExpiry pushes the expiry forward during token renewal.
func (r *SessionRepository) ExtendExpiry(ctx context.Context, id string, expiresAt, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.sessions").
		Set("expires_at", expiresAt).
		Set("last_activity", at).
		Where(squirrel.Eq{"id": id, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build extend expiry sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("extend session expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Touch records activity on the session.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time, ip *string) error {
	query := r.builder.Update("auth.sessions").
		Set("last_activity", at).
		Where(squirrel.Eq{"id": id})

	if ip != nil {
		query = query.Set("ip", *ip)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Revoke marks one session revoked. Already revoked rows are untouched.
func (r *SessionRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.sessions").
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": id, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForIdentity revokes every active session and returns their IDs.
func (r *SessionRepository) RevokeAllForIdentity(ctx context.Context, identityID, reason string, at time.Time) ([]string, error) {
	const stmt = `
		UPDATE auth.sessions
		SET revoked_at = $3, revoke_reason = $2
		WHERE identity_id = $1 AND revoked_at IS NULL AND expires_at > $3
		RETURNING id`

	rows, err := r.exec.Query(ctx, stmt, identityID, reason, at)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}
	defer rows.Close()

	var revoked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan revoked session id: %w", err)
		}
		revoked = append(revoked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked sessions: %w", err)
	}
	return revoked, nil
}

// DeleteByIdentity removes all session rows for the identity.
func (r *SessionRepository) DeleteByIdentity(ctx context.Context, identityID string) error {
	stmt, args, err := r.builder.Delete("auth.sessions").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete sessions sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session      domain.Session
		ip           sql.NullString
		client       sql.NullString
		revokedAt    *time.Time
		revokeReason sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.Role,
		&ip,
		&client,
		&session.CreatedAt,
		&session.LastActivity,
		&session.ExpiresAt,
		&revokedAt,
		&revokeReason,
	); err != nil {
		return nil, err
	}

	if ip.Valid {
		session.IP = &ip.String
	}
	if client.Valid {
		session.Client = &client.String
	}
	session.RevokedAt = revokedAt
	if revokeReason.Valid {
		session.RevokeReason = &revokeReason.String
	}

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
